// Package continuation encodes and decodes the suspended execution state of
// a cross-partition ORDER BY query.
//
// Two token formats exist. The legacy format carries orderByItems and a
// textual filter, the current format carries resumeValues only. They are
// modelled as two State implementations so a state holding both, or
// neither, cannot be built.
package continuation

import (
	"fmt"

	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
)

type Format int

const (
	FormatCurrent = Format(iota)
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatCurrent:
		return "current"
	case FormatLegacy:
		return "legacy"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FormatByName maps a configuration name to a Format.
func FormatByName(name string) (Format, error) {
	switch name {
	case "current", "":
		return FormatCurrent, nil
	case "legacy":
		return FormatLegacy, nil
	default:
		return 0, fmt.Errorf("unknown continuation token format: %s", name)
	}
}

// State is either LegacyState or CurrentState.
type State interface {
	Format() Format
	// TargetContinuation is the partition that produced the last emitted
	// item together with its backend page token.
	TargetContinuation() prange.Continuation
	// Keys are the order-by values of the last emitted item.
	Keys() []value.Value
	ResumeRid() string
	Skip() int

	sealed()
}

type LegacyState struct {
	Target       prange.Continuation
	OrderByItems []value.Value
	Rid          string
	SkipCount    int
	// Filter is the rewritten admission predicate of the target partition.
	// nil is encoded as JSON null.
	Filter *string
}

type CurrentState struct {
	Target       prange.Continuation
	ResumeValues []value.Value
	Rid          string
	SkipCount    int
}

var (
	_ State = LegacyState{}
	_ State = CurrentState{}
)

func (LegacyState) Format() Format                            { return FormatLegacy }
func (s LegacyState) TargetContinuation() prange.Continuation { return s.Target }
func (s LegacyState) Keys() []value.Value                     { return s.OrderByItems }
func (s LegacyState) ResumeRid() string                       { return s.Rid }
func (s LegacyState) Skip() int                               { return s.SkipCount }
func (LegacyState) sealed()                                   {}

func (CurrentState) Format() Format                            { return FormatCurrent }
func (s CurrentState) TargetContinuation() prange.Continuation { return s.Target }
func (s CurrentState) Keys() []value.Value                     { return s.ResumeValues }
func (s CurrentState) ResumeRid() string                       { return s.Rid }
func (s CurrentState) Skip() int                               { return s.SkipCount }
func (CurrentState) sealed()                                   {}

// NewCurrentState builds a current-format state. Invalid arguments are a
// programming error and panic.
func NewCurrentState(target prange.Continuation, keys []value.Value, rid string, skipCount int) CurrentState {
	s := CurrentState{
		Target:       target,
		ResumeValues: keys,
		Rid:          rid,
		SkipCount:    skipCount,
	}
	if err := Validate(s); err != nil {
		panic(err)
	}
	return s
}

// NewLegacyState builds a legacy-format state. Invalid arguments are a
// programming error and panic.
func NewLegacyState(target prange.Continuation, keys []value.Value, rid string, skipCount int, filter *string) LegacyState {
	s := LegacyState{
		Target:       target,
		OrderByItems: keys,
		Rid:          rid,
		SkipCount:    skipCount,
		Filter:       filter,
	}
	if err := Validate(s); err != nil {
		panic(err)
	}
	return s
}

// Validate checks the invariants shared by both formats.
func Validate(s State) error {
	if err := s.TargetContinuation().Range.Validate(); err != nil {
		return fmt.Errorf("continuation: invalid target: %w", err)
	}
	if len(s.Keys()) == 0 {
		return fmt.Errorf("continuation: %s state without order-by values", s.Format())
	}
	for i, k := range s.Keys() {
		if k == nil {
			return fmt.Errorf("continuation: nil order-by value at %d", i)
		}
	}
	if s.ResumeRid() == "" {
		return fmt.Errorf("continuation: empty rid")
	}
	if s.Skip() < 0 {
		return fmt.Errorf("continuation: negative skip count %d", s.Skip())
	}
	return nil
}

// Equal compares two states structurally, digests included.
func Equal(a, b State) bool {
	if a.Format() != b.Format() {
		return false
	}
	if a.TargetContinuation() != b.TargetContinuation() ||
		a.ResumeRid() != b.ResumeRid() ||
		a.Skip() != b.Skip() ||
		!value.EqualTuple(a.Keys(), b.Keys()) {
		return false
	}

	switch x := a.(type) {
	case LegacyState:
		y := b.(LegacyState)
		if (x.Filter == nil) != (y.Filter == nil) {
			return false
		}
		return x.Filter == nil || *x.Filter == *y.Filter
	case CurrentState:
		return true
	default:
		panic(fmt.Sprintf("continuation: unexpected state type %T", a))
	}
}
