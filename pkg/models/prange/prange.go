package prange

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Range is a half-open partition key range [Min, Max). An empty Max stands
// for +inf. Ranges of one topology are disjoint and ordered by Min.
type Range struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func (r Range) String() string {
	if r.Max == "" {
		return fmt.Sprintf("[%q, +inf)", r.Min)
	}
	return fmt.Sprintf("[%q, %q)", r.Min, r.Max)
}

func (r Range) Validate() error {
	if r.Max != "" && r.Max <= r.Min {
		return fmt.Errorf("partition range %s is empty", r)
	}
	return nil
}

// Less orders ranges by Min. It is the structural tiebreak of the merge.
func (r Range) Less(other Range) bool {
	return r.Min < other.Min
}

func (r Range) Equal(other Range) bool {
	return r.Min == other.Min && r.Max == other.Max
}

func (r Range) Contains(key string) bool {
	return key >= r.Min && (r.Max == "" || key < r.Max)
}

// Before reports whether r lies entirely to the left of other.
func (r Range) Before(other Range) bool {
	return r.Max != "" && r.Max <= other.Min
}

// After reports whether r lies entirely to the right of other.
func (r Range) After(other Range) bool {
	return other.Before(r)
}

func (r Range) Overlaps(other Range) bool {
	return !r.Before(other) && !r.After(other)
}

// SortRanges orders ranges by Min in place.
func SortRanges(rs []Range) {
	slices.SortFunc(rs, func(a, b Range) int {
		return strings.Compare(a.Min, b.Min)
	})
}

// ValidateTopology checks every range and that sorted ranges do not overlap.
func ValidateTopology(rs []Range) error {
	if len(rs) == 0 {
		return fmt.Errorf("no partition ranges")
	}
	sorted := slices.Clone(rs)
	SortRanges(sorted)
	for i, r := range sorted {
		if err := r.Validate(); err != nil {
			return err
		}
		if i > 0 && !sorted[i-1].Before(r) {
			return fmt.Errorf("partition ranges %s and %s overlap", sorted[i-1], r)
		}
	}
	return nil
}

// Continuation is the transport-level resumption marker of one partition's
// paging sequence. An empty Token means the first page.
type Continuation struct {
	Range Range  `json:"range"`
	Token string `json:"token"`
}

func (c Continuation) String() string {
	return fmt.Sprintf("%s@%q", c.Range, c.Token)
}
