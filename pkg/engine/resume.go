package engine

import (
	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/transport"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

// Resume rebuilds the cursors from a continuation document. The document
// is fully validated before anything changes: a malformed token leaves the
// coordinator as it was.
func (co *Coordinator) Resume(doc map[string]any) error {
	s, err := continuation.Decode(doc)
	if err != nil {
		return err
	}
	return co.ResumeState(s)
}

func (co *Coordinator) ResumeBytes(b []byte) error {
	s, err := continuation.Unmarshal(b)
	if err != nil {
		return err
	}
	return co.ResumeState(s)
}

// ResumeState positions the query right after the item s was captured at,
// against the current partition topology:
//
//   - the target range restarts from its stored page token and skips what
//     was already delivered from it;
//   - ranges left of the target restart fresh, admitting keys strictly
//     after the resume keys;
//   - ranges right of the target restart fresh, admitting keys at or after
//     the resume keys;
//   - ranges overlapping the target (a split or merge since suspension)
//     restart fresh with the target's admission and skip.
func (co *Coordinator) ResumeState(s continuation.State) error {
	switch {
	case co.state == StateSuspended:
	case co.state == StateActive && co.lastCursor == nil:
	default:
		return xerror.Newf(xerror.XORD_INVALID_STATE, "cannot resume a %s query", co.state)
	}

	if err := continuation.Validate(s); err != nil {
		return xerror.NewMalformedToken(continuation.FieldCompositeToken, "%s", err.Error())
	}
	if len(s.Keys()) != len(co.query.Orders) {
		field := continuation.FieldResumeValues
		if s.Format() == continuation.FormatLegacy {
			field = continuation.FieldOrderByItems
		}
		return xerror.NewMalformedToken(field, "expected %d order-by values, got %d", len(co.query.Orders), len(s.Keys()))
	}

	prev := co.format
	co.format = s.Format()
	cursors, err := co.plan(s)
	if err != nil {
		co.format = prev
		return err
	}

	co.reset()
	co.pending = cursors
	co.resumed = s
	return nil
}

func (co *Coordinator) plan(s continuation.State) ([]*cursor, error) {
	target := s.TargetContinuation()
	keys := s.Keys()

	inclusive := ordering.Bound{Values: keys, Orders: co.query.Orders, Inclusive: true}
	exclusive := ordering.Bound{Values: keys, Orders: co.query.Orders}

	var legacyFilter *string
	if ls, ok := s.(continuation.LegacyState); ok {
		legacyFilter = ls.Filter
	}

	cursors := make([]*cursor, 0, len(co.ranges))
	for _, r := range co.ranges {
		var (
			c        *cursor
			relation string
		)
		switch {
		case r.Equal(target.Range):
			relation = "target"
			adm, err := co.admission(inclusive, legacyFilter)
			if err != nil {
				return nil, err
			}
			c = newCursor(r, target.Token, adm)
			co.attachSkip(c, s)
		case r.Before(target.Range):
			relation = "before"
			adm, err := co.admission(exclusive, nil)
			if err != nil {
				return nil, err
			}
			c = newCursor(r, "", adm)
		case r.After(target.Range):
			relation = "after"
			adm, err := co.admission(inclusive, nil)
			if err != nil {
				return nil, err
			}
			c = newCursor(r, "", adm)
		default:
			relation = "overlap"
			adm, err := co.admission(inclusive, nil)
			if err != nil {
				return nil, err
			}
			c = newCursor(r, "", adm)
			co.attachSkip(c, s)
		}

		xlog.Zero.Debug().
			Uint("coordinator", xlog.GetPointer(co)).
			Str("query", co.opts.queryID).
			Str("partition", r.String()).
			Str("relation", relation).
			Str("admission", c.admission.String()).
			Msg("coordinator: planned resumed partition")
		cursors = append(cursors, c)
	}
	return cursors, nil
}

// admission builds the admission of a restarted range. A stored legacy
// filter wins over a fresh rewrite.
func (co *Coordinator) admission(b ordering.Bound, stored *string) (*transport.Admission, error) {
	adm := &transport.Admission{Bound: b}
	if stored != nil {
		adm.Filter = *stored
		return adm, nil
	}
	f, err := co.rewrite(b)
	if err != nil {
		return nil, err
	}
	adm.Filter = f
	return adm, nil
}

func (co *Coordinator) attachSkip(c *cursor, s continuation.State) {
	c.skip = &resumeSkip{
		keys:      s.Keys(),
		orders:    co.query.Orders,
		rid:       s.ResumeRid(),
		skipCount: s.Skip(),
	}
	/* rows skipped here count towards the next suspension's skip */
	c.last = &transport.Item{Keys: s.Keys(), Rid: s.ResumeRid()}
	c.dupCount = s.Skip()
	c.dupToken = c.nextToken
}
