package engine

import (
	"github.com/pkg/errors"

	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

// Suspend captures the position after the last emitted item and stops the
// query. A completed query has nothing to resume and yields a nil document.
func (co *Coordinator) Suspend() (map[string]any, error) {
	s, err := co.SuspendState()
	if err != nil || s == nil {
		return nil, err
	}
	return continuation.Encode(s)
}

// SuspendBytes is Suspend rendered as a JSON document.
func (co *Coordinator) SuspendBytes() ([]byte, error) {
	s, err := co.SuspendState()
	if err != nil || s == nil {
		return nil, err
	}
	return continuation.Marshal(s)
}

func (co *Coordinator) SuspendState() (continuation.State, error) {
	switch co.state {
	case StateCompleted:
		return nil, nil
	case StateFailed:
		return nil, xerror.New(xerror.XORD_INVALID_STATE, "cannot suspend a failed query")
	case StateSuspended:
		return nil, xerror.New(xerror.XORD_INVALID_STATE, "query is already suspended")
	}

	if co.drained() {
		co.state = StateCompleted
		return nil, nil
	}

	s, err := co.capture()
	if err != nil {
		return nil, err
	}

	co.state = StateSuspended
	co.heap.cursors = nil
	co.pending = nil
	co.lastCursor = nil
	co.resumed = nil

	xlog.Zero.Debug().
		Uint("coordinator", xlog.GetPointer(co)).
		Str("query", co.opts.queryID).
		Str("target", s.TargetContinuation().String()).
		Str("keys", value.FormatTuple(s.Keys())).
		Str("rid", s.ResumeRid()).
		Int("skip", s.Skip()).
		Msg("coordinator: suspended")
	return s, nil
}

// drained reports that every cursor is exhausted with nothing buffered
// even though Next has not observed it yet.
func (co *Coordinator) drained() bool {
	return co.heap.Len() == 0 && len(co.pending) == 0
}

func (co *Coordinator) capture() (continuation.State, error) {
	c := co.lastCursor
	if c == nil {
		if co.resumed != nil {
			return co.resumed, nil
		}
		return nil, xerror.New(xerror.XORD_NOTHING_TO_SUSPEND, "no item was emitted yet")
	}

	target := prange.Continuation{Range: c.rng, Token: c.dupToken}
	keys := c.last.Keys
	rid := c.last.Rid

	if co.format == continuation.FormatCurrent {
		return continuation.NewCurrentState(target, keys, rid, c.dupCount), nil
	}

	filter, err := co.rewrite(ordering.Bound{Values: keys, Orders: co.query.Orders, Inclusive: true})
	if err != nil {
		return nil, err
	}
	var fp *string
	if filter != "" {
		fp = &filter
	}
	return continuation.NewLegacyState(target, keys, rid, c.dupCount, fp), nil
}

// rewrite renders b through the query's rewriter. Without a rewriter the
// filter stays empty and admission is enforced client side only.
func (co *Coordinator) rewrite(b ordering.Bound) (string, error) {
	if co.format != continuation.FormatLegacy || co.query.Rewriter == nil {
		return "", nil
	}
	f, err := co.query.Rewriter.Rewrite(b)
	if err != nil {
		return "", xerror.Wrap(xerror.XORD_UNEXPECTED, errors.WithStack(err), "rewrite resume filter")
	}
	return f, nil
}
