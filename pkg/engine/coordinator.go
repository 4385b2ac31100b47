// Package engine merges per-partition sorted streams of an ORDER BY query
// into one globally sorted stream and suspends or resumes it through
// continuation tokens.
package engine

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/transport"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

type State int

const (
	StateActive = State(iota)
	StateSuspended
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrIteratorDone is returned by Next once every partition is drained.
var ErrIteratorDone = errors.New("no more items")

type Stats struct {
	Emitted      int64
	PagesFetched int64
}

// Coordinator owns one cursor per partition range and emits their items in
// global order. It is not safe for concurrent use; page fetches of one
// refill round run concurrently internally.
type Coordinator struct {
	fetcher transport.PageFetcher
	ranges  []prange.Range
	query   QuerySpec
	opts    options
	format  continuation.Format

	state State
	heap  cursorHeap
	// pending cursors have nothing buffered and another page to fetch.
	pending []*cursor
	// lastCursor produced the most recently emitted item.
	lastCursor *cursor
	// resumed is the state this session started from; Suspend returns it
	// until a new item is emitted.
	resumed continuation.State

	emitted      atomic.Int64
	pagesFetched atomic.Int64
}

// NewCoordinator plans a fresh query over ranges. Nothing is fetched until
// the first Next.
func NewCoordinator(fetcher transport.PageFetcher, ranges []prange.Range, q QuerySpec, opts ...Option) (*Coordinator, error) {
	if fetcher == nil {
		return nil, xerror.New(xerror.XORD_CONFIG_ERROR, "page fetcher is not set")
	}
	if len(q.Orders) == 0 {
		return nil, xerror.New(xerror.XORD_CONFIG_ERROR, "query has no order-by keys")
	}
	if err := prange.ValidateTopology(ranges); err != nil {
		return nil, xerror.Wrap(xerror.XORD_CONFIG_ERROR, err, "invalid partition topology")
	}

	o := options{
		maxDOP: defaultMaxDegreeOfParallelism,
		format: continuation.FormatCurrent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queryID == "" {
		o.queryID = uuid.NewString()
	}

	sorted := make([]prange.Range, len(ranges))
	copy(sorted, ranges)
	prange.SortRanges(sorted)

	co := &Coordinator{
		fetcher: fetcher,
		ranges:  sorted,
		query:   q,
		opts:    o,
		format:  o.format,
	}
	co.reset()
	for _, r := range co.ranges {
		co.pending = append(co.pending, newCursor(r, "", nil))
	}

	xlog.Zero.Debug().
		Uint("coordinator", xlog.GetPointer(co)).
		Str("query", o.queryID).
		Int("partitions", len(sorted)).
		Int("max dop", o.maxDOP).
		Str("format", o.format.String()).
		Msg("coordinator: planned fresh query")
	return co, nil
}

func (co *Coordinator) reset() {
	co.heap = cursorHeap{orders: co.query.Orders}
	co.pending = nil
	co.lastCursor = nil
	co.resumed = nil
	co.state = StateActive
}

func (co *Coordinator) State() State {
	return co.state
}

func (co *Coordinator) Format() continuation.Format {
	return co.format
}

func (co *Coordinator) Stats() Stats {
	return Stats{
		Emitted:      co.emitted.Load(),
		PagesFetched: co.pagesFetched.Load(),
	}
}

// Next returns the next item in global order, fetching pages as needed.
func (co *Coordinator) Next(ctx context.Context) (transport.Item, error) {
	switch co.state {
	case StateCompleted:
		return transport.Item{}, ErrIteratorDone
	case StateSuspended, StateFailed:
		return transport.Item{}, xerror.Newf(xerror.XORD_INVALID_STATE, "cannot iterate a %s query", co.state)
	}

	if err := ctx.Err(); err != nil {
		return transport.Item{}, co.fail(err)
	}
	if err := co.fillHeads(ctx); err != nil {
		if ctx.Err() != nil {
			return transport.Item{}, co.fail(ctx.Err())
		}
		return transport.Item{}, err
	}

	if co.heap.Len() == 0 {
		co.state = StateCompleted
		xlog.Zero.Debug().
			Uint("coordinator", xlog.GetPointer(co)).
			Str("query", co.opts.queryID).
			Int64("emitted", co.emitted.Load()).
			Msg("coordinator: query completed")
		return transport.Item{}, ErrIteratorDone
	}

	c := co.heap.cursors[0]
	it := c.pop()
	if len(c.buffer) == 0 {
		heap.Pop(&co.heap)
		if c.needsRefill() {
			co.pending = append(co.pending, c)
		}
	} else {
		heap.Fix(&co.heap, 0)
	}

	co.lastCursor = c
	co.resumed = nil
	co.emitted.Inc()
	return it, nil
}

// Drain returns up to limit payloads. When a fetch fails midway the
// payloads emitted so far are returned together with the error; on
// cancellation nothing is returned.
func (co *Coordinator) Drain(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit < 0 {
		limit = 0
	}
	out := make([]json.RawMessage, 0, limit)
	for len(out) < limit {
		it, err := co.Next(ctx)
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			if xerror.HasCode(err, xerror.XORD_CANCELLED) {
				return nil, err
			}
			return out, err
		}
		out = append(out, it.Payload)
	}
	return out, nil
}

// fillHeads refills every pending cursor until each one either has a head
// item or is exhausted. A failed round leaves the pending set untouched.
func (co *Coordinator) fillHeads(ctx context.Context) error {
	for len(co.pending) > 0 {
		batch := co.pending
		if err := co.refill(ctx, batch); err != nil {
			return err
		}

		co.pending = nil
		for _, c := range batch {
			switch {
			case len(c.buffer) > 0:
				heap.Push(&co.heap, c)
			case c.needsRefill():
				co.pending = append(co.pending, c)
			}
		}
	}
	return nil
}

func (co *Coordinator) fail(cause error) error {
	co.state = StateFailed
	co.heap.cursors = nil
	co.pending = nil
	co.lastCursor = nil

	xlog.Zero.Debug().
		Uint("coordinator", xlog.GetPointer(co)).
		Str("query", co.opts.queryID).
		Err(cause).
		Msg("coordinator: query cancelled")
	return xerror.Wrap(xerror.XORD_CANCELLED, cause, "query cancelled")
}
