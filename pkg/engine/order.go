package engine

import (
	"github.com/pg-sharding/xorder/pkg/models/ordering"
)

// cursorHeap orders cursors by their head item: key tuple in query order,
// then partition range Min ascending, then rid. Only cursors with a
// buffered head are kept in the heap.
type cursorHeap struct {
	cursors []*cursor
	orders  []ordering.Direction
}

func (h *cursorHeap) Len() int { return len(h.cursors) }

func (h *cursorHeap) Less(i, j int) bool {
	return headBefore(h.cursors[i], h.cursors[j], h.orders)
}

func (h *cursorHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *cursorHeap) Push(x any) {
	h.cursors = append(h.cursors, x.(*cursor))
}

func (h *cursorHeap) Pop() any {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	h.cursors = old[:n-1]
	return c
}

func headBefore(a, b *cursor, orders []ordering.Direction) bool {
	ha, hb := a.head(), b.head()
	if c := ordering.CompareTuple(ha.Keys, hb.Keys, orders); c != 0 {
		return c < 0
	}
	if a.rng.Min != b.rng.Min {
		return a.rng.Less(b.rng)
	}
	return ha.Rid < hb.Rid
}
