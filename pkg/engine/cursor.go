package engine

import (
	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
	"github.com/pg-sharding/xorder/pkg/transport"
)

// cursor is the merge-side view of one partition stream.
type cursor struct {
	rng prange.Range

	// pageToken fetched the buffered page, nextToken fetches the next one.
	pageToken string
	nextToken string
	exhausted bool
	buffer    []transport.Item

	admission *transport.Admission
	skip      *resumeSkip

	last *transport.Item
	// dupCount counts emitted rows equal to last, keys and rid alike.
	// dupToken fetched the page holding the first of them, so replaying
	// from it and skipping dupCount equal rows lands right after last.
	dupCount int
	dupToken string
}

func newCursor(rng prange.Range, token string, adm *transport.Admission) *cursor {
	return &cursor{
		rng:       rng,
		nextToken: token,
		admission: adm,
	}
}

func (c *cursor) needsRefill() bool {
	return len(c.buffer) == 0 && !c.exhausted
}

func (c *cursor) head() *transport.Item {
	return &c.buffer[0]
}

// apply installs a freshly fetched page, dropping what the admission and
// the resume skip exclude.
func (c *cursor) apply(token string, page *transport.Page) {
	c.pageToken = token
	c.nextToken = page.NextToken
	c.exhausted = page.NextToken == ""

	c.buffer = make([]transport.Item, 0, len(page.Items))
	for _, it := range page.Items {
		if !c.admission.Admits(it.Keys) {
			continue
		}
		if c.skip != nil {
			if c.skip.drop(it) {
				continue
			}
			c.skip = nil
		}
		c.buffer = append(c.buffer, it)
	}
}

func (c *cursor) pop() transport.Item {
	it := c.buffer[0]
	c.buffer = c.buffer[1:]

	if c.last != nil && c.last.Rid == it.Rid && value.EqualTuple(c.last.Keys, it.Keys) {
		c.dupCount++
	} else {
		c.dupCount = 1
		c.dupToken = c.pageToken
	}
	c.last = &it
	return it
}

// resumeSkip drops the prefix of a resumed stream that was delivered before
// suspension: every row ordered before the resume keys, rows with equal
// keys and a smaller rid, and the first skipCount rows identical to the
// last delivered one.
type resumeSkip struct {
	keys      []value.Value
	orders    []ordering.Direction
	rid       string
	skipCount int
	skipped   int
}

func (s *resumeSkip) drop(it transport.Item) bool {
	c := ordering.CompareTuple(it.Keys, s.keys, s.orders)
	switch {
	case c < 0:
		return true
	case c > 0:
		return false
	case it.Rid < s.rid:
		return true
	case it.Rid > s.rid:
		return false
	}

	/* same rid: a changed document is not the row we delivered */
	if !value.EqualTuple(it.Keys, s.keys) {
		return false
	}
	if s.skipped < s.skipCount {
		s.skipped++
		return true
	}
	return false
}
