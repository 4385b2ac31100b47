package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/xorder/pkg/engine"
	"github.com/pg-sharding/xorder/pkg/memstore"
	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/transport"
)

var (
	twoRanges = []prange.Range{
		{Min: "00", Max: "80"},
		{Min: "80", Max: ""},
	}
	threeRanges = []prange.Range{
		{Min: "", Max: "3"},
		{Min: "3", Max: "6"},
		{Min: "6", Max: ""},
	}
)

func newStore(t *testing.T, ranges []prange.Range, docs ...*memstore.Document) *memstore.MemStore {
	t.Helper()
	s, err := memstore.New("", ranges...)
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, s.Put(context.Background(), d))
	}
	return s
}

func newCoordinator(t *testing.T, f transport.PageFetcher, ranges []prange.Range, q memstore.Query, opts ...engine.Option) *engine.Coordinator {
	t.Helper()
	co, err := engine.NewCoordinator(f, ranges, engine.QuerySpec{Orders: q.Orders(), Rewriter: testRewriter}, opts...)
	require.NoError(t, err)
	return co
}

// rowKey identifies an emitted row: its rid, plus the fanout ordinal.
func rowKey(t *testing.T, it transport.Item) string {
	t.Helper()
	var row memstore.Row
	require.NoError(t, json.Unmarshal(it.Payload, &row))
	if row.Ordinal != nil {
		return fmt.Sprintf("%s/%d", row.ID, *row.Ordinal)
	}
	return row.ID
}

// take pulls up to n rows, or every row when n is negative.
func take(t *testing.T, co *engine.Coordinator, n int) []string {
	t.Helper()
	var out []string
	for n < 0 || len(out) < n {
		it, err := co.Next(context.Background())
		if err == engine.ErrIteratorDone {
			break
		}
		require.NoError(t, err)
		out = append(out, rowKey(t, it))
	}
	return out
}

var testRewriter = engine.FilterRewriterFunc(func(b ordering.Bound) (string, error) {
	return fmt.Sprintf("c.key %s %s", b.Operator(0), b.Values[0]), nil
})
