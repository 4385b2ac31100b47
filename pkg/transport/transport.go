// Package transport defines what the merge engine needs from the
// per-partition query transport: fetching one page of an already sorted
// partition stream.
package transport

//go:generate mockgen -source=pkg/transport/transport.go -destination=pkg/mock/transport/fetcher_mock.go -package=mock_transport

import (
	"context"
	"encoding/json"

	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
)

// Item is one result row: its order-by key tuple, the identity of the
// source document and the projected payload. Fanout rows of one document
// share Rid.
type Item struct {
	Keys    []value.Value
	Rid     string
	Payload json.RawMessage
}

// Page is one backend page. An empty NextToken means the partition is
// exhausted.
type Page struct {
	Items     []Item
	NextToken string
}

// Admission narrows a restarted partition to the part of its stream that
// was not delivered yet.
type Admission struct {
	ordering.Bound

	// Filter is the rewritten textual predicate for backends that take the
	// legacy format. Empty when no rewrite is available.
	Filter string
}

// Admits reports whether an item with keys passes a. A nil admission
// admits everything.
func (a *Admission) Admits(keys []value.Value) bool {
	if a == nil {
		return true
	}
	return a.Bound.Admits(keys)
}

func (a *Admission) String() string {
	if a == nil {
		return "all"
	}
	return a.Bound.String()
}

// PageFetcher executes the partition query. Within a partition, items
// arrive ordered by key tuple in the query's directions and then by rid
// ascending. Implementations may ignore adm: the engine re-applies it.
type PageFetcher interface {
	FetchPage(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error)
}

type PageFetcherFunc func(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error) {
	return f(ctx, rng, token, adm)
}

var _ PageFetcher = PageFetcherFunc(nil)
