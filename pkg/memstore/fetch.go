package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
	"github.com/pg-sharding/xorder/pkg/transport"
)

const DefaultPageSize = 100

// OrderKey is one ORDER BY key: a dotted path into the document body.
type OrderKey struct {
	Path      string
	Direction ordering.Direction
}

// Query describes the partition query the store executes.
type Query struct {
	OrderBy []OrderKey
	// Fanout is an optional dotted path to an array. Every element yields
	// one row; a missing or non-array value yields none.
	Fanout   string
	PageSize int
	Digest   value.DigestFunction
	// Delay, when set, stalls every fetch of a range. It lets tests control
	// which partition answers first.
	Delay func(rng prange.Range) time.Duration
}

func (q Query) Orders() []ordering.Direction {
	dirs := make([]ordering.Direction, len(q.OrderBy))
	for i, k := range q.OrderBy {
		dirs[i] = k.Direction
	}
	return dirs
}

// ParseOrderBy parses "path [asc|desc], ..." into order keys.
func ParseOrderBy(s string) ([]OrderKey, error) {
	var keys []OrderKey
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return nil, fmt.Errorf("malformed order-by key %q", strings.TrimSpace(part))
		}
		k := OrderKey{Path: fields[0]}
		if len(fields) == 2 {
			d, err := ordering.DirectionByName(fields[1])
			if err != nil {
				return nil, err
			}
			k.Direction = d
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Row is the payload of one served item.
type Row struct {
	ID      string         `json:"id"`
	PK      string         `json:"pk"`
	Body    map[string]any `json:"body"`
	Item    any            `json:"item,omitempty"`
	Ordinal *int           `json:"ordinal,omitempty"`
}

// Fetcher serves pages of one Query. Page tokens are decimal offsets into
// the full sorted row sequence of a range, so a token stays valid whatever
// admission the next fetch carries.
type Fetcher struct {
	store   *MemStore
	query   Query
	fetches atomic.Int64
}

var _ transport.PageFetcher = &Fetcher{}

func (s *MemStore) Fetcher(q Query) *Fetcher {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	return &Fetcher{store: s, query: q}
}

// Fetches is the number of pages served so far.
func (f *Fetcher) Fetches() int64 {
	return f.fetches.Load()
}

func (f *Fetcher) FetchPage(ctx context.Context, rng prange.Range, token string, adm *transport.Admission) (*transport.Page, error) {
	if f.query.Delay != nil {
		if d := f.query.Delay(rng); d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", token)
		}
		offset = n
	}

	rows, err := f.store.rows(rng, f.query)
	if err != nil {
		return nil, err
	}
	f.fetches.Inc()

	page := &transport.Page{}
	i := offset
	for ; i < len(rows) && len(page.Items) < f.query.PageSize; i++ {
		if adm.Admits(rows[i].Keys) {
			page.Items = append(page.Items, rows[i])
		}
	}
	if i < len(rows) {
		page.NextToken = strconv.Itoa(i)
	}
	return page, nil
}

// rows materializes the sorted row sequence of rng: key tuple in query
// order, then rid, then fanout ordinal.
func (s *MemStore) rows(rng prange.Range, q Query) ([]transport.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		item    transport.Item
		ordinal int
	}
	var rows []row

	for _, doc := range s.Docs {
		if !rng.Contains(doc.PK) {
			continue
		}
		keys := make([]value.Value, len(q.OrderBy))
		for i, k := range q.OrderBy {
			raw, ok := lookup(doc.Body, k.Path)
			if !ok {
				keys[i] = value.Undefined{}
				continue
			}
			v, err := value.FromAny(raw, q.Digest)
			if err != nil {
				return nil, fmt.Errorf("document %q key %q: %w", doc.ID, k.Path, err)
			}
			keys[i] = v
		}

		if q.Fanout == "" {
			payload, err := json.Marshal(Row{ID: doc.ID, PK: doc.PK, Body: doc.Body})
			if err != nil {
				return nil, err
			}
			rows = append(rows, row{item: transport.Item{Keys: keys, Rid: doc.ID, Payload: payload}})
			continue
		}

		raw, _ := lookup(doc.Body, q.Fanout)
		elems, _ := raw.([]any)
		for ord, elem := range elems {
			ord := ord
			payload, err := json.Marshal(Row{ID: doc.ID, PK: doc.PK, Body: doc.Body, Item: elem, Ordinal: &ord})
			if err != nil {
				return nil, err
			}
			rows = append(rows, row{item: transport.Item{Keys: keys, Rid: doc.ID, Payload: payload}, ordinal: ord})
		}
	}

	dirs := q.Orders()
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := ordering.CompareTuple(a.item.Keys, b.item.Keys, dirs); c != 0 {
			return c < 0
		}
		if a.item.Rid != b.item.Rid {
			return a.item.Rid < b.item.Rid
		}
		return a.ordinal < b.ordinal
	})

	items := make([]transport.Item, len(rows))
	for i, r := range rows {
		items[i] = r.item
	}
	return items, nil
}

func lookup(body map[string]any, path string) (any, bool) {
	var cur any = body
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
