package engine

import (
	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/ordering"
)

// FilterRewriter is supplied by the query compiler on the legacy token path.
// It renders a resume bound as a predicate in the backend's query language.
type FilterRewriter interface {
	Rewrite(b ordering.Bound) (string, error)
}

type FilterRewriterFunc func(b ordering.Bound) (string, error)

func (f FilterRewriterFunc) Rewrite(b ordering.Bound) (string, error) {
	return f(b)
}

// QuerySpec is what the merge needs to know about the compiled query.
type QuerySpec struct {
	// Orders holds one direction per order-by key.
	Orders []ordering.Direction
	// Rewriter is optional and only consulted for legacy tokens.
	Rewriter FilterRewriter
}

const defaultMaxDegreeOfParallelism = 4

type options struct {
	maxDOP  int
	format  continuation.Format
	queryID string
}

type Option func(*options)

// WithMaxDegreeOfParallelism bounds the number of concurrent page fetches.
func WithMaxDegreeOfParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDOP = n
		}
	}
}

// WithTokenFormat selects the token format of a fresh query. A resumed
// query keeps the format of the token it was resumed from.
func WithTokenFormat(f continuation.Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithQueryID sets the id used in log lines.
func WithQueryID(id string) Option {
	return func(o *options) {
		o.queryID = id
	}
}
