package transport

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pg-sharding/xorder/pkg/models/prange"
)

type tracingFetcher struct {
	next PageFetcher
}

// WithTracing wraps every fetch in a "fetch_page" span of the global tracer.
func WithTracing(f PageFetcher) PageFetcher {
	return &tracingFetcher{next: f}
}

func (t *tracingFetcher) FetchPage(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "fetch_page")
	defer span.Finish()

	span.SetTag("partition.min", rng.Min)
	span.SetTag("partition.max", rng.Max)
	span.SetTag("resumed", token != "")
	span.SetTag("admission", adm.String())

	page, err := t.next.FetchPage(ctx, rng, token, adm)
	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
		return nil, err
	}
	span.SetTag("items", len(page.Items))
	span.SetTag("exhausted", page.NextToken == "")
	return page, nil
}
