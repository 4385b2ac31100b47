package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/transport"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

// refill fetches the next page of every cursor in batch, at most maxDOP at
// a time. Pages are applied in batch order after all fetches succeed, so
// completion order never affects the merge.
func (co *Coordinator) refill(ctx context.Context, batch []*cursor) error {
	pages := make([]*transport.Page, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(co.opts.maxDOP)
	for i, c := range batch {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			page, err := co.fetcher.FetchPage(gctx, c.rng, c.nextToken, c.admission)
			if err != nil {
				err = xerror.Wrap(xerror.XORD_FETCH_FAILED, err, "fetch partition "+c.rng.String())
				xlog.Zero.Warn().
					Uint("coordinator", xlog.GetPointer(co)).
					Str("query", co.opts.queryID).
					Str("partition", c.rng.String()).
					Err(err).
					Msg("coordinator: page fetch failed")
				return err
			}
			if page == nil {
				page = &transport.Page{}
			}
			pages[i] = page

			xlog.Zero.Debug().
				Uint("coordinator", xlog.GetPointer(co)).
				Str("query", co.opts.queryID).
				Str("partition", c.rng.String()).
				Bool("resumed", c.nextToken != "").
				Int("items", len(page.Items)).
				Dur("took", time.Since(start)).
				Msg("coordinator: fetched page")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, c := range batch {
		c.apply(c.nextToken, pages[i])
		co.pagesFetched.Inc()
	}
	return nil
}
