package transport

import (
	"context"
	"time"

	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/xlog"
	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
)

type retryFetcher struct {
	next       PageFetcher
	maxRetries uint64
	base       time.Duration
}

// WithRetry retries failed fetches up to maxRetries times with Fibonacci
// backoff starting at base. Context errors are not retried.
func WithRetry(f PageFetcher, maxRetries uint64, base time.Duration) PageFetcher {
	if maxRetries == 0 {
		return f
	}
	return &retryFetcher{
		next:       f,
		maxRetries: maxRetries,
		base:       base,
	}
}

func (r *retryFetcher) FetchPage(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error) {
	var page *Page
	attempt := 0

	err := retry.Do(ctx, retry.WithMaxRetries(r.maxRetries, retry.NewFibonacci(r.base)), func(ctx context.Context) error {
		attempt++
		p, err := r.next.FetchPage(ctx, rng, token, adm)
		if err == nil {
			page = p
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		xlog.Zero.Debug().
			Err(err).
			Str("partition", rng.String()).
			Int("attempt", attempt).
			Msg("retrying page fetch")
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
