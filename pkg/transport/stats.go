package transport

import (
	"context"
	"time"

	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/statistics"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

type statsFetcher struct {
	next  PageFetcher
	stats *statistics.FetchStatistics
	slow  *xlog.FetchLogger
}

// WithStatistics records the latency of successful fetches into stats and
// reports fetches slower than slow. A nil slow logger disables reporting.
func WithStatistics(f PageFetcher, stats *statistics.FetchStatistics, slow *xlog.FetchLogger) PageFetcher {
	return &statsFetcher{
		next:  f,
		stats: stats,
		slow:  slow,
	}
}

func (s *statsFetcher) FetchPage(ctx context.Context, rng prange.Range, token string, adm *Admission) (*Page, error) {
	t := time.Now()
	page, err := s.next.FetchPage(ctx, rng, token, adm)
	if err != nil {
		return nil, err
	}

	d := time.Since(t)
	s.stats.RecordFetch(rng.String(), d, len(page.Items))
	if s.slow != nil {
		s.slow.ReportFetch(rng.String(), len(page.Items), d)
	}
	return page, nil
}
