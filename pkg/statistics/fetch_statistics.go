package statistics

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

// FetchStatistics keeps a latency digest per partition. Fetches run
// concurrently, so every method is safe for concurrent use.
type FetchStatistics struct {
	mu sync.Mutex

	latency   map[string]*tdigest.TDigest
	items     map[string]uint64
	quantiles []float64
}

func NewFetchStatistics(quantiles []float64) *FetchStatistics {
	return &FetchStatistics{
		latency:   make(map[string]*tdigest.TDigest),
		items:     make(map[string]uint64),
		quantiles: quantiles,
	}
}

func (s *FetchStatistics) SetQuantiles(q []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantiles = q
}

func (s *FetchStatistics) Quantiles() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantiles
}

// RecordFetch adds one page fetch of the partition, in milliseconds.
func (s *FetchStatistics) RecordFetch(partition string, d time.Duration, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latency[partition] == nil {
		s.latency[partition], _ = tdigest.New()
	}
	_ = s.latency[partition].Add(float64(d.Microseconds()) / 1000)
	s.items[partition] += uint64(items)
}

// Partition returns the requested quantiles of the partition's fetch
// latency, the number of fetches and the number of fetched items.
func (s *FetchStatistics) Partition(partition string) (quantiles []float64, fetches uint64, items uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quantiles = make([]float64, len(s.quantiles))
	stat := s.latency[partition]
	if stat == nil {
		return quantiles, 0, 0
	}
	for i, q := range s.quantiles {
		quantiles[i] = stat.Quantile(q)
	}
	return quantiles, stat.Count(), s.items[partition]
}

func (s *FetchStatistics) Partitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.latency))
	for p := range s.latency {
		out = append(out, p)
	}
	return out
}
