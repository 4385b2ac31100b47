package xlog

import "time"

// FetchLogger reports partition page fetches that took longer than a threshold.
type FetchLogger struct {
	logMinDuration time.Duration
}

func NewFetchLogger(logMinDuration time.Duration) *FetchLogger {
	return &FetchLogger{
		logMinDuration: logMinDuration,
	}
}

func (s *FetchLogger) shouldLog(t time.Duration) bool {
	return s.logMinDuration >= 0 && t > s.logMinDuration
}

func (s *FetchLogger) ReportFetch(partition string, items int, t time.Duration) {
	if s.shouldLog(t) {
		Zero.Info().
			Str("partition", partition).
			Int("items", items).
			Dur("duration", t).
			Msg("slow page fetch")
	}
}
