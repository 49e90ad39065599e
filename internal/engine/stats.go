package engine

import (
	"sync"
	"time"

	"repricer/pkg/types"
)

// Stats accumulates processing counters for the /stats endpoint. All
// methods are safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	totalProcessed int64
	successful     int64
	failed         int64
	pricesUpdated  int64
	totalMillis    float64
	lastReset      time.Time
}

// Snapshot is the JSON shape served by GET /stats.
type Snapshot struct {
	TotalProcessed          int64   `json:"total_processed"`
	Successful              int64   `json:"successful"`
	Failed                  int64   `json:"failed"`
	PricesUpdated           int64   `json:"prices_updated"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
	LastReset               string  `json:"last_reset"`
}

// NewStats returns a zeroed counter set with lastReset = now.
func NewStats() *Stats {
	return &Stats{lastReset: time.Now().UTC()}
}

// Record counts one finished event. Failed outcomes count as failures;
// everything else (priced, unchanged, skipped) is a success.
func (s *Stats) Record(out types.Outcome, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalProcessed++
	s.totalMillis += float64(elapsed.Microseconds()) / 1000.0
	if out.Status == types.OutcomeFailed {
		s.failed++
		return
	}
	s.successful++
	if out.Status == types.OutcomePriced {
		s.pricesUpdated++
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := 0.0
	if s.totalProcessed > 0 {
		avg = s.totalMillis / float64(s.totalProcessed)
	}
	return Snapshot{
		TotalProcessed:          s.totalProcessed,
		Successful:              s.successful,
		Failed:                  s.failed,
		PricesUpdated:           s.pricesUpdated,
		AverageProcessingTimeMs: avg,
		LastReset:               s.lastReset.Format(time.RFC3339),
	}
}

// Reset zeroes all counters and stamps lastReset.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalProcessed = 0
	s.successful = 0
	s.failed = 0
	s.pricesUpdated = 0
	s.totalMillis = 0
	s.lastReset = time.Now().UTC()
}
