package delivery

import "sync/atomic"

// Stats counts delivery outcomes across all passes. All methods are safe for
// concurrent use; the dispatcher writes, the heartbeat reporter reads.
type Stats struct {
	mirrored    atomic.Int64
	rateLimited atomic.Int64
	denied      atomic.Int64
	failed      atomic.Int64
	fallbacks   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Mirrored    int64 `json:"mirrored"`
	RateLimited int64 `json:"rate_limited"`
	Denied      int64 `json:"permission_denied"`
	Failed      int64 `json:"failed"`
	Fallbacks   int64 `json:"markup_fallbacks"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats { return &Stats{} }

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Mirrored:    s.mirrored.Load(),
		RateLimited: s.rateLimited.Load(),
		Denied:      s.denied.Load(),
		Failed:      s.failed.Load(),
		Fallbacks:   s.fallbacks.Load(),
	}
}

// Total is the number of destination attempts that reached a terminal state.
func (s StatsSnapshot) Total() int64 {
	return s.Mirrored + s.RateLimited + s.Denied + s.Failed
}
