// Package heartbeat periodically logs delivery counters so a long-running
// mirror shows it is alive even when no messages flow.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/crystaldolphin/tgmirror/internal/delivery"
)

// DefaultSchedule is used when the config does not set stats_schedule.
const DefaultSchedule = "@every 10m"

// StatusFunc reports the supervisor's current state for the log line.
type StatusFunc func() string

// Service logs a stats line on a cron schedule.
type Service struct {
	stats  *delivery.Stats
	status StatusFunc
	spec   string
	sched  robfigcron.Schedule // nil when disabled
	log    *slog.Logger

	mu   sync.Mutex
	last delivery.StatsSnapshot
}

// NewService validates spec and creates the reporter. An empty spec
// disables reporting; Start then just waits for shutdown.
func NewService(stats *delivery.Stats, status StatusFunc, spec string, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		stats:  stats,
		status: status,
		spec:   spec,
		log:    log.With("component", "heartbeat"),
	}
	if spec != "" {
		sched, err := robfigcron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("heartbeat: invalid schedule %q: %w", spec, err)
		}
		s.sched = sched
	}
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Service) Enabled() bool { return s.sched != nil }

// Start runs the reporter until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.sched == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	c := robfigcron.New()
	c.Schedule(s.sched, robfigcron.FuncJob(s.Report))
	c.Start()
	s.log.Info("heartbeat started", "schedule", s.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("heartbeat stopped")
	return ctx.Err()
}

// Report logs the counters and their change since the previous report.
func (s *Service) Report() {
	snap := s.stats.Snapshot()

	s.mu.Lock()
	prev := s.last
	s.last = snap
	s.mu.Unlock()

	state := "unknown"
	if s.status != nil {
		state = s.status()
	}
	s.log.Info("heartbeat",
		"state", state,
		"mirrored", snap.Mirrored,
		"mirrored_since_last", snap.Mirrored-prev.Mirrored,
		"rate_limited", snap.RateLimited,
		"permission_denied", snap.Denied,
		"failed", snap.Failed,
		"markup_fallbacks", snap.Fallbacks,
	)
}
