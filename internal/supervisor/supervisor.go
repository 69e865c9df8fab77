// Package supervisor owns the platform connection and drives the
// connect → resolve → listen loop, recovering from failures with backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/tgmirror/internal/delivery"
	"github.com/crystaldolphin/tgmirror/internal/filter"
	"github.com/crystaldolphin/tgmirror/internal/routing"
	"github.com/crystaldolphin/tgmirror/internal/schema"
	"github.com/crystaldolphin/tgmirror/internal/shared/timeutil"
)

// DefaultRetryDelay is the backoff after an empty table, a disconnect or an error.
const DefaultRetryDelay = 5 * time.Second

// State is the supervisor's position in its connection cycle.
type State int32

const (
	StateDisconnected State = iota
	StateResolving
	StateListening
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResolving:
		return "resolving"
	case StateListening:
		return "listening"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Params holds the supervisor's collaborators.
type Params struct {
	Client   schema.MessagingClient
	Resolver *routing.Resolver
	Mappings []routing.Mapping
	Filter   *filter.Filter
	Engine   *delivery.Engine
	Snapshot *routing.Snapshot

	RetryDelay      time.Duration
	RateLimitMargin time.Duration
}

// Supervisor runs the mirroring loop. Only Run writes the routing snapshot;
// message handling reads it.
type Supervisor struct {
	p     Params
	log   *slog.Logger
	sleep timeutil.SleepFunc

	state  atomic.Int32
	cycles atomic.Int64
}

// New creates a Supervisor. A nil Snapshot gets a fresh one.
func New(p Params, log *slog.Logger) *Supervisor {
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.RateLimitMargin < 0 {
		p.RateLimitMargin = 0
	}
	if p.Snapshot == nil {
		p.Snapshot = routing.NewSnapshot()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		p:     p,
		log:   log.With("component", "supervisor"),
		sleep: timeutil.Sleep,
	}
}

// State reports the current state; safe from any goroutine.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Cycles is the number of connection attempts made so far.
func (s *Supervisor) Cycles() int64 { return s.cycles.Load() }

// Table returns the routing table currently in use.
func (s *Supervisor) Table() *routing.Table { return s.p.Snapshot.Load() }

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.log.Debug("state changed", "state", st.String())
	}
}

// Run loops until ctx is cancelled and then returns ctx.Err(). Every other
// failure is logged and followed by a backoff.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cycles.Add(1)

		pause := s.cycle(ctx)
		s.p.Client.Disconnect()
		s.setState(StateDisconnected)

		if err := ctx.Err(); err != nil {
			s.log.Info("shutting down")
			return err
		}

		s.setState(StateBackoff)
		if err := s.sleep(ctx, pause); err != nil {
			s.log.Info("shutting down")
			return err
		}
	}
}

// cycle runs one connect → resolve → listen pass and returns the backoff
// to apply before the next one.
func (s *Supervisor) cycle(ctx context.Context) time.Duration {
	s.setState(StateDisconnected)
	if err := s.p.Client.Connect(ctx); err != nil {
		return s.failure(ctx, "connect", err)
	}

	s.setState(StateResolving)
	table := s.p.Resolver.Resolve(ctx, s.p.Mappings)
	s.p.Snapshot.Store(table)
	if ctx.Err() != nil {
		return 0
	}
	if table.Len() == 0 {
		s.log.Warn("no mappings resolved, retrying",
			"err", routing.ErrNoSources,
			"retry_in", s.p.RetryDelay,
		)
		return s.p.RetryDelay
	}
	s.log.Info("routing table ready", "sources", table.Len(), "table", table.String())

	s.setState(StateListening)
	err := s.p.Client.Listen(ctx, table.Sources(), s.handle)
	if err == nil {
		s.log.Warn("disconnected, reconnecting", "retry_in", s.p.RetryDelay)
		return s.p.RetryDelay
	}
	return s.failure(ctx, "listen", err)
}

func (s *Supervisor) failure(ctx context.Context, stage string, err error) time.Duration {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if rl, ok := schema.AsRateLimit(err); ok {
		pause := rl.Wait + s.p.RateLimitMargin
		s.log.Warn("rate limited, pausing", "stage", stage, "wait", rl.Wait, "pause", pause)
		return pause
	}
	s.log.Error("unexpected error, reconnecting",
		"stage", stage,
		"err", err,
		"retry_in", s.p.RetryDelay,
	)
	return s.p.RetryDelay
}

// handle processes one inbound message: filter, route, deliver.
func (s *Supervisor) handle(ctx context.Context, msg schema.InboundMessage) {
	if !s.p.Filter.Accepts(msg) {
		return
	}
	dests := s.p.Snapshot.Load().Destinations(msg.Source)
	if len(dests) == 0 {
		s.log.Warn("no destinations for source", "source", msg.Source)
		return
	}
	s.log.Info("mirroring message",
		"source", msg.Source,
		"message_id", msg.MessageID,
		"destinations", len(dests),
		"preview", msg.Preview(),
	)
	report := s.p.Engine.Deliver(ctx, msg, dests)
	s.log.Debug("delivery finished",
		"source", msg.Source,
		"message_id", msg.MessageID,
		"mirrored", report.Count(schema.DeliverySuccess),
		"skipped", report.Count(schema.DeliverySkipped),
	)
}
