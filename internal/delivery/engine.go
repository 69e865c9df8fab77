// Package delivery fans a qualifying message out to its destinations.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/crystaldolphin/tgmirror/internal/richtext"
	"github.com/crystaldolphin/tgmirror/internal/schema"
	"github.com/crystaldolphin/tgmirror/internal/shared/timeutil"
)

const (
	DefaultDelay           = 2 * time.Second
	DefaultRateLimitMargin = 5 * time.Second
)

// Options tunes an Engine.
type Options struct {
	// Delay is the pause after every successful send; <= 0 disables pacing.
	Delay time.Duration
	// RateLimitMargin is added to every platform-announced wait.
	RateLimitMargin time.Duration
}

// Report is the ordered list of per-destination outcomes of one pass.
type Report []schema.DeliveryOutcome

// Count returns how many outcomes have the given status.
func (r Report) Count(status schema.DeliveryStatus) int {
	n := 0
	for _, o := range r {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Engine delivers messages sequentially, one destination at a time.
type Engine struct {
	sender schema.Sender
	opts   Options
	stats  *Stats
	log    *slog.Logger
	sleep  timeutil.SleepFunc
}

// NewEngine creates an Engine sending through sender. stats may be nil.
func NewEngine(sender schema.Sender, opts Options, stats *Stats, log *slog.Logger) *Engine {
	if stats == nil {
		stats = NewStats()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		sender: sender,
		opts:   opts,
		stats:  stats,
		log:    log.With("component", "delivery"),
		sleep:  timeutil.Sleep,
	}
}

// Stats returns the engine's counters.
func (e *Engine) Stats() *Stats { return e.stats }

// Deliver sends msg to every destination in order. Each destination is
// attempted at most once. A rate limit pauses for the announced wait plus
// the margin and ends the pass; the destinations after it are reported as
// skipped. Cancellation ends the pass immediately.
func (e *Engine) Deliver(ctx context.Context, msg schema.InboundMessage, dests []schema.ResolvedID) Report {
	report := make(Report, 0, len(dests))

	for i, dest := range dests {
		if err := ctx.Err(); err != nil {
			return report.skip(dests[i:], err)
		}

		err := e.send(ctx, msg, dest)
		outcome := schema.DeliveryOutcome{Destination: dest, Status: schema.DeliverySuccess, Err: err}

		switch {
		case err == nil:
			e.stats.mirrored.Add(1)
			e.log.Info("mirrored message",
				"source", msg.Source,
				"message_id", msg.MessageID,
				"destination", dest,
			)
			report = append(report, outcome)
			if e.opts.Delay > 0 {
				if serr := e.sleep(ctx, e.opts.Delay); serr != nil {
					return report.skip(dests[i+1:], serr)
				}
			}
			continue

		case ctx.Err() != nil:
			outcome.Status = schema.DeliveryFailed
			report = append(report, outcome)
			return report.skip(dests[i+1:], ctx.Err())
		}

		if rl, ok := schema.AsRateLimit(err); ok {
			e.stats.rateLimited.Add(1)
			outcome.Status = schema.DeliveryRateLimited
			outcome.Wait = rl.Wait
			report = append(report, outcome)

			pause := rl.Wait + e.opts.RateLimitMargin
			e.log.Warn("rate limited, pausing delivery",
				"destination", dest,
				"wait", rl.Wait,
				"pause", pause,
				"skipped", len(dests)-i-1,
			)
			if serr := e.sleep(ctx, pause); serr != nil {
				return report.skip(dests[i+1:], serr)
			}
			return report.skip(dests[i+1:], nil)
		}

		if schema.IsPermissionDenied(err) {
			e.stats.denied.Add(1)
			outcome.Status = schema.DeliveryPermissionDenied
			e.log.Warn("no permission to post, skipping destination",
				"destination", dest,
				"err", err,
			)
		} else {
			e.stats.failed.Add(1)
			outcome.Status = schema.DeliveryFailed
			e.log.Error("failed to mirror message",
				"source", msg.Source,
				"message_id", msg.MessageID,
				"destination", dest,
				"err", err,
			)
		}
		report = append(report, outcome)
	}
	return report
}

// send performs the single attempt for one destination, including the
// one-time plain-text fallback for styled messages. A rate limit on the
// markup send is returned as is, without a fallback.
func (e *Engine) send(ctx context.Context, msg schema.InboundMessage, dest schema.ResolvedID) error {
	switch {
	case msg.HasMedia():
		// Captions go out as plain text.
		return e.sender.SendMedia(ctx, dest, *msg.Media, msg.Text)

	case len(msg.Annotations) > 0:
		markup, err := richtext.Transcode(msg.Text, msg.Annotations)
		if err == nil {
			if err = e.sender.SendText(ctx, dest, markup, true); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return err
		}
		if _, limited := schema.AsRateLimit(err); limited {
			return err
		}
		e.stats.fallbacks.Add(1)
		e.log.Debug("markup send failed, falling back to plain text",
			"destination", dest,
			"err", err,
		)
		return e.sender.SendText(ctx, dest, msg.Text, false)

	default:
		return e.sender.SendText(ctx, dest, msg.Text, false)
	}
}

func (r Report) skip(dests []schema.ResolvedID, err error) Report {
	for _, d := range dests {
		r = append(r, schema.DeliveryOutcome{Destination: d, Status: schema.DeliverySkipped, Err: err})
	}
	return r
}
