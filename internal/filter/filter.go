// Package filter decides which inbound messages are worth mirroring.
package filter

import (
	"log/slog"
	"strings"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// Reason explains a filter decision.
type Reason string

const (
	ReasonAccepted   Reason = "accepted"
	ReasonService    Reason = "service message"
	ReasonEmpty      Reason = "empty body without media"
	ReasonNoKeywords Reason = "no keyword matched"
)

// Filter applies the content rules. It is immutable after New and safe for
// concurrent use.
type Filter struct {
	keywords []string
	log      *slog.Logger
}

// New builds a Filter. Keywords are matched case-insensitively as substrings;
// blank entries are dropped. An empty list accepts any non-empty message.
func New(keywords []string, log *slog.Logger) *Filter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	return &Filter{keywords: kw, log: log.With("component", "filter")}
}

// Keywords returns the normalised keyword list.
func (f *Filter) Keywords() []string {
	out := make([]string, len(f.keywords))
	copy(out, f.keywords)
	return out
}

// Accepts reports whether msg should be mirrored.
func (f *Filter) Accepts(msg schema.InboundMessage) bool {
	ok, _ := f.Check(msg)
	return ok
}

// Check is Accepts with the reason for the decision.
func (f *Filter) Check(msg schema.InboundMessage) (bool, Reason) {
	reason := f.evaluate(msg)
	if reason != ReasonAccepted {
		f.log.Debug("message filtered",
			"source", msg.Source,
			"message_id", msg.MessageID,
			"reason", string(reason),
		)
		return false, reason
	}
	return true, reason
}

func (f *Filter) evaluate(msg schema.InboundMessage) Reason {
	if msg.Service {
		return ReasonService
	}
	if strings.TrimSpace(msg.Text) == "" && !msg.HasMedia() {
		return ReasonEmpty
	}
	if len(f.keywords) == 0 {
		return ReasonAccepted
	}
	body := strings.ToLower(msg.Text)
	for _, k := range f.keywords {
		if strings.Contains(body, k) {
			return ReasonAccepted
		}
	}
	return ReasonNoKeywords
}
