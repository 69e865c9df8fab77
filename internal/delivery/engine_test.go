package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type sent struct {
	dest   schema.ResolvedID
	text   string
	markup bool
	media  bool
}

type fakeSender struct {
	calls []sent
	// errs maps a destination to the errors returned by successive calls.
	errs map[schema.ResolvedID][]error
}

func (f *fakeSender) next(dest schema.ResolvedID) error {
	q := f.errs[dest]
	if len(q) == 0 {
		return nil
	}
	f.errs[dest] = q[1:]
	return q[0]
}

func (f *fakeSender) SendText(_ context.Context, dest schema.ResolvedID, text string, markup bool) error {
	f.calls = append(f.calls, sent{dest: dest, text: text, markup: markup})
	return f.next(dest)
}

func (f *fakeSender) SendMedia(_ context.Context, dest schema.ResolvedID, _ schema.MediaRef, caption string) error {
	f.calls = append(f.calls, sent{dest: dest, text: caption, media: true})
	return f.next(dest)
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

func newTestEngine(sender *fakeSender, opts Options) (*Engine, *sleepRecorder) {
	if sender.errs == nil {
		sender.errs = map[schema.ResolvedID][]error{}
	}
	rec := &sleepRecorder{}
	e := NewEngine(sender, opts, nil, nil)
	e.sleep = rec.sleep
	return e, rec
}

func plain(s string) schema.InboundMessage {
	return schema.InboundMessage{Source: 555, MessageID: 7, Text: s}
}

func statuses(r Report) []schema.DeliveryStatus {
	out := make([]schema.DeliveryStatus, len(r))
	for i, o := range r {
		out[i] = o.Status
	}
	return out
}

func assertStatuses(t *testing.T, r Report, want ...schema.DeliveryStatus) {
	t.Helper()
	got := statuses(r)
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}
}

// ─── Send selection ─────────────────────────────────────────────────────────

func TestDeliver_PlainText(t *testing.T) {
	s := &fakeSender{}
	e, _ := newTestEngine(s, Options{})

	r := e.Deliver(context.Background(), plain("a < b"), []schema.ResolvedID{1})
	assertStatuses(t, r, schema.DeliverySuccess)
	if len(s.calls) != 1 || s.calls[0].markup || s.calls[0].text != "a < b" {
		t.Errorf("unexpected calls %+v", s.calls)
	}
}

func TestDeliver_StyledUsesMarkup(t *testing.T) {
	s := &fakeSender{}
	e, _ := newTestEngine(s, Options{})
	msg := plain("Hello world")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Offset: 0, Length: 5}}

	e.Deliver(context.Background(), msg, []schema.ResolvedID{1})
	if len(s.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(s.calls))
	}
	if !s.calls[0].markup || s.calls[0].text != "<b>Hello</b> world" {
		t.Errorf("unexpected call %+v", s.calls[0])
	}
}

func TestDeliver_MarkupFailureFallsBackOnce(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{1: {errors.New("can't parse entities")}}}
	e, _ := newTestEngine(s, Options{})
	msg := plain("Hello world")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Offset: 0, Length: 5}}

	r := e.Deliver(context.Background(), msg, []schema.ResolvedID{1})
	assertStatuses(t, r, schema.DeliverySuccess)
	if len(s.calls) != 2 {
		t.Fatalf("expected markup then plain, got %+v", s.calls)
	}
	if s.calls[1].markup || s.calls[1].text != "Hello world" {
		t.Errorf("fallback call = %+v", s.calls[1])
	}
	if got := e.Stats().Snapshot().Fallbacks; got != 1 {
		t.Errorf("Fallbacks = %d, want 1", got)
	}
}

func TestDeliver_TranscodeErrorFallsBack(t *testing.T) {
	s := &fakeSender{}
	e, _ := newTestEngine(s, Options{})
	msg := plain("short")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Offset: 2, Length: 50}}

	r := e.Deliver(context.Background(), msg, []schema.ResolvedID{1})
	assertStatuses(t, r, schema.DeliverySuccess)
	if len(s.calls) != 1 || s.calls[0].markup || s.calls[0].text != "short" {
		t.Errorf("expected a single plain send, got %+v", s.calls)
	}
}

func TestDeliver_FallbackFailureIsFailed(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSender{errs: map[schema.ResolvedID][]error{1: {boom, boom}}}
	e, _ := newTestEngine(s, Options{})
	msg := plain("x")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleItalic, Length: 1}}

	r := e.Deliver(context.Background(), msg, []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliveryFailed, schema.DeliverySuccess)
	if len(s.calls) != 3 {
		t.Errorf("expected 3 calls (markup, plain, next dest), got %d", len(s.calls))
	}
}

func TestDeliver_MediaCaptionPlain(t *testing.T) {
	s := &fakeSender{}
	e, _ := newTestEngine(s, Options{})
	msg := plain("caption <b>")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Length: 7}}
	msg.Media = &schema.MediaRef{ChatID: 555, MessageID: 7, Kind: "photo"}

	e.Deliver(context.Background(), msg, []schema.ResolvedID{1})
	if len(s.calls) != 1 || !s.calls[0].media || s.calls[0].text != "caption <b>" {
		t.Errorf("unexpected calls %+v", s.calls)
	}
}

// ─── Pacing and failures ────────────────────────────────────────────────────

func TestDeliver_PacingAfterEverySuccess(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{2: {errors.New("x")}}}
	e, rec := newTestEngine(s, Options{Delay: 2 * time.Second})

	e.Deliver(context.Background(), plain("hi"), []schema.ResolvedID{1, 2, 3})
	if len(rec.slept) != 2 {
		t.Fatalf("slept %v, want two pacing pauses", rec.slept)
	}
	for _, d := range rec.slept {
		if d != 2*time.Second {
			t.Errorf("pause = %v, want 2s", d)
		}
	}
}

func TestDeliver_NoPacingWhenDisabled(t *testing.T) {
	s := &fakeSender{}
	e, rec := newTestEngine(s, Options{Delay: 0})
	e.Deliver(context.Background(), plain("hi"), []schema.ResolvedID{1, 2})
	if len(rec.slept) != 0 {
		t.Errorf("slept %v with pacing disabled", rec.slept)
	}
}

func TestDeliver_PermissionDeniedContinues(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{
		1: {&schema.PermissionError{Err: errors.New("CHAT_WRITE_FORBIDDEN")}},
	}}
	e, _ := newTestEngine(s, Options{})

	r := e.Deliver(context.Background(), plain("hi"), []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliveryPermissionDenied, schema.DeliverySuccess)

	snap := e.Stats().Snapshot()
	if snap.Denied != 1 || snap.Mirrored != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestDeliver_OtherErrorContinues(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{2: {errors.New("network")}}}
	e, _ := newTestEngine(s, Options{})

	r := e.Deliver(context.Background(), plain("hi"), []schema.ResolvedID{1, 2, 3})
	assertStatuses(t, r, schema.DeliverySuccess, schema.DeliveryFailed, schema.DeliverySuccess)
	if len(s.calls) != 3 {
		t.Errorf("destination retried or skipped: %+v", s.calls)
	}
}

// ─── Rate limiting ──────────────────────────────────────────────────────────

func TestDeliver_RateLimitPausesAndStops(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{
		2: {&schema.RateLimitError{Wait: 30 * time.Second}},
	}}
	e, rec := newTestEngine(s, Options{RateLimitMargin: 5 * time.Second})

	r := e.Deliver(context.Background(), plain("hi"), []schema.ResolvedID{1, 2, 3, 4})
	assertStatuses(t, r,
		schema.DeliverySuccess,
		schema.DeliveryRateLimited,
		schema.DeliverySkipped,
		schema.DeliverySkipped,
	)
	if r[1].Wait != 30*time.Second {
		t.Errorf("Wait = %v", r[1].Wait)
	}
	if len(rec.slept) != 1 || rec.slept[0] < 35*time.Second {
		t.Errorf("slept %v, want one pause of at least 35s", rec.slept)
	}
	for _, c := range s.calls {
		if c.dest == 3 || c.dest == 4 {
			t.Errorf("destination %d attempted after rate limit", c.dest)
		}
	}
}

func TestDeliver_RateLimitOnFallbackIsRecorded(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{
		1: {errors.New("bad markup"), &schema.RateLimitError{Wait: time.Second}},
	}}
	e, rec := newTestEngine(s, Options{RateLimitMargin: 5 * time.Second})
	msg := plain("x")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Length: 1}}

	r := e.Deliver(context.Background(), msg, []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliveryRateLimited, schema.DeliverySkipped)
	if len(rec.slept) != 1 || rec.slept[0] != 6*time.Second {
		t.Errorf("slept %v, want [6s]", rec.slept)
	}
}

func TestDeliver_RateLimitOnMarkupSkipsFallback(t *testing.T) {
	s := &fakeSender{errs: map[schema.ResolvedID][]error{
		1: {&schema.RateLimitError{Wait: 30 * time.Second}},
	}}
	e, rec := newTestEngine(s, Options{RateLimitMargin: 5 * time.Second})
	msg := plain("Hello world")
	msg.Annotations = []schema.StyleAnnotation{{Kind: schema.StyleBold, Offset: 0, Length: 5}}

	r := e.Deliver(context.Background(), msg, []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliveryRateLimited, schema.DeliverySkipped)
	if len(s.calls) != 1 || !s.calls[0].markup {
		t.Errorf("expected only the markup attempt, got %+v", s.calls)
	}
	if got := e.Stats().Snapshot().Fallbacks; got != 0 {
		t.Errorf("Fallbacks = %d, want 0", got)
	}
	if len(rec.slept) != 1 || rec.slept[0] != 35*time.Second {
		t.Errorf("slept %v, want [35s]", rec.slept)
	}
}

// ─── Cancellation ───────────────────────────────────────────────────────────

func TestDeliver_CancelledBeforeStart(t *testing.T) {
	s := &fakeSender{}
	e, _ := newTestEngine(s, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := e.Deliver(ctx, plain("hi"), []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliverySkipped, schema.DeliverySkipped)
	if len(s.calls) != 0 {
		t.Errorf("sent after cancellation: %+v", s.calls)
	}
}

func TestDeliver_CancelDuringPacing(t *testing.T) {
	s := &fakeSender{}
	e := NewEngine(s, Options{Delay: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	r := e.Deliver(ctx, plain("hi"), []schema.ResolvedID{1, 2})
	assertStatuses(t, r, schema.DeliverySuccess, schema.DeliverySkipped)
	if !errors.Is(r[1].Err, context.Canceled) {
		t.Errorf("skipped outcome error = %v", r[1].Err)
	}
}

func TestReport_Count(t *testing.T) {
	r := Report{
		{Status: schema.DeliverySuccess},
		{Status: schema.DeliveryFailed},
		{Status: schema.DeliverySuccess},
	}
	if r.Count(schema.DeliverySuccess) != 2 || r.Count(schema.DeliverySkipped) != 0 {
		t.Errorf("unexpected counts for %v", statuses(r))
	}
}
