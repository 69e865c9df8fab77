// Package channels adapts chat platforms to the mirroring core.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/tgmirror/internal/bus"
	"github.com/crystaldolphin/tgmirror/internal/schema"
)

const (
	defaultPollTimeout = 30
	defaultBufferSize  = 64
	defaultRetryAfter  = 60 * time.Second
)

// ErrNotConnected is returned by calls made before Connect succeeds.
var ErrNotConnected = errors.New("telegram: not connected")

// TelegramOptions configures a TelegramClient.
type TelegramOptions struct {
	Token    string
	Endpoint string // Bot API URL format with two %s verbs; empty uses the public API
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	// BufferSize bounds the inbound queue between poller and dispatcher.
	BufferSize int
	// Name identifies this client in logs.
	Name string
	// HTTPClient overrides the transport; tests point it at a fake server.
	HTTPClient *http.Client
}

// TelegramClient implements schema.MessagingClient over the Bot API using
// getUpdates long polling.
type TelegramClient struct {
	opts TelegramOptions
	http *http.Client
	log  *slog.Logger

	mu  sync.RWMutex
	bot *tgbotapi.BotAPI

	// offset survives reconnects so no update is delivered twice.
	offset atomic.Int64
}

var _ schema.MessagingClient = (*TelegramClient)(nil)

// NewTelegramClient creates a client; nothing is contacted until Connect.
func NewTelegramClient(opts TelegramOptions, log *slog.Logger) *TelegramClient {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: time.Duration(opts.PollTimeout+15) * time.Second}
	}
	return &TelegramClient{
		opts: opts,
		http: hc,
		log:  log.With("component", "telegram", "client", opts.Name),
	}
}

// Connect creates the bot session and verifies the token with getMe.
func (t *TelegramClient) Connect(ctx context.Context) error {
	if t.opts.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := withContext(ctx, func() (*tgbotapi.BotAPI, error) {
		return tgbotapi.NewBotAPIWithClient(t.opts.Token, t.opts.Endpoint, t.http)
	})
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", classifyError(err))
	}

	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()

	t.log.Info("connected", "username", bot.Self.UserName)
	return nil
}

// Disconnect drops the session. Safe to call when not connected.
func (t *TelegramClient) Disconnect() {
	t.mu.Lock()
	wasConnected := t.bot != nil
	t.bot = nil
	t.mu.Unlock()

	t.http.CloseIdleConnections()
	if wasConnected {
		t.log.Info("disconnected")
	}
}

func (t *TelegramClient) current() (*tgbotapi.BotAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, ErrNotConnected
	}
	return t.bot, nil
}

// Lookup resolves a public @username to its chat ID with getChat.
func (t *TelegramClient) Lookup(ctx context.Context, name string) (schema.ResolvedID, error) {
	bot, err := t.current()
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: name}}
	chat, err := withContext(ctx, func() (tgbotapi.Chat, error) {
		return bot.GetChat(cfg)
	})
	if err != nil {
		return 0, fmt.Errorf("telegram: lookup %s: %w", name, classifyError(err))
	}
	return schema.ResolvedID(chat.ID), nil
}

// SendText sends text to dest, as HTML when markup is set.
func (t *TelegramClient) SendText(ctx context.Context, dest schema.ResolvedID, text string, markup bool) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	m := tgbotapi.NewMessage(int64(dest), text)
	if markup {
		m.ParseMode = tgbotapi.ModeHTML
	}
	_, err = withContext(ctx, func() (tgbotapi.Message, error) {
		return bot.Send(m)
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", dest, classifyError(err))
	}
	return nil
}

// SendMedia re-sends stored media with copyMessage, replacing its caption.
func (t *TelegramClient) SendMedia(ctx context.Context, dest schema.ResolvedID, media schema.MediaRef, caption string) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	c := tgbotapi.NewCopyMessage(int64(dest), int64(media.ChatID), media.MessageID)
	c.Caption = caption
	_, err = withContext(ctx, func() (tgbotapi.MessageID, error) {
		return bot.CopyMessage(c)
	})
	if err != nil {
		return fmt.Errorf("telegram: copy %s to %d: %w", media.Kind, dest, classifyError(err))
	}
	return nil
}

// Listen long-polls for messages and channel posts from sources and hands
// them to handler one at a time. It returns when polling fails or ctx ends.
//
// A polling failure only stops the reader: messages already taken off the
// server are still handed to handler, under ctx, before Listen returns.
func (t *TelegramClient) Listen(ctx context.Context, sources []schema.ResolvedID, handler schema.MessageHandler) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	allowed := make(map[schema.ResolvedID]struct{}, len(sources))
	for _, s := range sources {
		allowed[s] = struct{}{}
	}

	inbound := bus.NewInboundBus(t.opts.BufferSize)
	var g errgroup.Group

	g.Go(func() error {
		defer inbound.Close()
		return t.poll(ctx, bot, allowed, inbound)
	})
	g.Go(func() error {
		for msg := range inbound.Subscribe() {
			if err := ctx.Err(); err != nil {
				return err
			}
			handler(ctx, msg)
		}
		return nil
	})

	t.log.Info("listening", "sources", len(allowed))
	err = g.Wait()
	if n := inbound.Len(); n > 0 {
		t.log.Warn("listen stopped with undelivered messages", "pending", n)
	}
	return err
}

func (t *TelegramClient) poll(ctx context.Context, bot *tgbotapi.BotAPI, allowed map[schema.ResolvedID]struct{}, inbound *bus.InboundBus) error {
	for {
		cfg := tgbotapi.NewUpdate(int(t.offset.Load()))
		cfg.Timeout = t.opts.PollTimeout
		cfg.AllowedUpdates = []string{"message", "channel_post"}

		updates, err := withContext(ctx, func() ([]tgbotapi.Update, error) {
			return bot.GetUpdates(cfg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("telegram: get updates: %w", classifyError(err))
		}

		for _, u := range updates {
			if next := int64(u.UpdateID) + 1; next > t.offset.Load() {
				t.offset.Store(next)
			}
			m := u.Message
			if m == nil {
				m = u.ChannelPost
			}
			if m == nil || m.Chat == nil {
				continue
			}
			if _, ok := allowed[schema.ResolvedID(m.Chat.ID)]; !ok {
				continue
			}
			if err := inbound.Publish(ctx, convertMessage(m)); err != nil {
				return err
			}
		}
	}
}

// withContext runs a blocking Bot API call and returns early when ctx ends.
// The call itself keeps running until its HTTP request completes.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

var permissionMarkers = []string{
	"not enough rights",
	"chat_write_forbidden",
	"have no rights",
	"bot is not a member",
	"bot was kicked",
}

// classifyError maps Bot API failures onto the core's signal errors.
func classifyError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0 {
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		return &schema.RateLimitError{Wait: wait, Err: err}
	}
	if apiErr.Code == http.StatusForbidden {
		return &schema.PermissionError{Err: err}
	}
	desc := strings.ToLower(apiErr.Message)
	for _, marker := range permissionMarkers {
		if strings.Contains(desc, marker) {
			return &schema.PermissionError{Err: err}
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// Message conversion
// ---------------------------------------------------------------------------

func convertMessage(m *tgbotapi.Message) schema.InboundMessage {
	msg := schema.InboundMessage{
		Source:    schema.ResolvedID(m.Chat.ID),
		MessageID: m.MessageID,
		Service:   isServiceMessage(m),
	}

	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	msg.Text = text
	msg.Annotations = convertEntities(entities)

	if kind := mediaKind(m); kind != "" {
		msg.Media = &schema.MediaRef{ChatID: msg.Source, MessageID: m.MessageID, Kind: kind}
	}
	return msg
}

func convertEntities(entities []tgbotapi.MessageEntity) []schema.StyleAnnotation {
	if len(entities) == 0 {
		return nil
	}
	out := make([]schema.StyleAnnotation, 0, len(entities))
	for _, e := range entities {
		a := schema.StyleAnnotation{Offset: e.Offset, Length: e.Length}
		switch e.Type {
		case "bold":
			a.Kind = schema.StyleBold
		case "italic":
			a.Kind = schema.StyleItalic
		case "code":
			a.Kind = schema.StyleCode
		case "pre":
			a.Kind = schema.StylePre
			a.Language = e.Language
		case "text_link":
			a.Kind = schema.StyleTextLink
			a.URL = e.URL
		case "url":
			a.Kind = schema.StyleURL
		case "text_mention":
			a.Kind = schema.StyleMention
			if e.User != nil {
				a.UserID = e.User.ID
			}
		case "underline":
			a.Kind = schema.StyleUnderline
		case "strikethrough":
			a.Kind = schema.StyleStrikethrough
		case "spoiler":
			a.Kind = schema.StyleSpoiler
		default:
			a.Kind = schema.StyleUnsupported
		}
		out = append(out, a)
	}
	return out
}

func isServiceMessage(m *tgbotapi.Message) bool {
	return len(m.NewChatMembers) > 0 ||
		m.LeftChatMember != nil ||
		m.NewChatTitle != "" ||
		len(m.NewChatPhoto) > 0 ||
		m.DeleteChatPhoto ||
		m.GroupChatCreated ||
		m.SuperGroupChatCreated ||
		m.ChannelChatCreated ||
		m.MigrateToChatID != 0 ||
		m.MigrateFromChatID != 0 ||
		m.PinnedMessage != nil
}

func mediaKind(m *tgbotapi.Message) string {
	switch {
	case len(m.Photo) > 0:
		return "photo"
	case m.Video != nil:
		return "video"
	case m.Animation != nil:
		// Animations also carry a Document; check them first.
		return "animation"
	case m.Document != nil:
		return "document"
	case m.Audio != nil:
		return "audio"
	case m.Voice != nil:
		return "voice"
	case m.Sticker != nil:
		return "sticker"
	case m.VideoNote != nil:
		return "video_note"
	default:
		return ""
	}
}

// ---------------------------------------------------------------------------
// Library logging
// ---------------------------------------------------------------------------

type botLogger struct{ log *slog.Logger }

func (l botLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RouteLibraryLogs sends the Bot API library's own log lines to log at debug level.
func RouteLibraryLogs(log *slog.Logger) {
	if log == nil {
		return
	}
	_ = tgbotapi.SetLogger(botLogger{log: log.With("component", "tgbotapi")})
}
