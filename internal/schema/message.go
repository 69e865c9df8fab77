package schema

import (
	"strconv"
	"strings"

	"github.com/crystaldolphin/tgmirror/internal/shared/stringutils"
)

// ResolvedID is a Telegram chat identifier. Channels and supergroups use the
// negative "-100…" form the Bot API returns.
type ResolvedID int64

func (id ResolvedID) String() string { return strconv.FormatInt(int64(id), 10) }

// StyleKind is the closed set of entity kinds the transcoder understands.
// Anything the platform sends that is not listed maps to StyleUnsupported.
type StyleKind int

const (
	StyleUnsupported StyleKind = iota
	StyleBold
	StyleItalic
	StyleCode
	StylePre
	StyleTextLink
	StyleURL
	StyleMention
	StyleUnderline
	StyleStrikethrough
	StyleSpoiler
)

var styleNames = map[StyleKind]string{
	StyleUnsupported:   "unsupported",
	StyleBold:          "bold",
	StyleItalic:        "italic",
	StyleCode:          "code",
	StylePre:           "pre",
	StyleTextLink:      "text_link",
	StyleURL:           "url",
	StyleMention:       "text_mention",
	StyleUnderline:     "underline",
	StyleStrikethrough: "strikethrough",
	StyleSpoiler:       "spoiler",
}

func (k StyleKind) String() string {
	if n, ok := styleNames[k]; ok {
		return n
	}
	return "unsupported"
}

// StyleAnnotation is a positioned formatting directive attached to a message.
// Offset and Length are counted in UTF-16 code units, as on the wire.
type StyleAnnotation struct {
	Kind     StyleKind
	Offset   int
	Length   int
	URL      string // StyleTextLink only
	UserID   int64  // StyleMention only; zero when unknown
	Language string // StylePre only; optional
}

// MediaRef points at media already stored on the platform so it can be
// re-sent without downloading it.
type MediaRef struct {
	ChatID    ResolvedID
	MessageID int
	Kind      string // "photo", "video", "document", …
}

// InboundMessage is one event read from a source chat.
type InboundMessage struct {
	Source      ResolvedID
	MessageID   int
	Text        string // message text, or the caption for media
	Annotations []StyleAnnotation
	Media       *MediaRef // nil when the message carries no media
	Service     bool      // join/leave/pin/title-change and similar events
}

// HasMedia reports whether the message carries an attachment.
func (m InboundMessage) HasMedia() bool { return m.Media != nil }

// Preview returns a short single-line snippet of the text for logging.
func (m InboundMessage) Preview() string {
	return stringutils.Truncate(strings.ReplaceAll(m.Text, "\n", " "), 80)
}
