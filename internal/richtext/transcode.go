// Package richtext converts Telegram message entities into the HTML subset
// accepted by the Bot API's HTML parse mode.
package richtext

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// ErrOutOfRange is returned when an annotation does not fit inside the text.
var ErrOutOfRange = errors.New("annotation outside text")

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes the markup metacharacters of literal text.
func Escape(s string) string {
	return textEscaper.Replace(s)
}

// escapeAttr escapes a value placed inside a double-quoted attribute.
func escapeAttr(s string) string {
	return html.EscapeString(s)
}

// Transcode renders text with its annotations as inline markup.
//
// Every annotation contributes an opening tag at Offset and a closing tag at
// Offset+Length. Tags scheduled for the same position are written in the order
// the annotations were given, so nesting follows caller order. Offsets are
// UTF-16 code units. Unsupported kinds, mentions without a user ID and text
// links without a URL produce no tags.
func Transcode(text string, annotations []schema.StyleAnnotation) (string, error) {
	if len(annotations) == 0 {
		return Escape(text), nil
	}

	units := utf16.Encode([]rune(text))
	inserts := make(map[int][]string)
	for _, a := range annotations {
		if a.Kind != schema.StyleUnsupported && !inRange(a, len(units)) {
			return "", fmt.Errorf("%w: %s at offset %d length %d, text has %d units",
				ErrOutOfRange, a.Kind, a.Offset, a.Length, len(units))
		}
		open, close, ok := tagsFor(a, units)
		if !ok {
			continue
		}
		inserts[a.Offset] = append(inserts[a.Offset], open)
		inserts[a.Offset+a.Length] = append(inserts[a.Offset+a.Length], close)
	}
	if len(inserts) == 0 {
		return Escape(text), nil
	}

	var sb strings.Builder
	sb.Grow(len(text) + 16*len(inserts))
	emit := func(pos int) {
		for _, tag := range inserts[pos] {
			sb.WriteString(tag)
		}
	}

	pos := 0
	for _, r := range text {
		emit(pos)
		writeEscapedRune(&sb, r)
		w := utf16.RuneLen(r)
		if w < 1 {
			w = 1
		}
		// A boundary inside a surrogate pair lands after the character.
		if w == 2 {
			emit(pos + 1)
		}
		pos += w
	}
	emit(pos)
	return sb.String(), nil
}

func writeEscapedRune(sb *strings.Builder, r rune) {
	switch r {
	case '&':
		sb.WriteString("&amp;")
	case '<':
		sb.WriteString("&lt;")
	case '>':
		sb.WriteString("&gt;")
	default:
		sb.WriteRune(r)
	}
}

// tagsFor returns the tag pair for a; ok is false when a produces no markup.
func tagsFor(a schema.StyleAnnotation, units []uint16) (open, close string, ok bool) {
	switch a.Kind {
	case schema.StyleBold:
		return "<b>", "</b>", true
	case schema.StyleItalic:
		return "<i>", "</i>", true
	case schema.StyleCode:
		return "<code>", "</code>", true
	case schema.StylePre:
		if a.Language != "" {
			return `<pre><code class="language-` + escapeAttr(a.Language) + `">`, "</code></pre>", true
		}
		return "<pre>", "</pre>", true
	case schema.StyleTextLink:
		if a.URL == "" {
			return "", "", false
		}
		return `<a href="` + escapeAttr(a.URL) + `">`, "</a>", true
	case schema.StyleURL:
		if !inRange(a, len(units)) {
			return "", "", false
		}
		href := string(utf16.Decode(units[a.Offset : a.Offset+a.Length]))
		return `<a href="` + escapeAttr(href) + `">`, "</a>", true
	case schema.StyleMention:
		if a.UserID == 0 {
			return "", "", false
		}
		return `<a href="tg://user?id=` + strconv.FormatInt(a.UserID, 10) + `">`, "</a>", true
	case schema.StyleUnderline:
		return "<u>", "</u>", true
	case schema.StyleStrikethrough:
		return "<s>", "</s>", true
	case schema.StyleSpoiler:
		return "<tg-spoiler>", "</tg-spoiler>", true
	default:
		return "", "", false
	}
}

func inRange(a schema.StyleAnnotation, n int) bool {
	return a.Offset >= 0 && a.Length >= 0 && a.Offset+a.Length <= n
}
