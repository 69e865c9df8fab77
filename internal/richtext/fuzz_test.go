package richtext

import (
	"strings"
	"testing"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// FuzzTranscode builds annotations from fuzz bytes. No input may panic, and
// every successful result must have balanced tags.
func FuzzTranscode(f *testing.F) {
	f.Add("Hello world", []byte{1, 0, 5})
	f.Add("👍 ok", []byte{1, 3, 2, 2, 0, 1})
	f.Add("a<b>&c", []byte{6, 0, 6, 3, 1, 2})
	f.Add("", []byte{})
	f.Add("x", []byte{0, 0, 1, 11, 0, 1})

	f.Fuzz(func(t *testing.T, text string, spec []byte) {
		var anns []schema.StyleAnnotation
		for i := 0; i+2 < len(spec); i += 3 {
			anns = append(anns, schema.StyleAnnotation{
				Kind:   schema.StyleKind(spec[i] % 12),
				Offset: int(spec[i+1]),
				Length: int(spec[i+2]),
				URL:    "https://example.org",
				UserID: 1,
			})
		}

		out, err := Transcode(text, anns)
		if err != nil {
			return
		}
		opens, closes := countTags(out)
		if opens != closes {
			t.Errorf("unbalanced tags: %q", out)
		}
		if len(anns) == 0 && out != Escape(text) {
			t.Errorf("no annotations: got %q, want %q", out, Escape(text))
		}
		if strings.Count(out, "&") < strings.Count(text, "&") {
			t.Errorf("ampersands lost: %q", out)
		}
	})
}
