// Package routing turns configured source→destination declarations into the
// immutable routing table the dispatcher reads.
package routing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// Raw is an identifier as written in the config: an integer or a string.
type Raw struct {
	num   int64
	str   string
	isNum bool
}

// RawInt returns a Raw holding an integer chat ID.
func RawInt(n int64) Raw { return Raw{num: n, isNum: true} }

// RawString returns a Raw holding a string, numeric or symbolic.
func RawString(s string) Raw { return Raw{str: s} }

// IsZero reports whether r holds no identifier: never set, blank, or a
// link or "@" with no name after it.
func (r Raw) IsZero() bool { return !r.isNum && canonicalName(strings.TrimSpace(r.str)) == "" }

func (r Raw) String() string {
	if r.isNum {
		return strconv.FormatInt(r.num, 10)
	}
	return r.str
}

func (r *Raw) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a number or a string, got %s", data)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("identifier %s is not an integer", n)
	}
	*r = RawInt(v)
	return nil
}

func (r Raw) MarshalJSON() ([]byte, error) {
	if r.isNum {
		return json.Marshal(r.num)
	}
	return json.Marshal(r.str)
}

func (r *Raw) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: identifier must be a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		v, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = RawInt(v)
		return nil
	}
	*r = RawString(node.Value)
	return nil
}

func (r Raw) MarshalYAML() (any, error) {
	if r.isNum {
		return r.num, nil
	}
	return r.str, nil
}

// Ident is a normalized identifier: either a resolved ID or a symbolic name
// that still needs a directory lookup.
type Ident struct {
	ID   schema.ResolvedID
	Name string

	symbolic bool
}

// Resolved reports whether no lookup is needed.
func (i Ident) Resolved() bool { return !i.symbolic }

func (i Ident) String() string {
	switch {
	case i.Resolved():
		return i.ID.String()
	case i.Name == "":
		return "(blank)"
	}
	return i.Name
}

// Normalize canonicalizes r. Integers and numeric strings ("-100123") become
// resolved IDs; anything else becomes a symbolic "@name" token. Blank input
// stays symbolic with an empty Name, which no lookup can resolve. Never fails.
func Normalize(r Raw) Ident {
	if r.isNum {
		return Ident{ID: schema.ResolvedID(r.num)}
	}
	s := strings.TrimSpace(r.str)
	if isNumeric(s) {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Ident{ID: schema.ResolvedID(v)}
		}
	}
	return Ident{Name: canonicalName(s), symbolic: true}
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// canonicalName maps "https://t.me/name", "t.me/name" and "name" to "@name".
// It returns "" when no name is left.
func canonicalName(s string) string {
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	if rest, ok := strings.CutPrefix(s, "t.me/"); ok {
		s = strings.TrimSuffix(rest, "/")
	}
	switch {
	case s == "" || s == "@":
		return ""
	case strings.HasPrefix(s, "@"):
		return s
	}
	return "@" + s
}
