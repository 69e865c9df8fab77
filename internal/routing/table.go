package routing

import (
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// Mapping is one configured source with its destinations, in declaration order.
type Mapping struct {
	Source       Raw   `json:"source" yaml:"source"`
	Destinations []Raw `json:"destinations" yaml:"destinations"`
}

// Table maps each source chat to an ordered, non-empty list of destinations.
// A Table is never modified after Resolve returns it.
type Table struct {
	routes map[schema.ResolvedID][]schema.ResolvedID
	order  []schema.ResolvedID
}

// tableOf builds a table directly from resolved IDs, dropping sources that
// have no destinations. Later duplicates of a source replace earlier ones.
func tableOf(entries map[schema.ResolvedID][]schema.ResolvedID, order []schema.ResolvedID) *Table {
	b := newTableBuilder()
	for _, src := range order {
		if dests, ok := entries[src]; ok {
			b.set(src, dests)
		}
	}
	return b.build()
}

// Len returns the number of sources.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Sources returns the source IDs in first-declaration order.
func (t *Table) Sources() []schema.ResolvedID {
	if t == nil {
		return nil
	}
	out := make([]schema.ResolvedID, len(t.order))
	copy(out, t.order)
	return out
}

// Destinations returns a copy of the destinations for src, or nil.
func (t *Table) Destinations(src schema.ResolvedID) []schema.ResolvedID {
	if t == nil {
		return nil
	}
	dests := t.routes[src]
	if len(dests) == 0 {
		return nil
	}
	out := make([]schema.ResolvedID, len(dests))
	copy(out, dests)
	return out
}

func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, src := range t.Sources() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(src.String())
		sb.WriteString(": [")
		for j, d := range t.routes[src] {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.String())
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
	return sb.String()
}

type tableEntry struct {
	Source       schema.ResolvedID   `json:"source"`
	Destinations []schema.ResolvedID `json:"destinations"`
}

// MarshalJSON renders the table as an ordered list of entries.
func (t *Table) MarshalJSON() ([]byte, error) {
	entries := make([]tableEntry, 0, t.Len())
	for _, src := range t.Sources() {
		entries = append(entries, tableEntry{Source: src, Destinations: t.routes[src]})
	}
	return json.Marshal(entries)
}

type tableBuilder struct {
	routes map[schema.ResolvedID][]schema.ResolvedID
	order  []schema.ResolvedID
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{routes: make(map[schema.ResolvedID][]schema.ResolvedID)}
}

// set stores dests for src and reports whether an earlier entry was replaced.
func (b *tableBuilder) set(src schema.ResolvedID, dests []schema.ResolvedID) bool {
	if len(dests) == 0 {
		return false
	}
	_, replaced := b.routes[src]
	if !replaced {
		b.order = append(b.order, src)
	}
	cp := make([]schema.ResolvedID, len(dests))
	copy(cp, dests)
	b.routes[src] = cp
	return replaced
}

func (b *tableBuilder) build() *Table {
	return &Table{routes: b.routes, order: b.order}
}

// Snapshot holds the table currently used by the dispatcher. The supervisor
// stores a fully built table; readers never see a partial rebuild.
type Snapshot struct {
	current atomic.Pointer[Table]
}

// NewSnapshot returns a Snapshot holding an empty table.
func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	s.current.Store(newTableBuilder().build())
	return s
}

// Load returns the current table; never nil.
func (s *Snapshot) Load() *Table {
	if t := s.current.Load(); t != nil {
		return t
	}
	return newTableBuilder().build()
}

// Store replaces the current table.
func (s *Snapshot) Store(t *Table) {
	if t == nil {
		t = newTableBuilder().build()
	}
	s.current.Store(t)
}
