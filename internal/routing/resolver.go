package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// DefaultLookupTimeout bounds each directory lookup.
const DefaultLookupTimeout = 10 * time.Second

var (
	// ErrNoSources is reported when resolution leaves no usable source.
	ErrNoSources = errors.New("no source chats resolved")
	// ErrBlankName is returned for identifiers with no chat name in them.
	ErrBlankName = errors.New("blank chat identifier")
)

// Resolver builds a Table from configured mappings, resolving symbolic names
// through a Directory.
type Resolver struct {
	dir     schema.Directory
	timeout time.Duration
	log     *slog.Logger
}

// NewResolver creates a Resolver. timeout defaults to DefaultLookupTimeout if zero.
func NewResolver(dir schema.Directory, timeout time.Duration, log *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{dir: dir, timeout: timeout, log: log.With("component", "resolver")}
}

type lookupResult struct {
	id  schema.ResolvedID
	err error
}

// Resolve never fails as a whole: entries whose lookups fail are skipped and
// whatever resolved is returned, possibly an empty table.
//
// A source that cannot be resolved drops its whole entry. A destination that
// cannot be resolved is dropped alone. A source left without destinations is
// dropped. When two entries resolve to the same source ID the later one wins.
func (r *Resolver) Resolve(ctx context.Context, mappings []Mapping) *Table {
	b := newTableBuilder()
	cache := make(map[string]lookupResult)

	for _, m := range mappings {
		if ctx.Err() != nil {
			r.log.Warn("resolution interrupted", "err", ctx.Err())
			break
		}

		src := Normalize(m.Source)
		r.log.Info("resolving source", "source", src)
		srcID, err := r.resolve(ctx, src, cache)
		if err != nil {
			r.log.Warn("failed to resolve source; skipping", "source", src, "err", err)
			continue
		}

		dests := make([]schema.ResolvedID, 0, len(m.Destinations))
		for _, raw := range m.Destinations {
			dst := Normalize(raw)
			id, err := r.resolve(ctx, dst, cache)
			if err != nil {
				r.log.Warn("failed to resolve destination; skipping",
					"destination", dst, "source", src, "err", err)
				continue
			}
			dests = append(dests, id)
		}

		if len(dests) == 0 {
			r.log.Warn("no valid destinations for source; skipping mapping", "source", srcID)
			continue
		}
		if b.set(srcID, dests) {
			r.log.Warn("duplicate source: later mapping replaces earlier one", "source", srcID)
		}
	}

	t := b.build()
	r.log.Info("resolved mappings", "sources", t.Len(), "table", t.String())
	return t
}

func (r *Resolver) resolve(ctx context.Context, id Ident, cache map[string]lookupResult) (schema.ResolvedID, error) {
	if id.Resolved() {
		return id.ID, nil
	}
	if id.Name == "" {
		return 0, ErrBlankName
	}
	if res, ok := cache[id.Name]; ok {
		return res.id, res.err
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resolved, err := r.dir.Lookup(lctx, id.Name)
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.New("lookup timed out after " + r.timeout.String())
	}
	if ctx.Err() == nil {
		cache[id.Name] = lookupResult{id: resolved, err: err}
	}
	if err != nil {
		return 0, err
	}
	r.log.Info("resolved name", "name", id.Name, "id", resolved)
	return resolved, nil
}
