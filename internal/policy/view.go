package policy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gobwas/glob"

	"github.com/applockd/applockd/pkg/types"
)

// View is the engine-facing read side of the policy store. Refresh is
// called once per poll cycle; between refreshes lookups hit an immutable
// in-memory index, so a mid-cycle policy edit never changes what the
// current cycle matches.
type View struct {
	store  *Store
	logger *slog.Logger

	mu        sync.RWMutex
	enabled   bool
	exact     map[string]types.ProtectedEntry // normalized path -> entry
	packages  map[string]types.ProtectedEntry // package identity -> entry
	patterns  []patternEntry
	loadError bool
}

type patternEntry struct {
	g     glob.Glob
	entry types.ProtectedEntry
}

// NewView builds a view over the store and performs an initial refresh.
func NewView(ctx context.Context, store *Store, logger *slog.Logger) *View {
	v := &View{store: store, logger: logger}
	v.Refresh(ctx)
	return v
}

// Refresh re-reads entries and the protection flag. On a backend error the
// previous index is kept and the error logged once per failure streak:
// stale policy beats no policy, and the engine must keep running.
func (v *View) Refresh(ctx context.Context) {
	entries, err := v.store.ListEntries(ctx)
	if err != nil {
		v.noteLoadError("list entries", err)
		return
	}
	protection, err := v.store.ProtectionEnabled(ctx)
	if err != nil {
		v.noteLoadError("read protection flag", err)
		return
	}

	exact := make(map[string]types.ProtectedEntry)
	packages := make(map[string]types.ProtectedEntry)
	var patterns []patternEntry
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		switch e.Kind {
		case types.EntryKindPackage:
			packages[e.Identity] = e
		case types.EntryKindExecutable:
			if globMeta(e.Identity) {
				g, err := glob.Compile(e.Identity, '/')
				if err != nil {
					v.logger.Warn("skipping unparsable pattern entry",
						"identity", e.Identity, "error", err)
					continue
				}
				patterns = append(patterns, patternEntry{g: g, entry: e})
			} else {
				exact[e.Identity] = e
			}
		}
	}

	v.mu.Lock()
	v.enabled = protection
	v.exact = exact
	v.packages = packages
	v.patterns = patterns
	v.loadError = false
	v.mu.Unlock()
}

func (v *View) noteLoadError(op string, err error) {
	v.mu.Lock()
	first := !v.loadError
	v.loadError = true
	v.mu.Unlock()
	if first {
		v.logger.Error("policy refresh failed, keeping previous policy", "op", op, "error", err)
	}
}

// ProtectionEnabled reports the globally cached protection flag.
func (v *View) ProtectionEnabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.enabled
}

// MatchExecutable looks up a normalized executable identity. Exact entries
// win over pattern entries.
func (v *View) MatchExecutable(identity string) (types.ProtectedEntry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.enabled {
		return types.ProtectedEntry{}, false
	}
	if e, ok := v.exact[identity]; ok {
		return e, true
	}
	for _, p := range v.patterns {
		if p.g.Match(identity) {
			return p.entry, true
		}
	}
	return types.ProtectedEntry{}, false
}

// MatchPackage looks up a normalized package identity.
func (v *View) MatchPackage(identity string) (types.ProtectedEntry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.enabled {
		return types.ProtectedEntry{}, false
	}
	e, ok := v.packages[identity]
	return e, ok
}

// HasPackageEntries reports whether any enabled package entries exist, so
// the resolver can skip work entirely when none are configured.
func (v *View) HasPackageEntries() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.enabled && len(v.packages) > 0
}
