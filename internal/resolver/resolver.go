// Package resolver maps packaged applications to a logical identity.
// Packaged apps launch through an OS host process, so the identity is often
// not readable in the snapshot that first shows the process; each candidate
// gets a bounded number of poll cycles to resolve before it is discarded as
// unmatched. Discarding is not a denial: an identity that never resolves
// must not leave stale state or terminate anything.
package resolver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

// Lookup resolves a pid to its package identity. Empty identity with nil
// error means "not a packaged process"; an error means "not resolvable yet".
type Lookup interface {
	PackageIdentity(ctx context.Context, pid int) (string, error)
}

// PolicyView is the slice of policy the resolver needs.
type PolicyView interface {
	MatchPackage(identity string) (types.ProtectedEntry, bool)
	HasPackageEntries() bool
}

// Resolver holds the expiring per-pid retry table, swept once per cycle.
type Resolver struct {
	lookup Lookup
	window int
	logger *slog.Logger

	mu      sync.Mutex
	pending map[types.ProcessKey]*candidate
}

type candidate struct {
	obs        types.Observation
	cyclesLeft int
}

// New builds a resolver whose candidates expire after window poll cycles.
func New(lookup Lookup, window int, logger *slog.Logger) *Resolver {
	if window <= 0 {
		window = 6
	}
	return &Resolver{
		lookup:  lookup,
		window:  window,
		logger:  logger,
		pending: make(map[types.ProcessKey]*candidate),
	}
}

// Track adds an unmatched arrival as a resolution candidate.
func (r *Resolver) Track(obs types.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := obs.Key()
	if _, ok := r.pending[key]; ok {
		return
	}
	r.pending[key] = &candidate{obs: obs, cyclesLeft: r.window}
}

// Sweep runs one resolution pass. alive is the current snapshot's
// generation set: candidates whose process is gone are dropped immediately.
// Returns the launches whose identity resolved to a protected package.
func (r *Resolver) Sweep(ctx context.Context, view PolicyView, alive map[types.ProcessKey]struct{}) []types.MatchedLaunch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []types.MatchedLaunch
	for key, c := range r.pending {
		if _, ok := alive[key]; !ok {
			delete(r.pending, key)
			continue
		}

		identity, err := r.lookup.PackageIdentity(ctx, key.PID)
		if err == nil && identity == "" {
			// Definitively not a packaged process.
			delete(r.pending, key)
			continue
		}
		if err == nil {
			delete(r.pending, key)
			id := policy.NormalizePackageIdentity(identity)
			if entry, ok := view.MatchPackage(id); ok {
				matches = append(matches, types.MatchedLaunch{Observation: c.obs, Entry: entry})
			}
			continue
		}

		c.cyclesLeft--
		if c.cyclesLeft <= 0 {
			r.logger.Debug("package identity never resolved, treating as unmatched",
				"pid", key.PID, "executable", c.obs.Executable)
			delete(r.pending, key)
		}
	}
	return matches
}

// PendingCount reports how many candidates are awaiting resolution.
func (r *Resolver) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reset discards all candidates. Called on engine stop.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[types.ProcessKey]*candidate)
}
