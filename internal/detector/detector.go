// Package detector finds newly started processes by diffing successive
// snapshots and matches them against the protected-app policy. Detection
// latency is bounded by the poll cadence: a protected app may run for at
// most one interval before its challenge is created. That window is a
// documented property of polling-based detection, not a defect.
package detector

import (
	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

// PolicyView is the read-only policy surface the detector consumes.
type PolicyView interface {
	ProtectionEnabled() bool
	MatchExecutable(identity string) (types.ProtectedEntry, bool)
}

// Detector carries the previous cycle's process-generation set. The first
// snapshot primes the set without reporting arrivals, so processes already
// running when the engine starts are never challenged.
type Detector struct {
	primed bool
	prev   map[types.ProcessKey]struct{}
}

func New() *Detector {
	return &Detector{prev: make(map[types.ProcessKey]struct{})}
}

// Observe ingests a snapshot and returns its arrivals. Keys combine pid
// and start time, so a pid reused by the OS after an exit counts as a new
// arrival rather than a survivor.
func (d *Detector) Observe(snapshot []types.Observation) []types.Observation {
	curr := make(map[types.ProcessKey]struct{}, len(snapshot))
	for _, o := range snapshot {
		curr[o.Key()] = struct{}{}
	}

	if !d.primed {
		d.primed = true
		d.prev = curr
		return nil
	}

	arrivals := Diff(d.prev, snapshot)
	d.prev = curr
	return arrivals
}

// Diff returns the observations in curr whose generation key is absent
// from prev. Pure: re-running on the same pair yields the same arrivals.
func Diff(prev map[types.ProcessKey]struct{}, curr []types.Observation) []types.Observation {
	var out []types.Observation
	for _, o := range curr {
		if _, ok := prev[o.Key()]; !ok {
			out = append(out, o)
		}
	}
	return out
}

// Match splits arrivals into protected-executable hits and the remainder.
// The remainder is what the package identity resolver may still claim.
func Match(arrivals []types.Observation, view PolicyView) (matches []types.MatchedLaunch, unmatched []types.Observation) {
	if !view.ProtectionEnabled() {
		return nil, nil
	}
	for _, o := range arrivals {
		identity := policy.NormalizeIdentity(o.Executable)
		if identity == "" {
			continue
		}
		if entry, ok := view.MatchExecutable(identity); ok {
			matches = append(matches, types.MatchedLaunch{Observation: o, Entry: entry})
			continue
		}
		unmatched = append(unmatched, o)
	}
	return matches, unmatched
}
