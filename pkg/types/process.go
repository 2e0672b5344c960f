package types

import "time"

// Observation is one process as seen in a snapshot. It is valid only for
// the lifetime of the process: the OS reuses pids, so observations must be
// compared by Key (pid plus start time), never by pid alone.
type Observation struct {
	PID        int       `json:"pid"`
	ParentPID  int       `json:"parent_pid"`
	Executable string    `json:"executable,omitempty"`
	Name       string    `json:"name,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	ObservedAt time.Time `json:"observed_at"`
}

// ProcessKey identifies a process generation. Two observations with the
// same pid but different start times are different processes.
type ProcessKey struct {
	PID       int
	StartedAt time.Time
}

// Key returns the generation key for the observation.
func (o Observation) Key() ProcessKey {
	return ProcessKey{PID: o.PID, StartedAt: o.StartedAt.Truncate(time.Second)}
}

// MatchedLaunch pairs an arrival with the protected entry it matched.
type MatchedLaunch struct {
	Observation Observation
	Entry       ProtectedEntry
}
