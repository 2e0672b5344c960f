package types

import "time"

// Event types published on the broker and consumed by front ends.
const (
	EventChallengeCreated  = "challenge_created"
	EventChallengeResolved = "challenge_resolved"
	EventEnforcement       = "enforcement"
	EventProtectionToggled = "protection_toggled"
)

// Event is one engine occurrence for live subscribers. Audit durability is
// the sink's job; events are best-effort fan-out.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	PID       int       `json:"pid,omitempty"`
	Identity  string    `json:"identity,omitempty"`

	Fields map[string]any `json:"fields,omitempty"`
}
