package types

import "time"

// AttemptRecord is one append-only audit entry: a challenge reaching a
// terminal state, or an enforcement failure. Owned by the audit sink.
type AttemptRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name,omitempty"`
	PID         int       `json:"pid"`
	Outcome     Outcome   `json:"outcome"`
	Actor       string    `json:"actor,omitempty"`
	Reason      string    `json:"reason,omitempty"`

	Fields map[string]any `json:"fields,omitempty"`
}

// RecordQuery filters audit records. Zero values mean "no constraint".
type RecordQuery struct {
	Identity string
	Outcome  *Outcome
	Since    *time.Time
	Until    *time.Time

	Limit  int
	Offset int
	Asc    bool
}
