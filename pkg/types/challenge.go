package types

import "time"

// ChallengeState is the lifecycle state of an authorization challenge.
type ChallengeState string

const (
	ChallengePending    ChallengeState = "pending"
	ChallengeAuthorized ChallengeState = "authorized"
	ChallengeDenied     ChallengeState = "denied"
	ChallengeTimedOut   ChallengeState = "timed_out"
)

// Terminal reports whether the state admits no further transitions.
func (s ChallengeState) Terminal() bool {
	return s == ChallengeAuthorized || s == ChallengeDenied || s == ChallengeTimedOut
}

// Challenge is the time-boxed authorization attempt tied to one intercepted
// launch. At most one live challenge exists per pid.
type Challenge struct {
	ID           string         `json:"id"`
	PID          int            `json:"pid"`
	Entry        ProtectedEntry `json:"entry"`
	CreatedAt    time.Time      `json:"created_at"`
	Deadline     time.Time      `json:"deadline"`
	AttemptsUsed int            `json:"attempts_used"`
	State        ChallengeState `json:"state"`
}

// Outcome is the recorded result of a challenge or enforcement action.
type Outcome string

const (
	OutcomeAuthorized        Outcome = "authorized"
	OutcomeDenied            Outcome = "denied"
	OutcomeTimedOut          Outcome = "timed_out"
	OutcomeEnforcementFailed Outcome = "enforcement_failed"
)
