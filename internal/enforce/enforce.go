// Package enforce terminates processes whose challenge resolved to denied
// or timed out. Termination is graceful first, forceful after a grace
// period, and idempotent: killing a pid that already exited is success,
// because the race between a deadline firing and a natural exit is
// expected. An unkillable pid is a logged failure, never a crash.
package enforce

import (
	"context"
	"log/slog"
	"time"
)

// Result describes one enforcement attempt.
type Result struct {
	PID           int
	Graceful      bool // terminated within the grace period
	AlreadyExited bool
	Err           error
}

// Terminated reports whether the process is gone, by any path.
func (r Result) Terminated() bool {
	return r.Err == nil
}

// Actuator terminates process trees.
type Actuator struct {
	grace  time.Duration
	logger *slog.Logger
}

// New builds an actuator with the given grace period between the graceful
// request and the forceful kill.
func New(grace time.Duration, logger *slog.Logger) *Actuator {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Actuator{grace: grace, logger: logger}
}

// Enforce terminates pid. It blocks for at most the grace period plus a
// short kill confirmation window; ctx cancellation stops the waiting but
// the signals already sent stand.
func (a *Actuator) Enforce(ctx context.Context, pid int) Result {
	res := terminate(ctx, pid, a.grace)
	switch {
	case res.AlreadyExited:
		a.logger.Debug("enforcement target already exited", "pid", pid)
	case res.Err != nil:
		a.logger.Error("enforcement failed after escalation", "pid", pid, "error", res.Err)
	case res.Graceful:
		a.logger.Info("process terminated", "pid", pid)
	default:
		a.logger.Info("process killed after grace period", "pid", pid)
	}
	return res
}
