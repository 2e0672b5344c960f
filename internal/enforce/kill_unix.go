//go:build linux || darwin

package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const alivePollInterval = 50 * time.Millisecond

func terminate(ctx context.Context, pid int, grace time.Duration) Result {
	res := Result{PID: pid}

	if isZombie(pid) {
		res.AlreadyExited = true
		return res
	}

	err := unix.Kill(pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		res.AlreadyExited = true
		return res
	}
	if err != nil && !errors.Is(err, unix.EPERM) {
		res.Err = fmt.Errorf("terminate %d: %w", pid, err)
		return res
	}

	if waitGone(ctx, pid, grace) {
		res.Graceful = true
		return res
	}

	err = unix.Kill(pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("kill %d: %w", pid, err)
		return res
	}
	if !waitGone(ctx, pid, grace) {
		res.Err = fmt.Errorf("pid %d still alive after SIGKILL", pid)
	}
	return res
}

// waitGone polls process liveness until the process exits, the window
// elapses, or ctx is canceled.
func waitGone(ctx context.Context, pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if gone(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(alivePollInterval):
		}
	}
	return gone(pid)
}

// gone reports whether pid no longer designates a runnable process. A
// zombie counts as gone: signal 0 still succeeds on it, but the process
// is dead and only its parent's reap is outstanding.
func gone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	return isZombie(pid)
}
