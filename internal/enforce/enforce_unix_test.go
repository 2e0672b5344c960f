//go:build linux || darwin

package enforce

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/applockd/applockd/internal/logging"
)

func startVictim(t *testing.T, name string, args ...string) int {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd.Process.Pid
}

func TestEnforceGracefulTermination(t *testing.T) {
	pid := startVictim(t, "sleep", "60")
	a := New(2*time.Second, logging.Discard())

	res := a.Enforce(context.Background(), pid)
	if !res.Terminated() {
		t.Fatalf("enforce failed: %v", res.Err)
	}
	if !res.Graceful {
		t.Fatalf("sleep should die on the graceful signal")
	}
}

func TestEnforceEscalatesWhenSignalIgnored(t *testing.T) {
	pid := startVictim(t, "sh", "-c", `trap "" TERM; sleep 60 & wait`)
	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	a := New(300*time.Millisecond, logging.Discard())
	res := a.Enforce(context.Background(), pid)
	if !res.Terminated() {
		t.Fatalf("enforce failed: %v", res.Err)
	}
	if res.Graceful {
		t.Fatalf("shell trapping TERM should require the forceful kill")
	}
}

func TestEnforceZombieCountsAsExited(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	t.Cleanup(func() { _ = cmd.Wait() })

	// The child exits immediately but stays a zombie until the Wait above.
	deadline := time.Now().Add(2 * time.Second)
	for !isZombie(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("pid %d never became a zombie", pid)
		}
		time.Sleep(10 * time.Millisecond)
	}

	a := New(time.Second, logging.Discard())
	res := a.Enforce(context.Background(), pid)
	if !res.Terminated() {
		t.Fatalf("zombie pid must be treated as gone: %v", res.Err)
	}
	if !res.AlreadyExited {
		t.Fatalf("expected AlreadyExited for zombie pid %d", pid)
	}
}

func TestEnforceExitedProcessIsSuccess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	a := New(time.Second, logging.Discard())
	res := a.Enforce(context.Background(), pid)
	if !res.Terminated() {
		t.Fatalf("exited pid must be treated as success: %v", res.Err)
	}
	if !res.AlreadyExited {
		t.Fatalf("expected AlreadyExited for pid %d", pid)
	}
}
