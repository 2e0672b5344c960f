//go:build !linux && !darwin && !windows

package enforce

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

func terminate(_ context.Context, pid int, _ time.Duration) Result {
	return Result{PID: pid, Err: fmt.Errorf("process termination not supported on %s", runtime.GOOS)}
}
