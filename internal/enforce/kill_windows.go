//go:build windows

package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Windows has no process-wide soft signal for GUI applications; the
// graceful phase posts WM_CLOSE to the process's top-level windows and the
// escalation is TerminateProcess.
func terminate(ctx context.Context, pid int, grace time.Duration) Result {
	res := Result{PID: pid}

	h, err := windows.OpenProcess(
		windows.PROCESS_TERMINATE|windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION,
		false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			res.AlreadyExited = true
			return res
		}
		res.Err = fmt.Errorf("open process %d: %w", pid, err)
		return res
	}
	defer windows.CloseHandle(h)

	if exited(h) {
		res.AlreadyExited = true
		return res
	}

	postClose(pid)
	if waitExit(ctx, h, grace) {
		res.Graceful = true
		return res
	}

	if err := windows.TerminateProcess(h, 1); err != nil {
		if exited(h) {
			return res
		}
		res.Err = fmt.Errorf("terminate process %d: %w", pid, err)
		return res
	}
	if !waitExit(ctx, h, grace) {
		res.Err = fmt.Errorf("pid %d still alive after TerminateProcess", pid)
	}
	return res
}

var (
	moduser32           = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows     = moduser32.NewProc("EnumWindows")
	procGetWindowThread = moduser32.NewProc("GetWindowThreadProcessId")
	procPostMessageW    = moduser32.NewProc("PostMessageW")
)

const wmClose = 0x0010

// postClose asks every top-level window owned by pid to close.
func postClose(pid int) {
	cb := windows.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
		var windowPID uint32
		procGetWindowThread.Call(hwnd, uintptr(unsafe.Pointer(&windowPID)))
		if int(windowPID) == pid {
			procPostMessageW.Call(hwnd, wmClose, 0, 0)
		}
		return 1 // continue enumeration
	})
	procEnumWindows.Call(cb, 0)
}

func waitExit(ctx context.Context, h windows.Handle, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if exited(h) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(alivePollInterval):
		}
	}
	return exited(h)
}

func exited(h windows.Handle) bool {
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code != 259 // STILL_ACTIVE
}

const alivePollInterval = 50 * time.Millisecond
