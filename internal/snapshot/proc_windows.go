//go:build windows

package snapshot

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/applockd/applockd/pkg/types"
)

// windowsSource walks a Toolhelp32 snapshot and resolves each entry's image
// path and creation time through a limited-information process handle.
type windowsSource struct{}

func newPlatformSource() Source {
	return &windowsSource{}
}

func (s *windowsSource) Snapshot(ctx context.Context) ([]types.Observation, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	now := time.Now().UTC()
	var out []types.Observation

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if obs, ok := observeEntry(entry, now); ok {
			out = append(out, obs)
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			break // ERROR_NO_MORE_FILES ends the walk
		}
	}
	return out, nil
}

func observeEntry(entry windows.ProcessEntry32, now time.Time) (types.Observation, bool) {
	pid := int(entry.ProcessID)
	if pid == 0 || pid == 4 {
		// Idle and System pseudo-processes have no openable image.
		return types.Observation{}, false
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, entry.ProcessID)
	if err != nil {
		// Protected or already-exited process: skip silently.
		return types.Observation{}, false
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_LONG_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return types.Observation{}, false
	}

	var creation, exit, kernel, user windows.Filetime
	started := now
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err == nil {
		started = time.Unix(0, creation.Nanoseconds()).UTC()
	}

	return types.Observation{
		PID:        pid,
		ParentPID:  int(entry.ParentProcessID),
		Executable: windows.UTF16ToString(buf[:size]),
		Name:       windows.UTF16ToString(entry.ExeFile[:]),
		StartedAt:  started,
		ObservedAt: now,
	}, true
}
