//go:build linux

package snapshot

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/applockd/applockd/pkg/types"
)

// linuxSource enumerates /proc. Start times come from field 22 of
// /proc/<pid>/stat (clock ticks since boot) anchored at btime from
// /proc/stat, which gives a stable per-generation key across snapshots.
type linuxSource struct {
	bootTime time.Time
}

const clockTicksPerSecond = 100 // SC_CLK_TCK on every mainstream distro

func newPlatformSource() Source {
	return &linuxSource{bootTime: readBootTime()}
}

func (s *linuxSource) Snapshot(ctx context.Context) ([]types.Observation, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]types.Observation, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		obs, ok := s.observe(pid, now)
		if !ok {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (s *linuxSource) observe(pid int, now time.Time) (types.Observation, bool) {
	// Readlink fails for kernel threads and processes owned by other users
	// without CAP_SYS_PTRACE; both are skipped, not errors.
	exe, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe"))
	if err != nil {
		return types.Observation{}, false
	}
	// " (deleted)" suffix appears when the binary was replaced on disk.
	exe = strings.TrimSuffix(exe, " (deleted)")

	ppid, startTicks, name, ok := readStat(pid)
	if !ok {
		return types.Observation{}, false
	}

	started := s.bootTime.Add(time.Duration(startTicks) * time.Second / clockTicksPerSecond)
	return types.Observation{
		PID:        pid,
		ParentPID:  ppid,
		Executable: exe,
		Name:       name,
		StartedAt:  started.UTC(),
		ObservedAt: now,
	}, true
}

func readStat(pid int) (ppid int, startTicks int64, name string, ok bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, 0, "", false
	}
	return parseStat(string(data))
}

// parseStat parses the /proc/<pid>/stat format. The comm field is
// parenthesized and may itself contain spaces or parens, so parsing
// anchors on the last ')'.
func parseStat(s string) (ppid int, startTicks int64, name string, ok bool) {
	close := strings.LastIndexByte(s, ')')
	open := strings.IndexByte(s, '(')
	if close < 0 || open < 0 || close < open {
		return 0, 0, "", false
	}
	name = s[open+1 : close]
	fields := strings.Fields(s[close+1:])
	// After comm: state ppid ... ; starttime is field 22 overall, which is
	// index 19 in the post-comm slice.
	if len(fields) < 20 {
		return 0, 0, "", false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, "", false
	}
	startTicks, err = strconv.ParseInt(fields[19], 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	return ppid, startTicks, name, true
}

func readBootTime() time.Time {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return time.Now().UTC()
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 10, 64)
		if err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	return time.Now().UTC()
}
