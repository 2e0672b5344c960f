//go:build linux

package enforce

import (
	"os"
	"strconv"
	"strings"
)

// isZombie reports whether pid is dead but not yet reaped by its parent.
// The state letter is the first field after the parenthesized comm in
// /proc/<pid>/stat; Z is zombie, X is dead.
func isZombie(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	s := string(data)
	end := strings.LastIndexByte(s, ')')
	if end < 0 {
		return false
	}
	fields := strings.Fields(s[end+1:])
	if len(fields) == 0 {
		return false
	}
	return fields[0] == "Z" || fields[0] == "X"
}
