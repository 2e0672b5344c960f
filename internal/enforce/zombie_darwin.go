//go:build darwin

package enforce

import "golang.org/x/sys/unix"

// SZOMB from sys/proc.h.
const procStatusZombie = 5

func isZombie(pid int) bool {
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err != nil {
		return false
	}
	return kp.Proc.P_stat == procStatusZombie
}
