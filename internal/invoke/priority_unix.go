//go:build unix

package invoke

import "syscall"

// lowerPriority renices the child process. Lowering CPU priority also
// lowers I/O priority: the best-effort I/O class derives its level from
// nice as (nice + 20) / 5.
func lowerPriority(pid, nice int) error {
	if nice == 0 {
		return nil
	}
	return syscall.Setpriority(syscall.PRIO_PROCESS, pid, nice)
}
