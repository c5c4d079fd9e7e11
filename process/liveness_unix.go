//go:build !windows

package process

import (
	"os"
	"syscall"
)

// Alive reports whether a process with the given PID exists. Signal 0
// performs the existence check without delivering anything; EPERM still
// means the process is there.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
