//go:build windows

package process

import "os"

// Alive reports whether a process with the given PID exists. On Windows,
// FindProcess opens a handle and fails for missing PIDs.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}
