// Package process provides PID liveness and by-name process probing for the
// job registry and the capture backend's application lifecycle.
package process

import (
	"context"
	"runtime"
	"strconv"

	pexec "github.com/meetscribe/meetscribe/exec"
)

// RunningByName reports whether a process with exactly the given name is
// running. Uses pgrep -x on unix-likes and tasklist on Windows; the probe
// goes through the executor so tests can mock it.
func RunningByName(ctx context.Context, executor pexec.CommandExecutor, name string) bool {
	switch runtime.GOOS {
	case "windows":
		out, err := executor.Output(ctx, "", "tasklist", "/FI", "IMAGENAME eq "+name+".exe", "/FO", "CSV", "/NH")
		if err != nil {
			return false
		}
		// tasklist prints an INFO line when nothing matches.
		return len(out) > 0 && out[0] == '"'
	default:
		// pgrep exits 1 when no process matches.
		_, err := executor.Output(ctx, "", "pgrep", "-x", name)
		return err == nil
	}
}

// Terminate asks a process to exit. SIGTERM on unix-likes, taskkill on
// Windows.
func Terminate(ctx context.Context, executor pexec.CommandExecutor, pid int) error {
	switch runtime.GOOS {
	case "windows":
		_, err := executor.Output(ctx, "", "taskkill", "/PID", strconv.Itoa(pid))
		return err
	default:
		_, err := executor.Output(ctx, "", "kill", strconv.Itoa(pid))
		return err
	}
}
