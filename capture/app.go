package capture

import (
	"context"
	"fmt"
	"runtime"
	"time"

	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/process"
)

const (
	// launchWait gives OBS time to bring up its websocket server.
	launchWait = 5 * time.Second
	// settleWait lets OBS finalize the output file after a stop.
	settleWait = 2 * time.Second
)

// appManager drives the OBS application lifecycle through the executor.
// The process name and launch/quit mechanisms differ by platform.
type appManager struct {
	executor pexec.CommandExecutor
	goos     string
	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func newAppManager(executor pexec.CommandExecutor) *appManager {
	return &appManager{executor: executor, goos: runtime.GOOS, sleep: time.Sleep}
}

// processName is what pgrep sees: the app bundle binary on macOS, the plain
// binary elsewhere.
func (a *appManager) processName() string {
	if a.goos == "darwin" {
		return "OBS"
	}
	return "obs"
}

// Running reports whether OBS is up. A failed probe counts as not running;
// pgrep exits nonzero when nothing matches.
func (a *appManager) Running(ctx context.Context) bool {
	return process.RunningByName(ctx, a.executor, a.processName())
}

// EnsureRunning launches OBS when needed and waits for it to come up.
func (a *appManager) EnsureRunning(ctx context.Context) error {
	log := logger.WithComponent("capture")

	if a.Running(ctx) {
		return nil
	}

	log.Info("launching OBS")
	if a.goos == "darwin" {
		if _, _, err := a.executor.Run(ctx, "", "open", "-a", "OBS"); err != nil {
			return fmt.Errorf("failed to launch OBS: %w", err)
		}
	} else {
		if _, err := a.executor.StartDetached("", "obs"); err != nil {
			return fmt.Errorf("failed to launch OBS: %w", err)
		}
	}
	a.sleep(launchWait)

	if !a.Running(ctx) {
		return fmt.Errorf("OBS did not start")
	}
	return nil
}

// Quit closes OBS gracefully. Failures are logged, not fatal: the recording
// is already finalized by the time anyone quits the app.
func (a *appManager) Quit(ctx context.Context) error {
	log := logger.WithComponent("capture")
	log.Info("closing OBS")

	var err error
	if a.goos == "darwin" {
		_, _, err = a.executor.Run(ctx, "", "osascript", "-e", `tell application "OBS" to quit`)
	} else {
		_, _, err = a.executor.Run(ctx, "", "pkill", "-x", "-TERM", "obs")
	}
	if err != nil {
		log.Warn("failed to quit OBS", "error", err)
	}
	return nil
}
