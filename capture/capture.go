// Package capture controls the OBS recording backend. Two controller
// implementations exist: a native obs-websocket client and a wrapper around
// the obs-cmd binary. Both share the application lifecycle (launch, quit,
// readiness waits) through the command executor.
package capture

import (
	"context"

	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
)

// Controller defines the recording control surface.
type Controller interface {
	// EnsureRunning launches OBS if it is not already running and waits
	// for it to accept connections.
	EnsureRunning(ctx context.Context) error

	// Start begins a recording.
	Start(ctx context.Context) error

	// Stop ends the recording and returns the output file path when the
	// backend reports one ("" otherwise; the caller falls back to scanning
	// the recording directory).
	Stop(ctx context.Context) (string, error)

	// Active reports whether a recording is in progress.
	Active(ctx context.Context) (bool, error)

	// Shutdown closes the OBS application.
	Shutdown(ctx context.Context) error
}

// New returns the controller selected by recording.controller.
func New(cfg config.Recording, executor pexec.CommandExecutor) Controller {
	if cfg.Controller == "obs-cmd" {
		return NewCmdController(cfg, executor)
	}
	return NewWSController(cfg, executor)
}

// OBSRunning reports whether the OBS application is up. Status uses this
// without needing a full controller.
func OBSRunning(ctx context.Context, executor pexec.CommandExecutor) bool {
	return newAppManager(executor).Running(ctx)
}
