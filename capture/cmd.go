package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
)

// CmdController drives recording through the obs-cmd binary. It predates the
// native websocket client and stays available behind
// recording.controller = "obs-cmd".
type CmdController struct {
	cfg      config.Recording
	apps     *appManager
	executor pexec.CommandExecutor
}

// NewCmdController creates the obs-cmd-backed controller.
func NewCmdController(cfg config.Recording, executor pexec.CommandExecutor) *CmdController {
	return &CmdController{cfg: cfg, apps: newAppManager(executor), executor: executor}
}

// connArgs builds the obs-cmd connection arguments. The password travels in
// the URL when one is set.
func (c *CmdController) connArgs() []string {
	if c.cfg.OBSWSPassword != "" {
		return []string{"--websocket", fmt.Sprintf("obsws://127.0.0.1:%s/%s", c.cfg.OBSWSPort, c.cfg.OBSWSPassword)}
	}
	return []string{"-w", fmt.Sprintf("ws://127.0.0.1:%s", c.cfg.OBSWSPort)}
}

func (c *CmdController) run(ctx context.Context, verb ...string) ([]byte, error) {
	args := append(c.connArgs(), verb...)
	out, err := c.executor.CombinedOutput(ctx, "", "obs-cmd", args...)
	if err != nil {
		return out, fmt.Errorf("obs-cmd %s failed: %w: %s", strings.Join(verb, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (c *CmdController) EnsureRunning(ctx context.Context) error {
	return c.apps.EnsureRunning(ctx)
}

func (c *CmdController) Start(ctx context.Context) error {
	if _, err := c.run(ctx, "recording", "start"); err != nil {
		return err
	}
	logger.WithComponent("capture").Info("recording started")
	return nil
}

// Stop ends the recording. obs-cmd does not report the output path; the
// caller scans the recording directory for the newest file instead.
func (c *CmdController) Stop(ctx context.Context) (string, error) {
	if _, err := c.run(ctx, "recording", "stop"); err != nil {
		return "", err
	}
	c.apps.sleep(settleWait)
	logger.WithComponent("capture").Info("recording stopped")
	return "", nil
}

// Active parses the recording status output for an active flag.
func (c *CmdController) Active(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "recording", "status")
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(string(out)), "true"), nil
}

func (c *CmdController) Shutdown(ctx context.Context) error {
	return c.apps.Quit(ctx)
}
