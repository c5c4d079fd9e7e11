package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/obsws"
)

// wsSession is the slice of the obsws client the controller uses. Tests
// substitute a fake.
type wsSession interface {
	Request(requestType string, data any) (json.RawMessage, error)
	Close() error
}

// WSController drives recording over the native obs-websocket client. Each
// operation opens a fresh session; recording sessions outlive any single CLI
// invocation, so holding a connection would buy nothing.
type WSController struct {
	cfg  config.Recording
	apps *appManager
	dial func(ctx context.Context) (wsSession, error)
}

// NewWSController creates the websocket-backed controller.
func NewWSController(cfg config.Recording, executor pexec.CommandExecutor) *WSController {
	c := &WSController{cfg: cfg, apps: newAppManager(executor)}
	c.dial = func(ctx context.Context) (wsSession, error) {
		return obsws.Dial(ctx, fmt.Sprintf("ws://127.0.0.1:%s", cfg.OBSWSPort), cfg.OBSWSPassword)
	}
	return c
}

func (c *WSController) EnsureRunning(ctx context.Context) error {
	return c.apps.EnsureRunning(ctx)
}

// Start begins a recording.
func (c *WSController) Start(ctx context.Context) error {
	sess, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach OBS websocket: %w", err)
	}
	defer sess.Close()

	if _, err := sess.Request("StartRecord", nil); err != nil {
		return err
	}
	logger.WithComponent("capture").Info("recording started")
	return nil
}

// Stop ends the recording. OBS reports the finalized output path; a settle
// wait follows before the file is trusted.
func (c *WSController) Stop(ctx context.Context) (string, error) {
	sess, err := c.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to reach OBS websocket: %w", err)
	}
	defer sess.Close()

	raw, err := sess.Request("StopRecord", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		OutputPath string `json:"outputPath"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed StopRecord response: %w", err)
	}

	c.apps.sleep(settleWait)
	logger.WithComponent("capture").Info("recording stopped", "outputPath", resp.OutputPath)
	return resp.OutputPath, nil
}

// Active reports whether OBS says a recording is in progress.
func (c *WSController) Active(ctx context.Context) (bool, error) {
	sess, err := c.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reach OBS websocket: %w", err)
	}
	defer sess.Close()

	raw, err := sess.Request("GetRecordStatus", nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		OutputActive bool `json:"outputActive"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("malformed GetRecordStatus response: %w", err)
	}
	return resp.OutputActive, nil
}

func (c *WSController) Shutdown(ctx context.Context) error {
	return c.apps.Quit(ctx)
}
