// Package notify sends best-effort desktop notifications. Failures are
// logged and swallowed: a missing notification never affects a job.
package notify

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
)

// Notifier posts desktop notifications through the command executor.
type Notifier struct {
	executor pexec.CommandExecutor
	enabled  bool
	goos     string
}

// New creates a Notifier. A disabled notifier is valid and does nothing.
func New(executor pexec.CommandExecutor, enabled bool) *Notifier {
	return &Notifier{executor: executor, enabled: enabled, goos: runtime.GOOS}
}

// Send posts a notification with the given title and message.
func (n *Notifier) Send(ctx context.Context, title, message string) {
	if !n.enabled {
		return
	}

	var err error
	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", escape(message), escape(title))
		_, _, err = n.executor.Run(ctx, "", "osascript", "-e", script)
	case "linux":
		_, _, err = n.executor.Run(ctx, "", "notify-send", title, message)
	default:
		return
	}
	if err != nil {
		logger.WithComponent("notify").Warn("notification failed", "title", title, "error", err)
	}
}

// escape strips double quotes so titles cannot break out of the osascript
// string literal.
func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
