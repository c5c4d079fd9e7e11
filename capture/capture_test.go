package capture

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	code := m.Run()
	logger.Reset()
	os.Exit(code)
}

func noSleep(a *appManager) {
	a.sleep = func(time.Duration) {}
}

func TestNewSelectsController(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	if _, ok := New(config.Recording{Controller: "obs-cmd"}, mock).(*CmdController); !ok {
		t.Error("obs-cmd did not select CmdController")
	}
	if _, ok := New(config.Recording{Controller: "obsws"}, mock).(*WSController); !ok {
		t.Error("obsws did not select WSController")
	}
	if _, ok := New(config.Recording{}, mock).(*WSController); !ok {
		t.Error("empty controller should default to WSController")
	}
}

func TestAppManagerRunning(t *testing.T) {
	t.Run("pgrep match means running", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		mock.AddPrefixMatch("pgrep", []string{"-x"}, pexec.MockResponse{Stdout: []byte("1234\n")})
		a := newAppManager(mock)
		a.goos = "linux"

		if !a.Running(context.Background()) {
			t.Error("Running = false with a matching pgrep")
		}
	})

	t.Run("probe failure means not running", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		mock.AddPrefixMatch("pgrep", []string{"-x"}, pexec.MockResponse{Err: errors.New("exit status 1")})
		a := newAppManager(mock)
		a.goos = "linux"

		if a.Running(context.Background()) {
			t.Error("Running = true although pgrep found nothing")
		}
	})
}

func TestOBSRunning(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("pgrep", []string{"-x"}, pexec.MockResponse{Stdout: []byte("1234\n")})

	if !OBSRunning(context.Background(), mock) {
		t.Error("OBSRunning = false with a matching pgrep")
	}
}

func TestAppManagerEnsureRunning(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		mock.AddPrefixMatch("pgrep", []string{"-x"}, pexec.MockResponse{Stdout: []byte("1234\n")})
		a := newAppManager(mock)
		a.goos = "darwin"
		noSleep(a)

		if err := a.EnsureRunning(context.Background()); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		for _, call := range mock.GetCalls() {
			if call.Name == "open" {
				t.Error("launched OBS although it was running")
			}
		}
	})

	t.Run("launches on darwin", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		mock.AddRule(func(dir, name string, args []string) bool { return name == "pgrep" },
			pexec.MockResponse{Err: errors.New("exit status 1")})
		a := newAppManager(mock)
		a.goos = "darwin"
		noSleep(a)

		// pgrep never succeeds, so EnsureRunning errors after launching;
		// the launch itself must still have happened.
		if err := a.EnsureRunning(context.Background()); err == nil {
			t.Error("expected error when OBS never comes up")
		}
		var launched bool
		for _, call := range mock.GetCalls() {
			if call.Name == "open" && len(call.Args) == 2 && call.Args[1] == "OBS" {
				launched = true
			}
		}
		if !launched {
			t.Error("OBS not launched")
		}
	})

	t.Run("launches detached on linux", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		mock.AddRule(func(dir, name string, args []string) bool { return name == "pgrep" },
			pexec.MockResponse{Err: errors.New("exit status 1")})
		a := newAppManager(mock)
		a.goos = "linux"
		noSleep(a)

		a.EnsureRunning(context.Background())
		var sawDetached bool
		for _, call := range mock.GetCalls() {
			if call.Name == "obs" && call.Detached {
				sawDetached = true
			}
		}
		if !sawDetached {
			t.Error("obs not launched detached on linux")
		}
	})
}

func TestAppManagerQuit(t *testing.T) {
	t.Run("darwin uses osascript", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		a := newAppManager(mock)
		a.goos = "darwin"

		a.Quit(context.Background())
		calls := mock.GetCalls()
		if len(calls) != 1 || calls[0].Name != "osascript" {
			t.Fatalf("calls = %+v", calls)
		}
		if !strings.Contains(calls[0].Args[1], "quit") {
			t.Errorf("script = %q", calls[0].Args[1])
		}
	})

	t.Run("linux uses pkill", func(t *testing.T) {
		mock := pexec.NewMockExecutor(nil)
		a := newAppManager(mock)
		a.goos = "linux"

		a.Quit(context.Background())
		calls := mock.GetCalls()
		if len(calls) != 1 || calls[0].Name != "pkill" {
			t.Fatalf("calls = %+v", calls)
		}
	})
}

// fakeSession scripts obsws responses for the WS controller.
type fakeSession struct {
	responses map[string]string
	err       error
	requests  []string
	closed    bool
}

func (f *fakeSession) Request(requestType string, data any) (json.RawMessage, error) {
	f.requests = append(f.requests, requestType)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.responses[requestType]), nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newWSFixture(sess *fakeSession) *WSController {
	c := NewWSController(config.Recording{OBSWSPort: "4455"}, pexec.NewMockExecutor(nil))
	noSleep(c.apps)
	c.dial = func(ctx context.Context) (wsSession, error) { return sess, nil }
	return c
}

func TestWSControllerStop(t *testing.T) {
	sess := &fakeSession{responses: map[string]string{
		"StopRecord": `{"outputPath": "/rec/meeting.mkv"}`,
	}}
	c := newWSFixture(sess)

	path, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if path != "/rec/meeting.mkv" {
		t.Errorf("outputPath = %q", path)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestWSControllerActive(t *testing.T) {
	sess := &fakeSession{responses: map[string]string{
		"GetRecordStatus": `{"outputActive": true, "outputDuration": 120}`,
	}}
	c := newWSFixture(sess)

	active, err := c.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !active {
		t.Error("Active = false")
	}
}

func TestWSControllerStartError(t *testing.T) {
	sess := &fakeSession{err: errors.New("recording already active")}
	c := newWSFixture(sess)

	if err := c.Start(context.Background()); err == nil {
		t.Error("expected error from rejected StartRecord")
	}
}

func TestCmdControllerConnArgs(t *testing.T) {
	t.Run("with password", func(t *testing.T) {
		c := NewCmdController(config.Recording{OBSWSPort: "4455", OBSWSPassword: "s3cret"}, pexec.NewMockExecutor(nil))
		args := c.connArgs()
		if args[0] != "--websocket" || args[1] != "obsws://127.0.0.1:4455/s3cret" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("without password", func(t *testing.T) {
		c := NewCmdController(config.Recording{OBSWSPort: "4455"}, pexec.NewMockExecutor(nil))
		args := c.connArgs()
		if args[0] != "-w" || args[1] != "ws://127.0.0.1:4455" {
			t.Errorf("args = %v", args)
		}
	})
}

func TestCmdControllerStartStop(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	c := NewCmdController(config.Recording{OBSWSPort: "4455"}, mock)
	noSleep(c.apps)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	calls := mock.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	wantVerbs := [][]string{{"recording", "start"}, {"recording", "stop"}}
	for i, call := range calls {
		if call.Name != "obs-cmd" {
			t.Errorf("call %d name = %q", i, call.Name)
		}
		n := len(call.Args)
		if call.Args[n-2] != wantVerbs[i][0] || call.Args[n-1] != wantVerbs[i][1] {
			t.Errorf("call %d args = %v", i, call.Args)
		}
	}
}

func TestCmdControllerActive(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("obs-cmd", nil, pexec.MockResponse{
		Stdout: []byte("RecordStatus { output_active: true, output_paused: false }\n"),
	})
	c := NewCmdController(config.Recording{OBSWSPort: "4455"}, mock)

	active, err := c.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !active {
		t.Error("Active = false")
	}
}
