package process

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	pexec "github.com/meetscribe/meetscribe/exec"
)

func TestAliveSelf(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("own PID reported dead")
	}
}

func TestAliveInvalid(t *testing.T) {
	if Alive(0) {
		t.Error("PID 0 reported alive")
	}
	if Alive(-5) {
		t.Error("negative PID reported alive")
	}
}

func TestAliveDeadPID(t *testing.T) {
	// PIDs near the max are essentially never in use on test machines.
	if Alive(4194000) {
		t.Skip("improbable PID is actually alive on this machine")
	}
}

func TestRunningByName(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pgrep path only")
	}
	ctx := context.Background()

	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("pgrep", []string{"-x", "OBS"}, pexec.MockResponse{Stdout: []byte("4242\n")})
	if !RunningByName(ctx, mock, "OBS") {
		t.Error("expected running when pgrep succeeds")
	}

	missing := pexec.NewMockExecutor(nil)
	missing.AddExactMatch("pgrep", []string{"-x", "OBS"}, pexec.MockResponse{Err: errors.New("exit status 1")})
	if RunningByName(ctx, missing, "OBS") {
		t.Error("expected not running when pgrep exits nonzero")
	}
}

func TestTerminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("kill path only")
	}
	mock := pexec.NewMockExecutor(nil)
	if err := Terminate(context.Background(), mock, 1234); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := mock.GetCalls()
	if len(calls) != 1 || calls[0].Name != "kill" || calls[0].Args[0] != "1234" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}
