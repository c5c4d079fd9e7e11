package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/state"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	code := m.Run()
	logger.Reset()
	os.Exit(code)
}

type fixture struct {
	store      *state.Store
	registry   *Registry
	launcher   *Launcher
	mock       *pexec.MockExecutor
	specsDir   string
	markersDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := state.NewStore(dir)
	specsDir := filepath.Join(dir, "jobs")
	markersDir := filepath.Join(dir, "markers")
	mock := pexec.NewMockExecutor(nil)
	return &fixture{
		store:      store,
		registry:   NewRegistryWith(store, markersDir, specsDir),
		launcher:   NewLauncherWith(store, mock, specsDir, "/usr/local/bin/meetscribe"),
		mock:       mock,
		specsDir:   specsDir,
		markersDir: markersDir,
	}
}

func TestLaunchRegistersRunningJob(t *testing.T) {
	f := newFixture(t)
	f.mock.AddRule(func(dir, name string, args []string) bool { return true },
		pexec.MockResponse{Pid: 5150})

	job, err := f.launcher.Launch(Spec{
		Kind:       KindProcess,
		Title:      "Weekly Sync",
		CallTypeID: "team_meeting",
		InputPath:  "/tmp/video.mov",
		Paths:      paths.OutputSet{OutputDir: "/tmp/out"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if job.ID == "" {
		t.Error("job id not generated")
	}
	if job.PID != 5150 {
		t.Errorf("PID = %d", job.PID)
	}
	if job.Status != state.StatusRunning {
		t.Errorf("Status = %q", job.Status)
	}

	// Spec file written for the worker.
	spec, err := ReadSpec(SpecPath(f.specsDir, job.ID))
	if err != nil {
		t.Fatalf("spec not readable: %v", err)
	}
	if spec.Kind != KindProcess || spec.Title != "Weekly Sync" {
		t.Errorf("spec = %+v", spec)
	}

	// Detached invocation points the worker at the spec.
	calls := f.mock.GetCalls()
	if len(calls) != 1 || !calls[0].Detached {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Args[0] != "worker" || calls[0].Args[1] != "--job" {
		t.Errorf("worker args = %v", calls[0].Args)
	}

	// Registered in the store.
	if jobs := f.store.LoadJobs(); len(jobs) != 1 {
		t.Errorf("registry has %d jobs", len(jobs))
	}
}

func TestListReconcilesDeadPIDToFailed(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return false })

	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["dead"] = state.Job{ID: "dead", PID: 9999, Status: state.StatusRunning, StartedAt: time.Now()}
		return nil
	})

	listed, err := f.registry.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d jobs", len(listed))
	}
	if listed[0].Status != state.StatusFailed {
		t.Errorf("Status = %q, want failed", listed[0].Status)
	}
	if listed[0].Error != "job terminated unexpectedly" {
		t.Errorf("Error = %q", listed[0].Error)
	}

	// Reconciliation persisted, so a fresh read agrees.
	if f.store.LoadJobs()["dead"].Status != state.StatusFailed {
		t.Error("reconciled status not persisted")
	}
}

func TestListAbsorbsCompletionMarker(t *testing.T) {
	f := newFixture(t)
	// PID dead, but the marker proves orderly completion.
	f.registry.SetAliveCheck(func(pid int) bool { return false })

	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["j1"] = state.Job{ID: "j1", PID: 1111, Status: state.StatusRunning, StartedAt: time.Now()}
		return nil
	})
	if err := WriteMarker(f.markersDir, Marker{
		JobID:         "j1",
		Status:        state.StatusDone,
		AnalysisError: "analysis provider unreachable",
		TranscriptDir: "/tmp/out/t",
		FinishedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	listed, err := f.registry.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := listed[0]
	if got.Status != state.StatusDone {
		t.Errorf("Status = %q, want done", got.Status)
	}
	if got.AnalysisError == "" {
		t.Error("partial-success analysis error lost")
	}
	if got.TranscriptDir != "/tmp/out/t" {
		t.Errorf("TranscriptDir = %q", got.TranscriptDir)
	}
}

func TestListLiveJobStaysRunning(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return true })

	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["live"] = state.Job{ID: "live", PID: 4242, Status: state.StatusRunning, StartedAt: time.Now()}
		return nil
	})

	listed, err := f.registry.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listed[0].Status != state.StatusRunning {
		t.Errorf("Status = %q, want running", listed[0].Status)
	}
}

func TestListSortsByStartTime(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return true })

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["b"] = state.Job{ID: "b", Status: state.StatusRunning, StartedAt: base.Add(time.Hour)}
		jobs["a"] = state.Job{ID: "a", Status: state.StatusRunning, StartedAt: base}
		return nil
	})

	listed, _ := f.registry.List()
	if listed[0].ID != "a" || listed[1].ID != "b" {
		t.Errorf("order = %s, %s", listed[0].ID, listed[1].ID)
	}
}

func TestReapRemovesTerminalJob(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return false })

	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["done"] = state.Job{ID: "done", Status: state.StatusDone, StartedAt: time.Now()}
		return nil
	})
	WriteMarker(f.markersDir, Marker{JobID: "done", Status: state.StatusDone})
	WriteSpec(f.specsDir, Spec{ID: "done"})

	if err := f.registry.Reap("done"); err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(f.store.LoadJobs()) != 0 {
		t.Error("job still registered after reap")
	}
	if _, err := os.Stat(MarkerPath(f.markersDir, "done")); !os.IsNotExist(err) {
		t.Error("marker not removed")
	}
	if _, err := os.Stat(SpecPath(f.specsDir, "done")); !os.IsNotExist(err) {
		t.Error("spec not removed")
	}
}

func TestReapRefusesRunningJob(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return true })

	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["live"] = state.Job{ID: "live", PID: 1, Status: state.StatusRunning, StartedAt: time.Now()}
		return nil
	})

	if err := f.registry.Reap("live"); err == nil {
		t.Fatal("expected error reaping a running job")
	}
	if len(f.store.LoadJobs()) != 1 {
		t.Error("running job removed by reap")
	}
}

func TestReapTerminalKeepsRunning(t *testing.T) {
	f := newFixture(t)
	f.registry.SetAliveCheck(func(pid int) bool { return pid == 7 })

	now := time.Now()
	f.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs["live"] = state.Job{ID: "live", PID: 7, Status: state.StatusRunning, StartedAt: now}
		jobs["dead"] = state.Job{ID: "dead", PID: 8, Status: state.StatusRunning, StartedAt: now}
		jobs["done"] = state.Job{ID: "done", Status: state.StatusDone, StartedAt: now}
		return nil
	})

	reaped, err := f.registry.ReapTerminal()
	if err != nil {
		t.Fatalf("reap terminal: %v", err)
	}
	if len(reaped) != 2 {
		t.Fatalf("reaped %d, want 2 (dead reconciles to failed, done already terminal)", len(reaped))
	}

	remaining := f.store.LoadJobs()
	if len(remaining) != 1 {
		t.Fatalf("remaining = %+v", remaining)
	}
	if _, ok := remaining["live"]; !ok {
		t.Error("live job reaped")
	}
}

func TestLaunchStartFailureCleansSpec(t *testing.T) {
	f := newFixture(t)
	f.mock.AddRule(func(dir, name string, args []string) bool { return true },
		pexec.MockResponse{Err: os.ErrPermission})

	_, err := f.launcher.Launch(Spec{Kind: KindProcess, Title: "x"})
	if err == nil {
		t.Fatal("expected launch error")
	}
	entries, _ := filepath.Glob(filepath.Join(f.specsDir, "*.json"))
	if len(entries) != 0 {
		t.Errorf("spec files left behind: %v", entries)
	}
	if len(f.store.LoadJobs()) != 0 {
		t.Error("failed launch registered a job")
	}
}
