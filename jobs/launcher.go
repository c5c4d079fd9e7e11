package jobs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/state"
)

// Launcher starts detached worker processes and registers them. The
// launching invocation may exit immediately; the worker re-reads its spec
// file and writes its own completion marker.
type Launcher struct {
	store    *state.Store
	executor pexec.CommandExecutor
	specsDir string
	// exe is the binary to re-invoke as `exe worker --job <spec>`.
	exe string
	now func() time.Time
}

// NewLauncher creates a Launcher that re-invokes the current executable.
func NewLauncher(store *state.Store, executor pexec.CommandExecutor) (*Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	specsDir, err := paths.JobSpecsDir()
	if err != nil {
		return nil, err
	}
	return &Launcher{
		store:    store,
		executor: executor,
		specsDir: specsDir,
		exe:      exe,
		now:      time.Now,
	}, nil
}

// NewLauncherWith creates a fully-specified Launcher. Tests use this to
// control the worker binary and spec directory.
func NewLauncherWith(store *state.Store, executor pexec.CommandExecutor, specsDir, exe string) *Launcher {
	return &Launcher{
		store:    store,
		executor: executor,
		specsDir: specsDir,
		exe:      exe,
		now:      time.Now,
	}
}

// Launch writes the job spec, starts the detached worker, and records the
// job as running in the registry. Returns the registered job.
func (l *Launcher) Launch(spec Spec) (state.Job, error) {
	log := logger.WithComponent("jobs")

	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}

	specPath, err := WriteSpec(l.specsDir, spec)
	if err != nil {
		return state.Job{}, fmt.Errorf("failed to write job spec: %w", err)
	}

	pid, err := l.executor.StartDetached("", l.exe, "worker", "--job", specPath)
	if err != nil {
		os.Remove(specPath)
		return state.Job{}, fmt.Errorf("failed to start background worker: %w", err)
	}

	job := state.Job{
		ID:         spec.ID,
		PID:        pid,
		Title:      spec.Title,
		CallTypeID: spec.CallTypeID,
		PersonName: spec.PersonName,
		InputPath:  spec.InputPath,
		StartedAt:  l.now(),
		Status:     state.StatusRunning,
		Diarize:    spec.Diarize,
		OutputDir:  spec.Paths.OutputDir,
	}

	err = l.store.UpdateJobs(func(jobs map[string]state.Job) error {
		jobs[job.ID] = job
		return nil
	})
	if err != nil {
		return state.Job{}, fmt.Errorf("failed to register job: %w", err)
	}

	log.Info("background job launched", "jobID", job.ID, "pid", pid, "kind", spec.Kind, "title", spec.Title)
	return job, nil
}
