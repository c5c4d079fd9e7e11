package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/process"
	"github.com/meetscribe/meetscribe/state"
)

// Registry reads the shared job registry, reconciling every entry against
// process liveness and completion markers on every read. Reconciliation
// cannot wait for the launching invocation: it already exited.
type Registry struct {
	store      *state.Store
	markersDir string
	specsDir   string
	alive      func(pid int) bool
}

// NewRegistry creates a Registry over the standard state directories.
func NewRegistry(store *state.Store) (*Registry, error) {
	markersDir, err := paths.MarkersDir()
	if err != nil {
		return nil, err
	}
	specsDir, err := paths.JobSpecsDir()
	if err != nil {
		return nil, err
	}
	return NewRegistryWith(store, markersDir, specsDir), nil
}

// NewRegistryWith creates a Registry with explicit directories.
func NewRegistryWith(store *state.Store, markersDir, specsDir string) *Registry {
	return &Registry{
		store:      store,
		markersDir: markersDir,
		specsDir:   specsDir,
		alive:      process.Alive,
	}
}

// SetAliveCheck overrides the PID liveness probe. Tests use this to
// simulate dead workers.
func (r *Registry) SetAliveCheck(alive func(pid int) bool) {
	r.alive = alive
}

// List returns every registered job after reconciliation, oldest first.
// A running entry with a completion marker absorbs the marker's outcome; a
// running entry whose PID is dead with no marker becomes failed. Changes
// persist back to the registry document.
func (r *Registry) List() ([]state.Job, error) {
	log := logger.WithComponent("jobs")

	var out []state.Job
	err := r.store.UpdateJobs(func(jobs map[string]state.Job) error {
		for id, job := range jobs {
			if job.Status == state.StatusRunning {
				jobs[id] = r.reconcile(job, log)
			}
		}
		out = make([]state.Job, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// reconcile derives a running job's true status.
func (r *Registry) reconcile(job state.Job, log *slog.Logger) state.Job {
	marker, err := ReadMarker(r.markersDir, job.ID)
	if err != nil {
		log.Warn("completion marker unreadable", "jobID", job.ID, "error", err)
	}
	if marker != nil {
		job.Status = marker.Status
		job.Error = marker.Error
		job.AnalysisError = marker.AnalysisError
		if marker.OutputDir != "" {
			job.OutputDir = marker.OutputDir
		}
		job.TranscriptDir = marker.TranscriptDir
		job.AnalysisFile = marker.AnalysisFile
		log.Info("job completed", "jobID", job.ID, "status", job.Status)
		return job
	}

	if !r.alive(job.PID) {
		job.Status = state.StatusFailed
		job.Error = "job terminated unexpectedly"
		log.Warn("job process died without a completion marker", "jobID", job.ID, "pid", job.PID)
	}
	return job
}

// Reap removes an acknowledged terminal job and its marker and spec files.
// Running jobs are never reaped.
func (r *Registry) Reap(jobID string) error {
	err := r.store.UpdateJobs(func(jobs map[string]state.Job) error {
		job, ok := jobs[jobID]
		if !ok {
			return fmt.Errorf("no such job: %s", jobID)
		}
		if job.Status == state.StatusRunning {
			job = r.reconcile(job, logger.WithComponent("jobs"))
		}
		if !job.Status.Terminal() {
			return fmt.Errorf("job %s is still running", jobID)
		}
		delete(jobs, jobID)
		return nil
	})
	if err != nil {
		return err
	}
	r.removeArtifacts(jobID)
	return nil
}

// ReapTerminal removes all terminal jobs after reconciliation and returns
// them.
func (r *Registry) ReapTerminal() ([]state.Job, error) {
	log := logger.WithComponent("jobs")

	var reaped []state.Job
	err := r.store.UpdateJobs(func(jobs map[string]state.Job) error {
		reaped = reaped[:0]
		for id, job := range jobs {
			if job.Status == state.StatusRunning {
				job = r.reconcile(job, log)
				jobs[id] = job
			}
			if job.Status.Terminal() {
				reaped = append(reaped, job)
				delete(jobs, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, job := range reaped {
		r.removeArtifacts(job.ID)
	}
	sort.Slice(reaped, func(i, j int) bool {
		return reaped[i].StartedAt.Before(reaped[j].StartedAt)
	})
	return reaped, nil
}

// removeArtifacts best-effort deletes a job's marker and spec files.
func (r *Registry) removeArtifacts(jobID string) {
	for _, path := range []string{
		MarkerPath(r.markersDir, jobID),
		SpecPath(r.specsDir, jobID),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.WithComponent("jobs").Warn("failed to remove job artifact", "path", path, "error", err)
		}
	}
}
