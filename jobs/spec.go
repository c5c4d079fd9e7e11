// Package jobs launches detached processing work and tracks it in the
// shared registry. A launched job outlives the invocation that started it;
// later invocations observe progress by reconciling recorded PIDs against
// actual process liveness and the completion markers jobs write for
// themselves.
package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meetscribe/meetscribe/paths"
)

// Kind selects which pipeline the worker runs for a job.
type Kind string

const (
	// KindRecord processes the output of a just-stopped recording: locate
	// the capture file, extract, transcribe, analyze.
	KindRecord Kind = "record"
	// KindProcess runs the same pipeline over an existing media file.
	KindProcess Kind = "process"
	// KindAnalyze re-runs only the analysis stage over an existing
	// transcript folder.
	KindAnalyze Kind = "analyze"
)

// Spec is the full instruction set for one background job, written to
// <specs dir>/<job_id>.json and handed to the detached worker process.
type Spec struct {
	ID         string          `json:"job_id"`
	Kind       Kind            `json:"kind"`
	Title      string          `json:"title"`
	CallTypeID string          `json:"call_type_id"`
	PersonName string          `json:"person_name,omitempty"`
	Diarize    bool            `json:"diarize"`
	KeepSource bool            `json:"keep_source,omitempty"`
	// InputPath is the source media for process jobs, the session folder
	// for analyze jobs, and the capture backend's reported output path for
	// record jobs (may be empty, in which case the worker scans the
	// recording root).
	InputPath string          `json:"input_path,omitempty"`
	Paths     paths.OutputSet `json:"output_paths"`
}

// SpecPath returns the spec file location for a job id.
func SpecPath(specsDir, jobID string) string {
	return filepath.Join(specsDir, jobID+".json")
}

// WriteSpec persists a job spec for the worker to read.
func WriteSpec(specsDir string, spec Spec) (string, error) {
	if err := os.MkdirAll(specsDir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", err
	}
	path := SpecPath(specsDir, spec.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSpec loads a job spec file.
func ReadSpec(path string) (Spec, error) {
	var spec Spec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read job spec %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse job spec %s: %w", path, err)
	}
	return spec, nil
}
