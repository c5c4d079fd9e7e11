package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/meetscribe/meetscribe/state"
)

// Marker is the completion record a worker writes for itself at
// <markers dir>/<job_id>.json. Its presence is what distinguishes a
// finished job from one that died mid-pipeline: a dead PID with no marker
// reconciles to failed.
type Marker struct {
	JobID  string       `json:"job_id"`
	Status state.Status `json:"status"`
	// Error is set when the job failed outright. AnalysisError is the
	// partial-success case: the transcript exists but analysis failed.
	Error         string    `json:"error,omitempty"`
	AnalysisError string    `json:"analysis_error,omitempty"`
	OutputDir     string    `json:"output_dir,omitempty"`
	TranscriptDir string    `json:"transcript_dir,omitempty"`
	AnalysisFile  string    `json:"analysis_file,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// MarkerPath returns the marker file location for a job id.
func MarkerPath(markersDir, jobID string) string {
	return filepath.Join(markersDir, jobID+".json")
}

// WriteMarker persists a completion marker. The write goes through a temp
// file and rename so a concurrently reconciling reader never sees a
// half-written marker.
func WriteMarker(markersDir string, m Marker) error {
	if err := os.MkdirAll(markersDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := MarkerPath(markersDir, m.JobID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadMarker loads a job's completion marker. A missing marker yields
// (nil, nil); a corrupt one is an error so the caller can decide.
func ReadMarker(markersDir, jobID string) (*Marker, error) {
	data, err := os.ReadFile(MarkerPath(markersDir, jobID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
