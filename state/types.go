package state

import (
	"time"

	"github.com/meetscribe/meetscribe/paths"
)

// Phase is the session lifecycle position while a recording exists.
type Phase string

const (
	// PhaseRecording means the capture backend is rolling.
	PhaseRecording Phase = "recording"
	// PhaseHandingOff is the transient window during stop, between winning
	// the stop race and clearing the session. A session in this phase
	// reports NotRecording to further stop attempts.
	PhaseHandingOff Phase = "handing_off"
)

// Session is the recording-state document. The zero value means idle.
type Session struct {
	Active      bool            `json:"active"`
	Phase       Phase           `json:"phase,omitempty"`
	Title       string          `json:"title,omitempty"`
	CallTypeID  string          `json:"call_type_id,omitempty"`
	PersonName  string          `json:"person_name,omitempty"`
	Diarize     bool            `json:"diarize,omitempty"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	OutputPaths paths.OutputSet `json:"output_paths,omitempty"`
}

// Status is a job's lifecycle state as persisted in the registry. Liveness
// is derived, not trusted: a running entry is only believed while its PID is
// alive or a completion marker exists.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one entry in the processing-registry document.
type Job struct {
	ID         string    `json:"job_id"`
	PID        int       `json:"pid"`
	Title      string    `json:"title"`
	CallTypeID string    `json:"call_type_id"`
	PersonName string    `json:"person_name,omitempty"`
	InputPath  string    `json:"input_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Status     Status    `json:"status"`
	Diarize    bool      `json:"diarize,omitempty"`

	// Error holds the failure reason for a failed job. AnalysisError marks
	// the partial-success case: transcription finished and the transcript is
	// kept, but the analysis stage failed.
	Error         string `json:"error,omitempty"`
	AnalysisError string `json:"analysis_error,omitempty"`

	OutputDir     string `json:"output_dir,omitempty"`
	TranscriptDir string `json:"transcript_dir,omitempty"`
	AnalysisFile  string `json:"analysis_file,omitempty"`
}

// jobsDocument is the on-disk shape of the registry.
type jobsDocument struct {
	Jobs map[string]Job `json:"jobs"`
}
