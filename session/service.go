// Package session implements the recording state machine: starting and
// stopping capture sessions and handing finished media off to detached
// background jobs. All durable state lives in the state store; a session
// started by one CLI invocation is stopped by another.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/meetscribe/meetscribe/calltype"
	"github.com/meetscribe/meetscribe/capture"
	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/jobs"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/notify"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/state"
)

var (
	// ErrAlreadyRecording is returned by Start while a session exists.
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	// ErrNotRecording is returned by Stop when no session is in the
	// recording phase. A session mid-handoff also reports this: the stop
	// already has a winner.
	ErrNotRecording = errors.New("no recording in progress")
)

// InputNotFoundError marks a missing input file or session folder.
type InputNotFoundError struct {
	Path string
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input not found: %s", e.Path)
}

// UnsupportedFormatError marks a media extension the pipeline does not
// accept.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported video format: %s", e.Ext)
}

// videoExtensions is the accepted input media whitelist.
var videoExtensions = map[string]bool{
	".mov": true, ".mkv": true, ".mp4": true, ".avi": true, ".webm": true,
}

// Launcher starts detached background jobs. Satisfied by jobs.Launcher;
// tests substitute a recorder.
type Launcher interface {
	Launch(spec jobs.Spec) (state.Job, error)
}

// Service drives the session lifecycle.
type Service struct {
	cfg        *config.Config
	store      *state.Store
	controller capture.Controller
	launcher   Launcher
	notifier   *notify.Notifier
	now        func() time.Time
}

// NewService wires a session service.
func NewService(cfg *config.Config, store *state.Store, controller capture.Controller, launcher Launcher, notifier *notify.Notifier) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		controller: controller,
		launcher:   launcher,
		notifier:   notifier,
		now:        time.Now,
	}
}

// StartOptions carries the start parameters. Diarize is the resolved value;
// the CLI applies the configured default when no flag is given.
type StartOptions struct {
	Title      string
	CallTypeID string
	PersonName string
	Diarize    bool
}

// Start begins a new recording session. The call type is validated before
// anything is mutated, so a typo'd --call-type leaves no trace.
func (s *Service) Start(ctx context.Context, opts StartOptions) (state.Session, error) {
	log := logger.WithComponent("session")

	id, ct, err := calltype.Lookup(s.cfg.CallTypes, calltype.Request{
		ID:         opts.CallTypeID,
		PersonName: opts.PersonName,
		Explicit:   opts.CallTypeID != "",
	})
	if err != nil {
		return state.Session{}, err
	}

	if cur := s.store.LoadSession(); cur.Active {
		return state.Session{}, ErrAlreadyRecording
	}

	title := opts.Title
	if title == "" {
		title = ct.Name
		if title == "" {
			title = "Recording"
		}
		if opts.PersonName != "" {
			title += " - " + opts.PersonName
		}
	}

	now := s.now()
	set := paths.NewOutputSet(paths.Expand(s.cfg.Recording.OutputDir), title, now)
	if err := os.MkdirAll(set.OutputDir, 0755); err != nil {
		return state.Session{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.MkdirAll(set.TranscriptDir, 0755); err != nil {
		return state.Session{}, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	err = WriteMetadata(set.MetadataFile, Metadata{
		MeetingTitle:     title,
		CallType:         id,
		CallTypeName:     ct.Name,
		PersonName:       opts.PersonName,
		RecordingStarted: now.Format(time.RFC3339),
	})
	if err != nil {
		return state.Session{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := s.controller.EnsureRunning(ctx); err != nil {
		return state.Session{}, err
	}
	if err := s.controller.Start(ctx); err != nil {
		return state.Session{}, fmt.Errorf("failed to start recording: %w", err)
	}

	session := state.Session{
		Active:      true,
		Phase:       state.PhaseRecording,
		Title:       title,
		CallTypeID:  id,
		PersonName:  opts.PersonName,
		Diarize:     opts.Diarize,
		StartedAt:   now,
		OutputPaths: set,
	}
	err = s.store.UpdateSession(func(cur *state.Session) error {
		if cur.Active {
			return ErrAlreadyRecording
		}
		*cur = session
		return nil
	})
	if err != nil {
		// Capture is already rolling with no session to own it; stop it
		// again before reporting the loss.
		if _, stopErr := s.controller.Stop(ctx); stopErr != nil {
			log.Warn("failed to stop capture after losing start race", "error", stopErr)
		}
		return state.Session{}, err
	}

	log.Info("recording started", "title", title, "callType", id, "diarize", opts.Diarize)
	s.notifier.Send(ctx, "Recording Started", title)
	return session, nil
}

// Stop ends the current recording and hands the media to a detached
// processing job. Concurrent stops race for the recording→handing_off flip
// under the store lock; exactly one wins.
func (s *Service) Stop(ctx context.Context) (state.Job, error) {
	log := logger.WithComponent("session")

	var sess state.Session
	err := s.store.UpdateSession(func(cur *state.Session) error {
		if !cur.Active || cur.Phase != state.PhaseRecording {
			return ErrNotRecording
		}
		cur.Phase = state.PhaseHandingOff
		sess = *cur
		return nil
	})
	if err != nil {
		return state.Job{}, err
	}

	outputPath, err := s.controller.Stop(ctx)
	if err != nil {
		// The recording may still be rolling; give the next stop a chance.
		s.store.UpdateSession(func(cur *state.Session) error {
			if cur.Active && cur.Phase == state.PhaseHandingOff {
				cur.Phase = state.PhaseRecording
			}
			return nil
		})
		return state.Job{}, fmt.Errorf("failed to stop recording: %w", err)
	}

	stopped := s.now().Format(time.RFC3339)
	if err := UpdateMetadata(sess.OutputPaths.MetadataFile, func(m *Metadata) {
		m.RecordingStopped = &stopped
	}); err != nil {
		log.Warn("failed to update metadata", "error", err)
	}

	s.controller.Shutdown(ctx)

	job, launchErr := s.launcher.Launch(jobs.Spec{
		Kind:       jobs.KindRecord,
		Title:      sess.Title,
		CallTypeID: sess.CallTypeID,
		PersonName: sess.PersonName,
		Diarize:    sess.Diarize,
		InputPath:  outputPath,
		Paths:      sess.OutputPaths,
	})

	// The session clears regardless: the recording is finalized on disk and
	// a stuck handing_off session would block every future start.
	clearErr := s.store.UpdateSession(func(cur *state.Session) error {
		*cur = state.Session{}
		return nil
	})
	if launchErr != nil {
		return state.Job{}, fmt.Errorf("failed to launch processing job: %w", launchErr)
	}
	if clearErr != nil {
		return state.Job{}, clearErr
	}

	log.Info("recording stopped, processing handed off", "title", sess.Title, "jobID", job.ID)
	s.notifier.Send(ctx, "Recording Complete", fmt.Sprintf("Processing %s", sess.Title))
	return job, nil
}

// ProcessOptions carries the parameters for processing an existing file.
type ProcessOptions struct {
	Path       string
	Title      string
	CallTypeID string
	PersonName string
	Diarize    bool
	KeepSource bool
}

// Process runs the full pipeline over an existing media file in a detached
// job. The invoking command returns as soon as the job is launched.
func (s *Service) Process(ctx context.Context, opts ProcessOptions) (state.Job, error) {
	log := logger.WithComponent("session")

	input, err := filepath.Abs(paths.Expand(opts.Path))
	if err != nil {
		return state.Job{}, err
	}
	info, err := os.Stat(input)
	if err != nil {
		return state.Job{}, &InputNotFoundError{Path: input}
	}
	if ext := strings.ToLower(filepath.Ext(input)); !videoExtensions[ext] {
		return state.Job{}, &UnsupportedFormatError{Ext: filepath.Ext(input)}
	}

	id, ct, err := calltype.Lookup(s.cfg.CallTypes, calltype.Request{
		ID:         opts.CallTypeID,
		PersonName: opts.PersonName,
		Explicit:   opts.CallTypeID != "",
	})
	if err != nil {
		return state.Job{}, err
	}

	title := opts.Title
	if title == "" {
		title = DeriveTitle(input)
	}

	now := s.now()
	set := paths.NewOutputSet(paths.Expand(s.cfg.Recording.OutputDir), title, now)
	if err := os.MkdirAll(set.OutputDir, 0755); err != nil {
		return state.Job{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.MkdirAll(set.TranscriptDir, 0755); err != nil {
		return state.Job{}, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	err = WriteMetadata(set.MetadataFile, Metadata{
		MeetingTitle: title,
		CallType:     id,
		CallTypeName: ct.Name,
		PersonName:   opts.PersonName,
		OriginalFile: input,
		FileDate:     info.ModTime().Format(time.RFC3339),
		ProcessedAt:  now.Format(time.RFC3339),
	})
	if err != nil {
		return state.Job{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	job, err := s.launcher.Launch(jobs.Spec{
		Kind:       jobs.KindProcess,
		Title:      title,
		CallTypeID: id,
		PersonName: opts.PersonName,
		Diarize:    opts.Diarize,
		KeepSource: opts.KeepSource,
		InputPath:  input,
		Paths:      set,
	})
	if err != nil {
		return state.Job{}, fmt.Errorf("failed to launch processing job: %w", err)
	}

	log.Info("processing job launched", "input", input, "title", title, "jobID", job.ID)
	return job, nil
}

// AnalyzeOptions carries the parameters for re-analyzing a session folder.
type AnalyzeOptions struct {
	Folder     string
	CallTypeID string
	PersonName string
}

// Analyze launches an analyze-only job over an existing session folder. The
// folder must contain a *_transcript directory from an earlier run.
func (s *Service) Analyze(ctx context.Context, opts AnalyzeOptions) (state.Job, error) {
	log := logger.WithComponent("session")

	folder, err := filepath.Abs(paths.Expand(opts.Folder))
	if err != nil {
		return state.Job{}, err
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return state.Job{}, &InputNotFoundError{Path: folder}
	}

	transcriptDirs, err := filepath.Glob(filepath.Join(folder, "*_transcript"))
	if err != nil {
		return state.Job{}, err
	}
	if len(transcriptDirs) == 0 {
		return state.Job{}, &InputNotFoundError{Path: filepath.Join(folder, "*_transcript")}
	}

	title := "Recording"
	var metadataFile string
	if metadataFiles, _ := filepath.Glob(filepath.Join(folder, "*_metadata.json")); len(metadataFiles) > 0 {
		metadataFile = metadataFiles[0]
		if m, err := ReadMetadata(metadataFile); err == nil && m.MeetingTitle != "" {
			title = m.MeetingTitle
		}
	}

	id, _, err := calltype.Lookup(s.cfg.CallTypes, calltype.Request{
		ID:         opts.CallTypeID,
		PersonName: opts.PersonName,
		Explicit:   opts.CallTypeID != "",
	})
	if err != nil {
		return state.Job{}, err
	}

	job, err := s.launcher.Launch(jobs.Spec{
		Kind:       jobs.KindAnalyze,
		Title:      title,
		CallTypeID: id,
		PersonName: opts.PersonName,
		InputPath:  folder,
		Paths: paths.OutputSet{
			OutputDir:     folder,
			TranscriptDir: transcriptDirs[0],
			MetadataFile:  metadataFile,
		},
	})
	if err != nil {
		return state.Job{}, fmt.Errorf("failed to launch analysis job: %w", err)
	}

	log.Info("analysis job launched", "folder", folder, "title", title, "jobID", job.ID)
	return job, nil
}

var (
	// Capture tools prefix filenames with timestamps like
	// "2026-01-06 12-30-45" or "20260106_123045".
	datetimePrefix = regexp.MustCompile(`^\d{4}[-_]?\d{2}[-_]?\d{2}[-_\s]*\d{2}[-_]?\d{2}[-_]?\d{2}[-_\s]*`)
	compactPrefix  = regexp.MustCompile(`^\d{8}[-_\s]*\d{6}[-_\s]*`)
)

// DeriveTitle extracts a human title from a media filename: the extension
// and any leading date/time pattern are stripped, with "Recording" as the
// fallback.
func DeriveTitle(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := datetimePrefix.ReplaceAllString(stem, "")
	title = compactPrefix.ReplaceAllString(title, "")
	if title == "" {
		return "Recording"
	}
	return title
}
