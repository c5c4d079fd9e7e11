// Package pipeline is the detached worker unit: the code that runs after a
// recording stops or a file is handed in for processing. It owns the
// extract → transcribe → analyze chain and always leaves a completion marker
// behind, even on panic, so the registry can reconcile the job's outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meetscribe/meetscribe/calltype"
	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/jobs"
	"github.com/meetscribe/meetscribe/llm"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/notify"
	"github.com/meetscribe/meetscribe/paths"
	"github.com/meetscribe/meetscribe/state"
	"github.com/meetscribe/meetscribe/transcribe"
)

// ErrExtractionFailed marks a failed or empty audio extraction. Fatal for
// the job; the source media is preserved.
var ErrExtractionFailed = errors.New("audio extraction failed")

// ContextBases locates call-type context files: the user's private base is
// tried first, then the bundled base next to the project config.
type ContextBases struct {
	Private string
	Bundled string
}

// Worker executes one job spec end to end.
type Worker struct {
	cfg        *config.Config
	executor   pexec.CommandExecutor
	engine     *transcribe.Engine
	notifier   *notify.Notifier
	markersDir string
	bases      ContextBases
	now        func() time.Time

	// newProvider is swapped in tests to avoid real API calls.
	newProvider func(config.LLM) (llm.Provider, error)
}

// NewWorker wires a worker against the standard directories.
func NewWorker(cfg *config.Config, executor pexec.CommandExecutor, bases ContextBases) (*Worker, error) {
	markersDir, err := paths.MarkersDir()
	if err != nil {
		return nil, err
	}
	return NewWorkerWith(cfg, executor, bases, markersDir), nil
}

// NewWorkerWith wires a worker with an explicit markers directory.
func NewWorkerWith(cfg *config.Config, executor pexec.CommandExecutor, bases ContextBases, markersDir string) *Worker {
	return &Worker{
		cfg:         cfg,
		executor:    executor,
		engine:      transcribe.NewEngine(executor, cfg.Transcription),
		notifier:    notify.New(executor, cfg.Notifications.Enabled),
		markersDir:  markersDir,
		bases:       bases,
		now:         time.Now,
		newProvider: llm.New,
	}
}

// Run executes the spec and writes the completion marker. The marker write
// is unconditional: a job that dies without one reconciles to failed, so
// even a panic mid-pipeline must leave a record.
func (w *Worker) Run(ctx context.Context, spec jobs.Spec) (err error) {
	log := logger.WithJob(spec.ID)
	log.Info("job started", "kind", spec.Kind, "title", spec.Title)

	marker := jobs.Marker{
		JobID:     spec.ID,
		Status:    state.StatusDone,
		OutputDir: spec.Paths.OutputDir,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
			marker.Status = state.StatusFailed
			marker.Error = fmt.Sprintf("panic: %v", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
		marker.FinishedAt = w.now()
		if werr := jobs.WriteMarker(w.markersDir, marker); werr != nil {
			log.Error("failed to write completion marker", "error", werr)
		}
		w.notifyOutcome(ctx, spec, marker)
		log.Info("job finished", "status", marker.Status)
	}()

	var transcriptDir string
	switch spec.Kind {
	case jobs.KindAnalyze:
		transcriptDir = spec.Paths.TranscriptDir
	default:
		transcriptDir, err = w.runMedia(ctx, spec, log)
		if err != nil {
			marker.Status = state.StatusFailed
			marker.Error = err.Error()
			return err
		}
	}
	marker.TranscriptDir = transcriptDir

	transcript, err := transcribe.LoadTranscript(transcriptDir)
	if err != nil {
		marker.Status = state.StatusFailed
		marker.Error = err.Error()
		return err
	}

	if !llm.Enabled(w.cfg.LLM) {
		log.Info("analysis not configured, skipping")
		return nil
	}

	analysisFile, err := w.analyze(ctx, spec, transcript, log)
	if err != nil {
		// Partial success: the transcript is on disk and usable.
		log.Warn("analysis failed, transcript retained", "error", err)
		marker.AnalysisError = err.Error()
		return nil
	}
	marker.AnalysisFile = analysisFile
	return nil
}

// runMedia performs the media stages: locate the input, extract audio,
// transcribe. Returns the transcript directory.
func (w *Worker) runMedia(ctx context.Context, spec jobs.Spec, log *slog.Logger) (string, error) {
	video, err := w.resolveInput(spec)
	if err != nil {
		return "", err
	}
	log.Info("input resolved", "video", video)

	if err := os.MkdirAll(spec.Paths.TranscriptDir, 0755); err != nil {
		return "", err
	}

	if err := w.extract(ctx, video, spec); err != nil {
		return "", err
	}
	log.Info("audio extracted", "audio", spec.Paths.AudioFile)

	if err := w.engine.Transcribe(ctx, spec.Paths.AudioFile, spec.Paths.TranscriptDir, spec.Diarize); err != nil {
		return "", err
	}
	return spec.Paths.TranscriptDir, nil
}

// resolveInput locates the source media. Record jobs may arrive without a
// path when the capture backend could not report one; the newest capture in
// the recording root is taken instead. Either way the file moves into the
// session directory.
func (w *Worker) resolveInput(spec jobs.Spec) (string, error) {
	if spec.Kind == jobs.KindProcess {
		if _, err := os.Stat(spec.InputPath); err != nil {
			return "", fmt.Errorf("input file missing: %s", spec.InputPath)
		}
		return spec.InputPath, nil
	}

	source := spec.InputPath
	if source == "" || !fileExists(source) {
		newest, err := newestCapture(paths.Expand(w.cfg.Recording.OutputDir))
		if err != nil {
			return "", err
		}
		source = newest
	}

	if err := os.MkdirAll(spec.Paths.OutputDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(spec.Paths.OutputDir, spec.Paths.Stem+filepath.Ext(source))
	if err := os.Rename(source, dest); err != nil {
		return "", fmt.Errorf("failed to move recording into session directory: %w", err)
	}
	return dest, nil
}

// newestCapture returns the most recently modified capture file in root.
func newestCapture(root string) (string, error) {
	var candidates []string
	for _, pattern := range []string{"*.mov", "*.mkv", "*.mp4"} {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return "", err
		}
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no capture file found in %s", root)
	}

	newest := candidates[0]
	newestMod := time.Time{}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	return newest, nil
}

// extract converts the video's audio track to 16 kHz mono WAV. The source
// is deleted only after the output is verified non-empty, and only when the
// job does not ask to keep it.
func (w *Worker) extract(ctx context.Context, video string, spec jobs.Spec) error {
	out, err := w.executor.CombinedOutput(ctx, "", "ffmpeg",
		"-i", video, "-ar", "16000", "-ac", "1", "-y", spec.Paths.AudioFile)
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrExtractionFailed, err, lastLine(string(out)))
	}

	info, err := os.Stat(spec.Paths.AudioFile)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: output missing or empty", ErrExtractionFailed)
	}

	if !spec.KeepSource {
		if err := os.Remove(video); err != nil {
			logger.WithComponent("pipeline").Warn("failed to remove source media", "path", video, "error", err)
		}
	}
	return nil
}

// analyze resolves the call-type prompt, runs the provider, and writes the
// analysis document beside the transcript.
func (w *Worker) analyze(ctx context.Context, spec jobs.Spec, transcript string, log *slog.Logger) (string, error) {
	res, err := calltype.Resolve(w.cfg.CallTypes, calltype.Request{
		ID:          spec.CallTypeID,
		PersonName:  spec.PersonName,
		Explicit:    spec.CallTypeID != "",
		PrivateBase: paths.Expand(w.bases.Private),
		BundledBase: w.bases.Bundled,
	})
	if err != nil {
		return "", err
	}

	provider, err := w.newProvider(w.cfg.LLM)
	if err != nil {
		return "", err
	}

	analysis, err := provider.Analyze(ctx, llm.Request{
		SystemPrompt: res.SystemPrompt,
		Title:        spec.Title,
		Transcript:   transcript,
	})
	if err != nil {
		return "", err
	}

	path := w.analysisPath(spec.Paths.OutputDir, provider.Model())
	doc := w.analysisDocument(spec, res, provider, analysis)
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("failed to write analysis: %w", err)
	}

	log.Info("analysis saved", "path", path, "provider", provider.Name(), "model", provider.Model())
	return path, nil
}

// analysisPath names the analysis document with a timestamp and the model,
// so repeated runs with different models sit side by side.
func (w *Worker) analysisPath(outputDir, model string) string {
	ts := w.now().Format("2006-01-02_150405")
	safeModel := strings.NewReplacer("/", "-", ":", "-").Replace(model)
	return filepath.Join(outputDir, fmt.Sprintf("analysis_%s_%s.md", ts, safeModel))
}

// analysisDocument renders the analysis with its metadata header.
func (w *Worker) analysisDocument(spec jobs.Spec, res calltype.Resolution, provider llm.Provider, analysis string) string {
	typeName := res.Type.Name
	if typeName == "" {
		typeName = "Meeting"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s Analysis\n\n", typeName)
	fmt.Fprintf(&sb, "**Title:** %s\n", spec.Title)
	fmt.Fprintf(&sb, "**Call Type:** %s\n", typeName)
	fmt.Fprintf(&sb, "**Analyzed:** %s\n", w.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Provider:** %s\n", provider.Name())
	fmt.Fprintf(&sb, "**Model:** %s\n", provider.Model())
	if spec.PersonName != "" {
		fmt.Fprintf(&sb, "**Person:** %s\n", spec.PersonName)
	}
	sb.WriteString("\n---\n\n")
	sb.WriteString(analysis)
	sb.WriteString("\n")
	return sb.String()
}

// notifyOutcome posts the end-of-job notification.
func (w *Worker) notifyOutcome(ctx context.Context, spec jobs.Spec, marker jobs.Marker) {
	switch {
	case marker.Status == state.StatusFailed:
		w.notifier.Send(ctx, "Processing Failed", fmt.Sprintf("%s: %s", spec.Title, marker.Error))
	case marker.AnalysisError != "":
		w.notifier.Send(ctx, "Transcription Complete", fmt.Sprintf("%s (analysis failed)", spec.Title))
	default:
		w.notifier.Send(ctx, "Processing Complete", spec.Title)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// lastLine returns the final non-empty line of command output, which is
// where ffmpeg puts its error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
