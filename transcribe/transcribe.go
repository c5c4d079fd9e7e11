// Package transcribe wraps the external WhisperX CLI and loads the
// transcript files it produces.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
)

// ErrTranscriptionFailed marks a failed transcription run. Fatal for the
// job; partial artifacts in the transcript directory are kept.
var ErrTranscriptionFailed = errors.New("transcription failed")

// ErrNoTranscript means the transcript directory holds no usable output.
var ErrNoTranscript = errors.New("no transcript found")

// torchEnv works around torch weights-only loading in recent WhisperX
// builds.
const torchEnv = "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD"

// Engine invokes the WhisperX CLI with the configured transcription
// options.
type Engine struct {
	executor pexec.CommandExecutor
	opts     config.Transcription
}

// NewEngine returns an Engine over the given executor and options.
func NewEngine(executor pexec.CommandExecutor, opts config.Transcription) *Engine {
	return &Engine{executor: executor, opts: opts}
}

// Args builds the WhisperX command line for an audio file. Diarization
// credentials are passed only when diarization is requested.
func (e *Engine) Args(audioFile, outputDir string, diarize bool) []string {
	args := []string{
		audioFile,
		"--language", e.opts.Language,
		"--compute_type", e.opts.ComputeType,
		"--device", e.opts.Device,
		"--output_dir", outputDir,
	}
	if diarize {
		args = append(args, "--diarize", "--hf_token", e.opts.HFToken)
	}
	return args
}

// Transcribe runs WhisperX over audioFile, writing transcript files into
// outputDir. This call blocks for the duration of the transcription; only
// the detached worker ever invokes it.
func (e *Engine) Transcribe(ctx context.Context, audioFile, outputDir string, diarize bool) error {
	log := logger.WithComponent("transcribe")

	bin := paths.Expand(e.opts.Path)
	args := e.Args(audioFile, outputDir, diarize)

	log.Info("starting transcription", "audio", audioFile, "diarize", diarize, "device", e.opts.Device)
	os.Setenv(torchEnv, "1")

	output, err := e.executor.CombinedOutput(ctx, "", bin, args...)
	if err != nil {
		log.Error("whisperx failed", "error", err, "output", tail(string(output), 2000))
		return fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	log.Info("transcription complete", "outputDir", outputDir)
	return nil
}

// LoadTranscript returns the transcript text from a transcript directory.
// WhisperX writes several formats; the plain .txt is preferred, with the
// .json segment file as fallback rendered one segment per line, speaker
// labels in brackets.
func LoadTranscript(dir string) (string, error) {
	txtFiles, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return "", err
	}
	if len(txtFiles) > 0 {
		data, err := os.ReadFile(txtFiles[0])
		if err != nil {
			return "", fmt.Errorf("failed to read transcript %s: %w", txtFiles[0], err)
		}
		return string(data), nil
	}

	jsonFiles, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return "", err
	}
	for _, jf := range jsonFiles {
		text, err := transcriptFromJSON(jf)
		if err != nil {
			logger.WithComponent("transcribe").Warn("transcript JSON unusable", "path", jf, "error", err)
			continue
		}
		if text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("%w in %s", ErrNoTranscript, dir)
}

// segmentFile is the WhisperX JSON output shape we care about.
type segmentFile struct {
	Segments []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	} `json:"segments"`
}

func transcriptFromJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var sf segmentFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return "", err
	}
	if len(sf.Segments) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(sf.Segments))
	for _, seg := range sf.Segments {
		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" {
			lines = append(lines, fmt.Sprintf("[%s]: %s", seg.Speaker, text))
		} else {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
