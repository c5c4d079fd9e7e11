// Package cli verifies the external binaries meetscribe depends on before a
// command commits to work that needs them.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/paths"
)

// Prerequisite is one external tool a command needs.
type Prerequisite struct {
	Name        string // command name or path (e.g. "ffmpeg", "~/.local/bin/whisperx")
	Required    bool   // missing required tools fail the command
	Description string
	InstallURL  string
}

// ForRecording lists the tools the start/stop flow needs. The media tools
// are included because stop hands straight off to the processing pipeline.
func ForRecording(cfg *config.Config) []Prerequisite {
	prereqs := mediaPrerequisites(cfg)
	if cfg.Recording.Controller == "obs-cmd" {
		prereqs = append(prereqs, Prerequisite{
			Name:        "obs-cmd",
			Required:    true,
			Description: "OBS remote control CLI",
			InstallURL:  "https://github.com/grigio/obs-cmd",
		})
	}
	return prereqs
}

// ForProcessing lists the tools a process/worker invocation needs.
func ForProcessing(cfg *config.Config) []Prerequisite {
	return mediaPrerequisites(cfg)
}

func mediaPrerequisites(cfg *config.Config) []Prerequisite {
	return []Prerequisite{
		{
			Name:        "ffmpeg",
			Required:    true,
			Description: "audio extraction",
			InstallURL:  "https://ffmpeg.org/download.html",
		},
		{
			Name:        cfg.Transcription.Path,
			Required:    true,
			Description: "WhisperX transcription",
			InstallURL:  "https://github.com/m-bain/whisperX",
		},
	}
}

// CheckResult is the outcome of probing for one prerequisite.
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string
}

// Check probes for a single tool. Names containing a path separator are
// checked on disk (the configured WhisperX binary is usually an absolute
// path into a venv); bare names go through PATH lookup.
func Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	name := paths.Expand(prereq.Name)
	if strings.ContainsRune(name, os.PathSeparator) {
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			return result
		}
		result.Found = true
		result.Path = name
		return result
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return result
	}
	result.Found = true
	result.Path = path
	return result
}

// CheckAll probes every prerequisite.
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(prereq)
	}
	return results
}

// CheckPrerequisites fails when any required tool is missing. The error
// names every missing tool with its install pointer so one run surfaces the
// full fix list.
func CheckPrerequisites(prereqs []Prerequisite) error {
	var missing []string
	for _, result := range CheckAll(prereqs) {
		if result.Found || !result.Prerequisite.Required {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
			result.Prerequisite.Name, result.Prerequisite.Description, result.Prerequisite.InstallURL))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}
