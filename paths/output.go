package paths

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// OutputSet is the named set of artifact paths for one recording session.
// It is persisted inside the session state document and handed to the
// background pipeline, so its JSON shape is stable.
type OutputSet struct {
	BaseName      string `json:"base_name"`
	Stem          string `json:"filename"`
	OutputDir     string `json:"output_dir"`
	AudioFile     string `json:"audio_file"`
	TranscriptDir string `json:"transcript_dir"`
	MetadataFile  string `json:"metadata_file"`
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeTitle converts a recording title to a safe filename fragment:
// characters outside [\w\s-] are dropped, whitespace runs become a single
// underscore, and the result is capped at 50 characters.
func SanitizeTitle(title string) string {
	s := unsafeChars.ReplaceAllString(title, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// NewOutputSet generates the artifact paths for a session titled title,
// rooted at outputRoot, stamped with now. An empty title falls back to
// "Recording".
//
// Layout: <outputRoot>/<date>_<title>/<date>_<title>_<time>{.wav,_transcript/,_metadata.json}
func NewOutputSet(outputRoot, title string, now time.Time) OutputSet {
	dateStr := now.Format("2006-01-02")
	timeStr := now.Format("150405")

	baseName := dateStr + "_Recording"
	if safe := SanitizeTitle(title); safe != "" {
		baseName = dateStr + "_" + safe
	}
	stem := baseName + "_" + timeStr
	outputDir := filepath.Join(outputRoot, baseName)

	return OutputSet{
		BaseName:      baseName,
		Stem:          stem,
		OutputDir:     outputDir,
		AudioFile:     filepath.Join(outputDir, stem+".wav"),
		TranscriptDir: filepath.Join(outputDir, stem+"_transcript"),
		MetadataFile:  filepath.Join(outputDir, stem+"_metadata.json"),
	}
}

// Expand resolves a leading ~ and any environment variables in path.
func Expand(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
