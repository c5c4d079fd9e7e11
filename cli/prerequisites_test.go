package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meetscribe/meetscribe/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Recording:     config.Recording{Controller: "obsws"},
		Transcription: config.Transcription{Path: "whisperx"},
	}
}

func TestForRecording(t *testing.T) {
	cfg := testConfig()

	prereqs := ForRecording(cfg)
	for _, p := range prereqs {
		if p.Name == "obs-cmd" {
			t.Error("obs-cmd should not be required for the obsws controller")
		}
	}

	cfg.Recording.Controller = "obs-cmd"
	prereqs = ForRecording(cfg)
	found := false
	for _, p := range prereqs {
		if p.Name == "obs-cmd" {
			found = true
			if !p.Required {
				t.Error("obs-cmd should be required when selected as controller")
			}
		}
	}
	if !found {
		t.Error("obs-cmd missing from recording prerequisites")
	}
}

func TestForProcessing(t *testing.T) {
	cfg := testConfig()
	cfg.Transcription.Path = "/opt/whisperx/bin/whisperx"

	prereqs := ForProcessing(cfg)
	names := map[string]bool{}
	for _, p := range prereqs {
		names[p.Name] = true
		if !p.Required {
			t.Errorf("prerequisite %q should be required", p.Name)
		}
	}
	if !names["ffmpeg"] {
		t.Error("ffmpeg missing from processing prerequisites")
	}
	if !names["/opt/whisperx/bin/whisperx"] {
		t.Error("configured whisperx path missing from processing prerequisites")
	}
}

func TestCheckPathLookup(t *testing.T) {
	result := Check(Prerequisite{Name: "sh", Required: true})
	if !result.Found {
		t.Skip("sh not found in PATH")
	}
	if result.Path == "" {
		t.Error("Check should report the resolved path")
	}
}

func TestCheckMissingCommand(t *testing.T) {
	result := Check(Prerequisite{Name: "definitely-not-a-real-command-12345", Required: true})
	if result.Found {
		t.Error("Check should report missing commands as not found")
	}
	if result.Path != "" {
		t.Errorf("Path = %q for missing command", result.Path)
	}
}

func TestCheckExplicitPath(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "whisperx")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	result := Check(Prerequisite{Name: binary, Required: true})
	if !result.Found {
		t.Error("Check should find an existing binary by path")
	}
	if result.Path != binary {
		t.Errorf("Path = %q, want %q", result.Path, binary)
	}

	result = Check(Prerequisite{Name: filepath.Join(dir, "missing"), Required: true})
	if result.Found {
		t.Error("Check should not find a nonexistent path")
	}

	// A directory is not a usable binary.
	result = Check(Prerequisite{Name: dir, Required: true})
	if result.Found {
		t.Error("Check should reject directories")
	}
}

func TestCheckPrerequisites(t *testing.T) {
	err := CheckPrerequisites([]Prerequisite{
		{Name: "definitely-not-a-real-command-12345", Required: true, Description: "fake tool", InstallURL: "https://example.com"},
		{Name: "also-not-real-67890", Required: false},
	})
	if err == nil {
		t.Fatal("expected error for missing required tool")
	}
	if !strings.Contains(err.Error(), "definitely-not-a-real-command-12345") {
		t.Errorf("error should name the missing tool: %v", err)
	}
	if strings.Contains(err.Error(), "also-not-real-67890") {
		t.Errorf("optional tools should not fail the check: %v", err)
	}

	if err := CheckPrerequisites([]Prerequisite{{Name: "also-not-real-67890", Required: false}}); err != nil {
		t.Errorf("optional-only check should pass: %v", err)
	}
}
