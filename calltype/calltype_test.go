package calltype

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
)

func testTypes() map[string]config.CallType {
	return map[string]config.CallType{
		config.GenericCallTypeID: {
			Name:   "Generic",
			Icon:   "🎙️",
			Prompt: "Please summarize this transcript.",
		},
		"team_meeting": {
			Name:   "Team Meeting",
			Icon:   "📋",
			Prompt: "Summarize this meeting",
		},
		"one_on_one": {
			Name:               "1:1",
			Icon:               "👤",
			PromptTemplate:     "Analyze this 1:1 with {person_name}. Note what {person_name} committed to.",
			RequiresPersonName: true,
		},
	}
}

func setupLogger(t *testing.T) {
	t.Helper()
	logger.Reset()
	if err := logger.Init(filepath.Join(t.TempDir(), "test.log")); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	t.Cleanup(logger.Reset)
}

func TestLookupImplicitDefault(t *testing.T) {
	id, ct, err := Lookup(testTypes(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != config.GenericCallTypeID {
		t.Errorf("id = %q, want generic", id)
	}
	if ct.Name != "Generic" {
		t.Errorf("Name = %q", ct.Name)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	// The config merge lower-cases map keys, so a mixed-case id on the
	// command line must still find its configured type.
	id, ct, err := Lookup(testTypes(), Request{ID: "Team_Meeting", Explicit: true})
	if err != nil {
		t.Fatalf("mixed-case id not matched: %v", err)
	}
	if id != "team_meeting" {
		t.Errorf("id = %q, want team_meeting", id)
	}
	if ct.Name != "Team Meeting" {
		t.Errorf("Name = %q", ct.Name)
	}
}

func TestLookupUnknownImplicitFallsBack(t *testing.T) {
	id, _, err := Lookup(testTypes(), Request{ID: "nope", Explicit: false})
	if err != nil {
		t.Fatalf("implicit unknown id must fall back: %v", err)
	}
	if id != config.GenericCallTypeID {
		t.Errorf("id = %q, want generic", id)
	}
}

func TestLookupUnknownExplicitFails(t *testing.T) {
	_, _, err := Lookup(testTypes(), Request{ID: "team_meting", Explicit: true})
	var unknownErr *UnknownTypeError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if unknownErr.ID != "team_meting" {
		t.Errorf("ID = %q", unknownErr.ID)
	}
}

func TestLookupMissingPersonName(t *testing.T) {
	_, _, err := Lookup(testTypes(), Request{ID: "one_on_one", Explicit: true})
	var missingErr *MissingPersonError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingPersonError, got %v", err)
	}

	if _, _, err := Lookup(testTypes(), Request{ID: "one_on_one", PersonName: "Sam", Explicit: true}); err != nil {
		t.Fatalf("person supplied, unexpected error: %v", err)
	}
}

func TestResolveTemplateSubstitution(t *testing.T) {
	setupLogger(t)

	res, err := Resolve(testTypes(), Request{ID: "one_on_one", PersonName: "Sam", Explicit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.SystemPrompt, "Sam") {
		t.Errorf("prompt does not contain person name: %q", res.SystemPrompt)
	}
	if strings.Contains(res.SystemPrompt, "{person_name}") {
		t.Errorf("placeholder left unsubstituted: %q", res.SystemPrompt)
	}
	// Every occurrence is substituted.
	if got := strings.Count(res.SystemPrompt, "Sam"); got != 2 {
		t.Errorf("expected 2 substitutions, got %d", got)
	}
}

func TestResolveStaticPromptVerbatim(t *testing.T) {
	setupLogger(t)

	res, err := Resolve(testTypes(), Request{ID: "team_meeting", Explicit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SystemPrompt != "Summarize this meeting" {
		t.Errorf("SystemPrompt = %q", res.SystemPrompt)
	}
}

func TestResolveContextFiles(t *testing.T) {
	setupLogger(t)
	private := t.TempDir()
	bundled := t.TempDir()

	// Declared order must be preserved; the private base wins over bundled.
	mustWrite(t, filepath.Join(private, "shared.md"), "PRIVATE SHARED")
	mustWrite(t, filepath.Join(bundled, "shared.md"), "BUNDLED SHARED")
	mustWrite(t, filepath.Join(bundled, "rubric.md"), "RUBRIC")

	types := testTypes()
	types["interview"] = config.CallType{
		Name:         "Interview",
		Prompt:       "Assess the candidate",
		ContextFiles: []string{"shared.md", "missing.md", "rubric.md"},
	}

	res, err := Resolve(types, Request{
		ID:          "interview",
		Explicit:    true,
		PrivateBase: private,
		BundledBase: bundled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContextFiles != 2 {
		t.Errorf("ContextFiles = %d, want 2 (missing one skipped)", res.ContextFiles)
	}

	want := "PRIVATE SHARED" + Delimiter + "RUBRIC" + Delimiter + "Assess the candidate"
	if res.SystemPrompt != want {
		t.Errorf("SystemPrompt = %q, want %q", res.SystemPrompt, want)
	}
}

func TestResolveNoPromptFallsBackToGeneric(t *testing.T) {
	setupLogger(t)

	types := testTypes()
	types["empty"] = config.CallType{Name: "Empty"}

	res, err := Resolve(types, Request{ID: "empty", Explicit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SystemPrompt != "Please summarize this transcript." {
		t.Errorf("SystemPrompt = %q", res.SystemPrompt)
	}
}

func TestResolvePDFContextSkipped(t *testing.T) {
	setupLogger(t)
	bundled := t.TempDir()
	mustWrite(t, filepath.Join(bundled, "doc.pdf"), "%PDF-1.4 binary")
	mustWrite(t, filepath.Join(bundled, "notes.md"), "NOTES")

	types := testTypes()
	types["mixed"] = config.CallType{
		Prompt:       "p",
		ContextFiles: []string{"doc.pdf", "notes.md"},
	}

	res, err := Resolve(types, Request{ID: "mixed", Explicit: true, BundledBase: bundled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContextFiles != 1 {
		t.Errorf("ContextFiles = %d, want 1", res.ContextFiles)
	}
	if strings.Contains(res.SystemPrompt, "%PDF") {
		t.Error("PDF bytes leaked into prompt")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
