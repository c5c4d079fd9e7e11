// Package calltype resolves a call-type id into the final system prompt for
// the analysis provider: template substitution, context-file concatenation,
// and the generic fallback. Resolution has no side effects beyond logging
// and is testable without any LLM involvement.
package calltype

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
)

// Delimiter separates concatenated context files from each other and from
// the prompt text.
const Delimiter = "\n\n---\n\n"

// personPlaceholder is the only substitution a prompt template supports.
const personPlaceholder = "{person_name}"

// UnknownTypeError reports an explicitly requested call type that is not
// configured. The implicit default path falls back to generic instead.
type UnknownTypeError struct {
	ID string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown call type %q", e.ID)
}

// MissingPersonError reports a call type that requires a person name when
// none was supplied.
type MissingPersonError struct {
	ID string
}

func (e *MissingPersonError) Error() string {
	return fmt.Sprintf("call type %q requires a person name (--person)", e.ID)
}

// Request carries the inputs to one resolution.
type Request struct {
	ID         string // requested call type; empty means the implicit default
	PersonName string
	// Explicit marks an id the user actually asked for. An unknown explicit
	// id is an error; an unknown implicit one falls back to generic.
	Explicit bool
	// PrivateBase is the user's context_base_path; tried first for context
	// files. BundledBase is the repository/config fallback location.
	PrivateBase string
	BundledBase string
}

// Resolution is the outcome: the effective call type and the assembled
// system prompt.
type Resolution struct {
	ID           string
	Type         config.CallType
	SystemPrompt string
	ContextFiles int // context files actually loaded
}

// Lookup validates a call type id and its person-name requirement without
// touching the filesystem. Session operations call this before mutating any
// state; Resolve repeats the checks at analysis time.
func Lookup(types map[string]config.CallType, req Request) (string, config.CallType, error) {
	// Config keys arrive lower-cased from the merge, so ids are matched
	// case-insensitively.
	id := strings.ToLower(req.ID)
	if id == "" {
		id = config.GenericCallTypeID
	}

	ct, ok := types[id]
	if !ok {
		if req.Explicit {
			return "", config.CallType{}, &UnknownTypeError{ID: id}
		}
		id = config.GenericCallTypeID
		ct = types[id]
	}

	if ct.RequiresPersonName && req.PersonName == "" {
		return "", config.CallType{}, &MissingPersonError{ID: id}
	}
	return id, ct, nil
}

// Resolve produces the final system prompt for a call type: concatenated
// context files (missing ones logged and skipped), then the prompt text with
// {person_name} substituted when the type is templated.
func Resolve(types map[string]config.CallType, req Request) (Resolution, error) {
	log := logger.WithComponent("calltype")

	id, ct, err := Lookup(types, req)
	if err != nil {
		return Resolution{}, err
	}

	context, loaded := loadContextFiles(ct.ContextFiles, req.PrivateBase, req.BundledBase, log)

	prompt := ct.Prompt
	if ct.PromptTemplate != "" && req.PersonName != "" {
		prompt = strings.ReplaceAll(ct.PromptTemplate, personPlaceholder, req.PersonName)
	}
	if prompt == "" {
		log.Warn("call type has no prompt, using generic", "callType", id)
		generic := types[config.GenericCallTypeID]
		prompt = generic.Prompt
		if prompt == "" {
			prompt = "Please summarize this transcript."
		}
	}

	system := prompt
	if context != "" {
		system = context + Delimiter + prompt
	}

	return Resolution{
		ID:           id,
		Type:         ct,
		SystemPrompt: system,
		ContextFiles: loaded,
	}, nil
}

// loadContextFiles reads each context file in declared order, resolving the
// path first against the private base, then the bundled base. Missing files
// are skipped; the public/private prompt split depends on that.
func loadContextFiles(files []string, privateBase, bundledBase string, log *slog.Logger) (string, int) {
	if len(files) == 0 {
		return "", 0
	}

	var parts []string
	for _, rel := range files {
		if strings.EqualFold(filepath.Ext(rel), ".pdf") {
			log.Warn("skipping PDF context file (text files only)", "file", rel)
			continue
		}
		content, path, ok := readFirst(rel, privateBase, bundledBase)
		if !ok {
			log.Warn("context file not found", "file", rel)
			continue
		}
		log.Debug("loaded context file", "path", path, "bytes", len(content))
		parts = append(parts, content)
	}

	if len(parts) == 0 {
		return "", 0
	}
	return strings.Join(parts, Delimiter), len(parts)
}

// readFirst returns the contents of rel resolved against the first base
// directory that holds it.
func readFirst(rel string, bases ...string) (string, string, bool) {
	for _, base := range bases {
		if base == "" {
			continue
		}
		full := filepath.Join(paths.Expand(base), rel)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		return string(data), full, true
	}
	return "", "", false
}
