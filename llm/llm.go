// Package llm provides a generic interface for transcript analysis across
// multiple chat-completion providers (OpenAI, Databricks serving endpoints,
// Anthropic).
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetscribe/meetscribe/config"
)

// ErrAnalysisFailed marks a failed analysis call. Analysis failure is never
// fatal for a processing job: the transcript already exists on disk.
var ErrAnalysisFailed = errors.New("analysis failed")

const (
	// analysisTemperature keeps analyses consistent across runs.
	analysisTemperature = 0.3
	// maxResponseTokens caps the analysis length.
	maxResponseTokens = 4000
)

// Request carries one analysis call. SystemPrompt comes from the call-type
// resolver (context files plus prompt); Title and Transcript fill the user
// message.
type Request struct {
	SystemPrompt string
	Title        string
	Transcript   string
}

// UserMessage renders the request's user-side message.
func (r Request) UserMessage() string {
	return fmt.Sprintf("## Meeting: %s\n\n## Transcript:\n\n%s", r.Title, r.Transcript)
}

// Provider defines the interface for transcript analysis backends.
type Provider interface {
	// Name returns the provider identifier ("openai", "databricks", "anthropic").
	Name() string

	// Model returns the resolved model identifier used for calls.
	Model() string

	// Analyze sends the transcript for analysis and returns the analysis text.
	Analyze(ctx context.Context, req Request) (string, error)
}

// Enabled reports whether analysis is configured well enough to attempt.
// Databricks authenticates through its CLI profile; the other providers
// need an API key.
func Enabled(cfg config.LLM) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.Provider == "databricks" {
		return cfg.Profile != ""
	}
	return cfg.APIKey != ""
}

// New returns the provider selected by cfg.Provider.
func New(cfg config.LLM) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "databricks":
		return NewDatabricks(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
