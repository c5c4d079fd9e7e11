package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicProvider analyzes transcripts through the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string // override for testing
}

// NewAnthropic creates an Anthropic provider from config, defaulting the
// model.
func NewAnthropic(cfg config.LLM) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{apiKey: cfg.APIKey, model: model}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

// Analyze sends the request to the Messages API and concatenates the text
// blocks of the reply.
func (p *AnthropicProvider) Analyze(ctx context.Context, req Request) (string, error) {
	log := logger.WithComponent("llm")
	log.Info("starting analysis", "provider", p.Name(), "model", p.model, "transcriptLen", len(req.Transcript))

	opts := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	client := anthropic.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   maxResponseTokens,
		Temperature: anthropic.Float(analysisTemperature),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	analysis := sb.String()
	if analysis == "" {
		return "", fmt.Errorf("%w: empty response", ErrAnalysisFailed)
	}

	log.Info("analysis complete", "model", p.model, "responseLen", len(analysis))
	return analysis, nil
}
