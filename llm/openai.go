package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider analyzes transcripts through the OpenAI chat completions
// API.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string // override for testing
}

// NewOpenAI creates an OpenAI provider from config, defaulting the model.
func NewOpenAI(cfg config.LLM) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{apiKey: cfg.APIKey, model: model}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Analyze sends the request to the chat completions endpoint. Newer model
// families reject max_tokens and take max_completion_tokens instead.
func (p *OpenAIProvider) Analyze(ctx context.Context, req Request) (string, error) {
	log := logger.WithComponent("llm")
	log.Info("starting analysis", "provider", p.Name(), "model", p.model, "transcriptLen", len(req.Transcript))

	opts := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserMessage()),
		},
		Temperature: openai.Float(analysisTemperature),
	}
	if usesCompletionTokensCap(p.model) {
		params.MaxCompletionTokens = openai.Int(maxResponseTokens)
	} else {
		params.MaxTokens = openai.Int(maxResponseTokens)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrAnalysisFailed)
	}

	analysis := resp.Choices[0].Message.Content
	log.Info("analysis complete", "model", p.model, "responseLen", len(analysis))
	return analysis, nil
}

// usesCompletionTokensCap reports whether the model family takes
// max_completion_tokens rather than max_tokens.
func usesCompletionTokensCap(model string) bool {
	for _, prefix := range []string{"o1", "gpt-5", "gpt-4o-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
