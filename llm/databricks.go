package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/viper"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
)

const defaultDatabricksModel = "databricks-gpt-5-2"

// DatabricksProvider analyzes transcripts through a Databricks model serving
// endpoint, which speaks the OpenAI chat completions protocol. Credentials
// come from the profile in ~/.databrickscfg, matching the Databricks CLI.
type DatabricksProvider struct {
	profile string
	model   string
	cfgPath string // override for testing; defaults to ~/.databrickscfg
}

// NewDatabricks creates a Databricks provider from config, defaulting the
// model.
func NewDatabricks(cfg config.LLM) *DatabricksProvider {
	model := cfg.Model
	if model == "" {
		model = defaultDatabricksModel
	}
	return &DatabricksProvider{profile: cfg.Profile, model: model}
}

func (p *DatabricksProvider) Name() string  { return "databricks" }
func (p *DatabricksProvider) Model() string { return p.model }

// databricksProfile is one section of ~/.databrickscfg. Either Token is set
// (PAT or CLI-managed OAuth token) or ClientID/ClientSecret identify a
// service principal.
type databricksProfile struct {
	Host         string
	Token        string
	ClientID     string
	ClientSecret string
}

// Analyze resolves credentials from the CLI profile and sends the request to
// the serving endpoint.
func (p *DatabricksProvider) Analyze(ctx context.Context, req Request) (string, error) {
	log := logger.WithComponent("llm")
	log.Info("starting analysis", "provider", p.Name(), "model", p.model, "profile", p.profile, "transcriptLen", len(req.Transcript))

	prof, err := p.loadProfile()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	token := prof.Token
	if token == "" {
		token, err = fetchOAuthToken(ctx, prof.Host, prof.ClientID, prof.ClientSecret)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
	}

	client := openai.NewClient(
		option.WithAPIKey(token),
		option.WithBaseURL(prof.Host+"/serving-endpoints"),
	)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserMessage()),
		},
		Temperature: openai.Float(analysisTemperature),
		MaxTokens:   openai.Int(maxResponseTokens),
	})
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

// loadProfile reads the named profile from the Databricks CLI config file.
func (p *DatabricksProvider) loadProfile() (databricksProfile, error) {
	if p.profile == "" {
		return databricksProfile{}, fmt.Errorf("databricks profile not configured")
	}

	cfgPath := p.cfgPath
	if cfgPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return databricksProfile{}, err
		}
		cfgPath = filepath.Join(home, ".databrickscfg")
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return databricksProfile{}, fmt.Errorf("failed to read %s: %w", cfgPath, err)
	}

	prof := databricksProfile{
		Host:         strings.TrimRight(v.GetString(p.profile+".host"), "/"),
		Token:        v.GetString(p.profile + ".token"),
		ClientID:     v.GetString(p.profile + ".client_id"),
		ClientSecret: v.GetString(p.profile + ".client_secret"),
	}
	if prof.Host == "" {
		return databricksProfile{}, fmt.Errorf("profile %q has no host (run: databricks auth login --profile %s)", p.profile, p.profile)
	}
	if prof.Token == "" && (prof.ClientID == "" || prof.ClientSecret == "") {
		return databricksProfile{}, fmt.Errorf("profile %q has neither token nor client credentials", p.profile)
	}
	return prof, nil
}

// oidcTokenResponse is the workspace token endpoint response.
type oidcTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchOAuthToken exchanges service principal credentials for a workspace
// access token.
func fetchOAuthToken(ctx context.Context, host, clientID, clientSecret string) (string, error) {
	var tok oidcTokenResponse
	resp, err := resty.New().R().
		SetContext(ctx).
		SetBasicAuth(clientID, clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      "all-apis",
		}).
		SetResult(&tok).
		Post(host + "/oidc/v1/token")
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token request failed: %s: %s", resp.Status(), resp.String())
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return tok.AccessToken, nil
}
