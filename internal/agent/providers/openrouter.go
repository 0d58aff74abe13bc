package providers

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/internal/agent"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig configures the OpenRouter adapter.
type OpenRouterConfig struct {
	APIKey       string
	DefaultModel string
}

// OpenRouterProvider serves OpenRouter's Chat Completions compatible API.
type OpenRouterProvider struct{ compatProvider }

// NewOpenRouterProvider builds a provider for openrouter.ai. OpenRouter
// fronts many upstream models, so no static catalog is advertised; the
// configured default model is the only entry.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: "openrouter", Reason: ReasonAuth, Cause: errMissingAPIKey}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = openRouterBaseURL

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "anthropic/claude-sonnet-4"
	}
	return &OpenRouterProvider{compatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         "openrouter",
		defaultModel: defaultModel,
		models:       []agent.Model{{ID: defaultModel, Name: defaultModel}},
		retry:        defaultRetryPolicy(),
	}}, nil
}
