package providers

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/internal/agent"
)

// CopilotProxyConfig configures the Copilot proxy adapter. BaseURL points at
// a local proxy that holds the Copilot credential and re-exposes it as a
// Chat Completions endpoint; credential issuance itself happens outside
// this engine.
type CopilotProxyConfig struct {
	BaseURL      string
	DefaultModel string
}

// CopilotProxyProvider serves an already-authenticated Copilot proxy.
type CopilotProxyProvider struct{ compatProvider }

// NewCopilotProxyProvider builds a provider for a local Copilot proxy.
func NewCopilotProxyProvider(cfg CopilotProxyConfig) (*CopilotProxyProvider, error) {
	if cfg.BaseURL == "" {
		return nil, &ProviderError{Provider: "copilot-proxy", Reason: ReasonBadRequest, Cause: errors.New("base url is required")}
	}
	clientConfig := openai.DefaultConfig("copilot")
	clientConfig.BaseURL = cfg.BaseURL

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &CopilotProxyProvider{compatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         "copilot-proxy",
		defaultModel: defaultModel,
		models:       []agent.Model{{ID: defaultModel, Name: defaultModel}},
		retry:        defaultRetryPolicy(),
	}}, nil
}
