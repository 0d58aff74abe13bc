package providers

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/internal/agent"
)

// OllamaConfig configures the local Ollama adapter.
type OllamaConfig struct {
	BaseURL      string // default http://localhost:11434/v1
	DefaultModel string
}

// OllamaProvider serves a local Ollama daemon through its OpenAI-compatible
// endpoint. No API key is involved.
type OllamaProvider struct{ compatProvider }

// NewOllamaProvider builds a provider for a local Ollama instance.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	clientConfig := openai.DefaultConfig("ollama")
	clientConfig.BaseURL = baseURL

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "llama3.2"
	}
	return &OllamaProvider{compatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         "ollama",
		defaultModel: defaultModel,
		models:       []agent.Model{{ID: defaultModel, Name: defaultModel}},
		retry:        defaultRetryPolicy(),
	}}
}
