package providers

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/internal/agent"
)

var errMissingAPIKey = errors.New("api key is required")

// AzureOpenAIConfig configures the Azure OpenAI adapter. Endpoint is the
// resource endpoint, https://{resource}.openai.azure.com.
type AzureOpenAIConfig struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	DefaultModel string
}

// AzureOpenAIProvider serves an Azure OpenAI deployment. The model id doubles
// as the deployment name, which is how DefaultAzureConfig routes requests.
type AzureOpenAIProvider struct{ compatProvider }

// NewAzureOpenAIProvider builds a provider for an Azure OpenAI resource.
func NewAzureOpenAIProvider(cfg AzureOpenAIConfig) (*AzureOpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: "azure", Reason: ReasonAuth, Cause: errMissingAPIKey}
	}
	if cfg.Endpoint == "" {
		return nil, &ProviderError{Provider: "azure", Reason: ReasonBadRequest, Cause: errors.New("endpoint is required")}
	}
	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &AzureOpenAIProvider{compatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         "azure",
		defaultModel: defaultModel,
		models:       []agent.Model{{ID: defaultModel, Name: defaultModel, SupportsVision: true}},
		retry:        defaultRetryPolicy(),
	}}, nil
}
