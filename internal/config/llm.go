package config

import (
	"fmt"
	"time"
)

// LLM provider constants
const (
	ProviderNone        = "none"
	ProviderAnthropic   = "anthropic"
	ProviderAzureOpenAI = "azure_openai"
)

// LLMConfig selects and configures the answering model.
type LLMConfig struct {
	Provider  string        `env:"LLM_PROVIDER" yaml:"provider" default:"none"`
	MaxTokens int           `env:"LLM_MAX_TOKENS" yaml:"max_tokens" default:"2048"`
	Timeout   time.Duration `env:"LLM_TIMEOUT" yaml:"timeout" default:"60s"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" yaml:"anthropic_api_key"`
	ClaudeModel     string `env:"CLAUDE_MODEL" yaml:"claude_model" default:"claude-sonnet-4-5-20250929"`

	AzureAPIKey     string `env:"AZURE_OPENAI_API_KEY" yaml:"azure_api_key"`
	AzureEndpoint   string `env:"AZURE_OPENAI_ENDPOINT" yaml:"azure_endpoint"`
	AzureAPIVersion string `env:"AZURE_OPENAI_API_VERSION" yaml:"azure_api_version" default:"2024-06-01"`
	AzureDeployment string `env:"AZURE_OPENAI_DEPLOYMENT" yaml:"azure_deployment"`
}

func (c LLMConfig) validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm_max_tokens must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm_timeout must be greater than 0")
	}
	switch c.Provider {
	case ProviderNone:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider is %s", ProviderAnthropic)
		}
	case ProviderAzureOpenAI:
		if c.AzureAPIKey == "" || c.AzureEndpoint == "" || c.AzureDeployment == "" {
			return fmt.Errorf("azure_openai_api_key, azure_openai_endpoint and azure_openai_deployment are required when llm_provider is %s", ProviderAzureOpenAI)
		}
	default:
		return fmt.Errorf("llm_provider must be one of [none, anthropic, azure_openai], got %q", c.Provider)
	}
	return nil
}
