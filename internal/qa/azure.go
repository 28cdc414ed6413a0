package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// AzureConfig locates an Azure OpenAI chat deployment.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
	MaxTokens  int
}

// AzureOpenAIAnswerer answers through chat completions on an Azure OpenAI
// deployment.
type AzureOpenAIAnswerer struct {
	client     openai.Client
	deployment string
	maxTokens  int64
	log        logger.Logger
}

func withOpenAITimeout(d time.Duration) option.RequestOption {
	return option.WithRequestTimeout(d)
}

func NewAzureOpenAIAnswerer(cfg AzureConfig, log logger.Logger, opts ...option.RequestOption) (*AzureOpenAIAnswerer, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure openai API key and endpoint are required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("azure openai deployment is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-06-01"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	base := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	}
	client := openai.NewClient(append(base, opts...)...)
	return &AzureOpenAIAnswerer{
		client:     client,
		deployment: cfg.Deployment,
		maxTokens:  int64(cfg.MaxTokens),
		log:        log.WithFields(logger.StringField("component", "azure_openai_answerer"), logger.StringField("deployment", cfg.Deployment)),
	}, nil
}

func (a *AzureOpenAIAnswerer) Answer(ctx context.Context, req Request) (*Answer, error) {
	params := openai.ChatCompletionNewParams{
		// Azure routes by deployment name.
		Model:     a.deployment,
		MaxTokens: openai.Int(a.maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userPrompt(req)),
		},
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("azure openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("azure openai returned no choices")
	}

	choice := completion.Choices[0]
	a.log.Debug("Received response from azure openai", logger.StringField("finish_reason", choice.FinishReason))
	text := joinText([]string{choice.Message.Content})
	if text == "" {
		return nil, fmt.Errorf("azure openai returned empty content")
	}
	return &Answer{Text: text}, nil
}
