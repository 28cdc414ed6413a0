package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lewisedginton/financial_qa/internal/config"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// ErrNoProvider is returned by the answerer used when no LLM is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

const systemInstruction = "You are a financial data analyst. Answer questions about the loaded " +
	"dataset concisely and state any assumptions you make."

// Request is one question put to an Answerer.
type Request struct {
	DatasetID string
	Question  string
}

// Answer is an answerer's reply. ChartData is optional visualisation payload.
type Answer struct {
	Text      string
	ChartData map[string]any
}

// Answerer produces an answer for a question about a dataset.
type Answerer interface {
	Answer(ctx context.Context, req Request) (*Answer, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, req Request) (*Answer, error)

func (f AnswererFunc) Answer(ctx context.Context, req Request) (*Answer, error) {
	return f(ctx, req)
}

func userPrompt(req Request) string {
	return fmt.Sprintf("Dataset: %s\n\nQuestion: %s", req.DatasetID, req.Question)
}

// NewAnswerer builds the answerer selected by cfg.Provider.
func NewAnswerer(cfg config.LLMConfig, log logger.Logger) (Answerer, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicAnswerer(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.MaxTokens, log, withAnthropicTimeout(cfg.Timeout))
	case config.ProviderAzureOpenAI:
		return NewAzureOpenAIAnswerer(AzureConfig{
			APIKey:     cfg.AzureAPIKey,
			Endpoint:   cfg.AzureEndpoint,
			APIVersion: cfg.AzureAPIVersion,
			Deployment: cfg.AzureDeployment,
			MaxTokens:  cfg.MaxTokens,
		}, log, withOpenAITimeout(cfg.Timeout))
	case config.ProviderNone, "":
		return AnswererFunc(func(context.Context, Request) (*Answer, error) {
			return nil, ErrNoProvider
		}), nil
	}
	return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
}

func joinText(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
