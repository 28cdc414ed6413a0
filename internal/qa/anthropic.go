package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// AnthropicAnswerer answers through the Anthropic Messages API.
type AnthropicAnswerer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       logger.Logger
}

func withAnthropicTimeout(d time.Duration) option.RequestOption {
	return option.WithRequestTimeout(d)
}

// NewAnthropicAnswerer creates a Claude-backed answerer.
func NewAnthropicAnswerer(apiKey, model string, maxTokens int, log logger.Logger, opts ...option.RequestOption) (*AnthropicAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicAnswerer{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		log:       log.WithFields(logger.StringField("component", "anthropic_answerer"), logger.StringField("model", model)),
	}, nil
}

func (a *AnthropicAnswerer) Answer(ctx context.Context, req Request) (*Answer, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	a.log.Debug("Received response from anthropic",
		logger.IntField("content_blocks", len(resp.Content)),
		logger.StringField("stop_reason", string(resp.StopReason)))

	text := joinText(parts)
	if text == "" {
		return nil, fmt.Errorf("claude returned no text content")
	}
	return &Answer{Text: text}, nil
}
