package qa

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/financial_qa/internal/config"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

func TestAnthropicAnswerer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"content": [{"type": "text", "text": "Profit rose 12%."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	a, err := NewAnthropicAnswerer("sk-test", "", 256, logger.NewNopLogger(),
		anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	require.NoError(t, err)

	got, err := a.Answer(context.Background(), Request{DatasetID: "d1", Question: "How did profit change?"})
	require.NoError(t, err)
	assert.Equal(t, "Profit rose 12%.", got.Text)
	assert.Equal(t, float64(256), body["max_tokens"])
	assert.Contains(t, body["messages"].([]any)[0].(map[string]any)["content"].([]any)[0].(map[string]any)["text"], "How did profit change?")
}

func TestAnthropicAnswererError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	a, err := NewAnthropicAnswerer("sk-test", "claude-test", 0, nil,
		anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = a.Answer(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude api error")
}

func TestAzureOpenAIAnswerer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "finqa-gpt")
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Canada leads."},
				"finish_reason": "stop"
			}]
		}`)
	}))
	defer srv.Close()

	a, err := NewAzureOpenAIAnswerer(AzureConfig{
		APIKey:     "az-key",
		Endpoint:   srv.URL,
		Deployment: "finqa-gpt",
	}, nil, openaioption.WithMaxRetries(0))
	require.NoError(t, err)

	got, err := a.Answer(context.Background(), Request{DatasetID: "d1", Question: "Which country leads?"})
	require.NoError(t, err)
	assert.Equal(t, "Canada leads.", got.Text)
}

func TestAzureOpenAIAnswererValidation(t *testing.T) {
	_, err := NewAzureOpenAIAnswerer(AzureConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
	_, err = NewAzureOpenAIAnswerer(AzureConfig{APIKey: "k", Endpoint: "https://x"}, nil)
	assert.Error(t, err)
}

func TestNewAnswerer(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config.LLMConfig
		want    any
		wantErr bool
	}{
		{"none", config.LLMConfig{Provider: config.ProviderNone}, AnswererFunc(nil), false},
		{"anthropic", config.LLMConfig{Provider: config.ProviderAnthropic, AnthropicAPIKey: "k", Timeout: time.Second}, &AnthropicAnswerer{}, false},
		{"anthropic without key", config.LLMConfig{Provider: config.ProviderAnthropic}, nil, true},
		{"azure", config.LLMConfig{Provider: config.ProviderAzureOpenAI, AzureAPIKey: "k", AzureEndpoint: "https://x", AzureDeployment: "d", Timeout: time.Second}, &AzureOpenAIAnswerer{}, false},
		{"unknown", config.LLMConfig{Provider: "gemini"}, nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewAnswerer(tc.cfg, logger.NewNopLogger())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.want, got)
		})
	}

	none, err := NewAnswerer(config.LLMConfig{Provider: config.ProviderNone}, nil)
	require.NoError(t, err)
	_, err = none.Answer(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoProvider)
}
