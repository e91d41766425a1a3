package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

func TestNewLLMService_RequiresKey(t *testing.T) {
	_, err := NewLLMService(LLMConfig{})
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]any)
		assert.Len(t, messages, 2)
		format := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"entities\": []}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35}
		}`))
	}))
	defer server.Close()

	s, err := NewLLMService(LLMConfig{APIKey: "sk", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := s.Complete(context.Background(), "extract", driven.GenerateOptions{System: "json", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"entities": []}`, out.Text)
	assert.Equal(t, 30, out.InputTokens)
	assert.Equal(t, 5, out.OutputTokens)
	assert.Equal(t, "openai", s.ProviderName())
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	s, err := NewLLMService(LLMConfig{APIKey: "sk", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = s.Complete(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	s, err := NewLLMService(LLMConfig{APIKey: "sk", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = s.Complete(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
}
