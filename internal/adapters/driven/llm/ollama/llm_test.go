package ollama

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

func TestNewLLMService_Defaults(t *testing.T) {
	s := NewLLMService(LLMConfig{})
	assert.Equal(t, DefaultBaseURL, s.baseURL)
	assert.Equal(t, DefaultLLMModel, s.ModelName())
	assert.Equal(t, "ollama", s.ProviderName())
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(chatResponse{
			Message:         chatMessage{Role: "assistant", Content: `{"entities": []}`},
			Done:            true,
			PromptEvalCount: 40,
			EvalCount:       8,
		})
	}))
	defer server.Close()

	s := NewLLMService(LLMConfig{BaseURL: server.URL})
	out, err := s.Complete(context.Background(), "extract", driven.GenerateOptions{System: "json only", JSON: true})

	require.NoError(t, err)
	assert.Equal(t, `{"entities": []}`, out.Text)
	assert.Equal(t, 40, out.InputTokens)
	assert.Equal(t, 8, out.OutputTokens)
}

func TestComplete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewLLMService(LLMConfig{BaseURL: server.URL}).Complete(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
	assert.Contains(t, err.Error(), "model not found")
}

func TestComplete_Unreachable(t *testing.T) {
	s := NewLLMService(LLMConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := s.Complete(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
}
