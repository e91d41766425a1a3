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
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *EmbeddingProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewEmbeddingProvider(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	return p
}

func TestNewEmbeddingProvider(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewEmbeddingProvider(Config{})
		assert.Error(t, err)
	})

	t.Run("model dimensions", func(t *testing.T) {
		p, err := NewEmbeddingProvider(Config{APIKey: "k", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, 3072, p.Dimensions())
		assert.Equal(t, "text-embedding-3-large", p.ModelName())
		assert.Equal(t, "openai", p.ProviderName())
	})

	t.Run("unknown model falls back", func(t *testing.T) {
		p, err := NewEmbeddingProvider(Config{APIKey: "k", Model: "custom"})
		require.NoError(t, err)
		assert.Equal(t, 1536, p.Dimensions())
	})
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req["input"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	})

	batch, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, batch.Vectors, 2)
	assert.Equal(t, []float32{1, 0}, batch.Vectors[0])
	assert.Equal(t, []float32{0, 1}, batch.Vectors[1])
	assert.Nil(t, batch.TokenCounts)
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [1.0]}]}`))
	})

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
}

func TestEmbedBatch_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
		})

		_, err := p.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, domain.ErrProviderFailed)
		assert.NotErrorIs(t, err, domain.ErrRateLimited)
	})

	t.Run("rate limited", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
		})

		_, err := p.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, domain.ErrProviderFailed)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, err := NewEmbeddingProvider(Config{APIKey: "k"})
	require.NoError(t, err)

	batch, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch.Vectors)
}
