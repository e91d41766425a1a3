// Package openai provides an embedding provider adapter using the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure EmbeddingProvider implements the interface.
var _ driven.EmbeddingProvider = (*EmbeddingProvider)(nil)

// Default configuration values.
const (
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API base URL for Azure or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int
}

// EmbeddingProvider generates embeddings using the OpenAI API.
type EmbeddingProvider struct {
	client       *openai.Client
	model        string
	dimensions   int
	sendDimsHint bool
}

// NewEmbeddingProvider creates a new OpenAI embedding provider.
func NewEmbeddingProvider(cfg Config) (*EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536
		}
	}

	return &EmbeddingProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		dimensions:   dimensions,
		sendDimsHint: cfg.Dimensions > 0,
	}, nil
}

// EmbedBatch generates embeddings for texts in a single request.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (driven.EmbeddingBatch, error) {
	if len(texts) == 0 {
		return driven.EmbeddingBatch{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	if p.sendDimsHint {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return driven.EmbeddingBatch{}, wrapError(err)
	}

	if len(resp.Data) != len(texts) {
		return driven.EmbeddingBatch{}, fmt.Errorf(
			"openai: expected %d embeddings, got %d: %w", len(texts), len(resp.Data), domain.ErrProviderFailed)
	}

	// The API returns an index per item; order by it rather than trusting response order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return driven.EmbeddingBatch{}, fmt.Errorf(
				"openai: invalid embedding index %d: %w", d.Index, domain.ErrProviderFailed)
		}
		vectors[d.Index] = d.Embedding
	}

	// Usage is reported per request only, so token counts are left to the caller.
	return driven.EmbeddingBatch{Vectors: vectors}, nil
}

// Dimensions returns the embedding vector size.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the name of the embedding model being used.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

// ProviderName returns "openai".
func (p *EmbeddingProvider) ProviderName() string {
	return string(domain.AIProviderOpenAI)
}

// Ping validates the API key by listing models.
func (p *EmbeddingProvider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", wrapError(err))
	}
	return nil
}

// Close releases resources.
func (p *EmbeddingProvider) Close() error {
	return nil
}

// wrapError maps client errors onto the domain taxonomy.
func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("openai: %s: %w", apiErr.Message, errors.Join(domain.ErrProviderFailed, domain.ErrRateLimited))
		}
		return fmt.Errorf("openai: status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, domain.ErrProviderFailed)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai: %w", errors.Join(domain.ErrProviderFailed, domain.ErrRateLimited))
	}
	return fmt.Errorf("openai: %v: %w", err, domain.ErrProviderFailed)
}
