// Package ai provides factory functions for creating AI provider adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/docgraph/internal/adapters/driven/embedding/ollama"
	mockembed "github.com/custodia-labs/docgraph/internal/adapters/driven/embedding/mock"
	openaiembed "github.com/custodia-labs/docgraph/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/docgraph/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/docgraph/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/docgraph/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI provider initialisation.
type InitResult struct {
	// Embedding is never nil; it is the mock provider when none is configured.
	Embedding driven.EmbeddingProvider

	// LLM is nil when extraction runs offline.
	LLM driven.LLMService

	// Warnings lists non-fatal issues that caused a fallback.
	Warnings []string
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.Embedding != nil {
		r.Embedding.Close()
	}
	if r.LLM != nil {
		r.LLM.Close()
	}
}

// Init creates both providers from cfg. An unreachable embedding provider
// is an error because stored vectors would not be comparable with mock ones.
// The LLM is chosen from credentials alone: a failed startup ping is only a
// warning, and each extraction call falls back offline while it stays down.
func Init(cfg domain.Config) (*InitResult, error) {
	embedding, err := CreateAndValidateEmbeddingProvider(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	result := &InitResult{Embedding: embedding}

	llm, err := CreateLLMService(cfg.Extraction)
	if err != nil {
		msg := fmt.Sprintf("entity extraction will run offline: %v: %v", domain.ErrLLMUnavailable, err)
		logger.Warn("%s", msg)
		result.Warnings = append(result.Warnings, msg)
		return result, nil
	}
	result.LLM = llm

	if llm != nil {
		if err := pingLLM(llm); err != nil {
			msg := fmt.Sprintf("%s unreachable at startup, extraction falls back per call until it recovers: %v",
				llm.ProviderName(), err)
			logger.Warn("%s", msg)
			result.Warnings = append(result.Warnings, msg)
		}
	}

	return result, nil
}

// CreateAndValidateEmbeddingProvider creates an embedding provider and
// validates connectivity. The mock provider is returned when none is configured.
func CreateAndValidateEmbeddingProvider(settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	p, err := CreateEmbeddingProvider(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}

	return p, nil
}

// CreateAndValidateLLMService creates an LLM service and checks connectivity.
// Returns nil and no error when no provider is configured. An unreachable
// provider is logged and still returned.
func CreateAndValidateLLMService(settings domain.ExtractionSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := pingLLM(svc); err != nil {
		logger.Warn("%s LLM unreachable: %v", svc.ProviderName(), err)
	}
	return svc, nil
}

func pingLLM(svc driven.LLMService) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return nil
}

// CreateEmbeddingProvider creates the embedding provider named by settings,
// paced by a rate limiter. Unconfigured settings yield the mock provider.
func CreateEmbeddingProvider(settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if !settings.IsConfigured() {
		if settings.Provider.IsValid() {
			return nil, fmt.Errorf("%s embedding provider requires an API key", settings.Provider)
		}
		return mockembed.NewEmbeddingProvider(settings.Dimensions), nil
	}

	var (
		p   driven.EmbeddingProvider
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOllama:
		p = createOllamaEmbedding(settings)

	case domain.AIProviderOpenAI:
		p, err = createOpenAIEmbedding(settings)

	case domain.AIProviderAnthropic:
		// Anthropic does not support embeddings.
		return nil, fmt.Errorf("anthropic does not support embeddings, use ollama or openai")

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: settings.RequestsPerMinute})
	return ratelimit.WrapEmbedding(p, limiter), nil
}

// CreateLLMService creates the LLM service picked by
// ExtractionSettings.ResolveExtractionProvider. Returns nil for offline extraction.
func CreateLLMService(settings domain.ExtractionSettings) (driven.LLMService, error) {
	var (
		svc driven.LLMService
		err error
	)

	switch provider := settings.ResolveExtractionProvider(); provider {
	case domain.AIProviderNone:
		return nil, nil

	case domain.AIProviderAnthropic:
		svc, err = anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.AnthropicKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.AIProviderOpenAI:
		svc, err = openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.OpenAIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.AIProviderOllama:
		svc = ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	return ratelimit.WrapLLM(svc, ratelimit.New(ratelimit.Config{})), nil
}

// createOllamaEmbedding creates an Ollama embedding provider.
func createOllamaEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingProvider {
	return ollamaembed.NewEmbeddingProvider(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding provider.
func createOpenAIEmbedding(settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	return openaiembed.NewEmbeddingProvider(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}
