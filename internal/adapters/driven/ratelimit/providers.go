package ratelimit

import (
	"context"
	"errors"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

var (
	_ driven.EmbeddingProvider = (*EmbeddingProvider)(nil)
	_ driven.LLMService        = (*LLMService)(nil)
)

// EmbeddingProvider paces an embedding provider.
type EmbeddingProvider struct {
	driven.EmbeddingProvider
	limiter *Limiter
}

// WrapEmbedding returns p paced by l.
func WrapEmbedding(p driven.EmbeddingProvider, l *Limiter) *EmbeddingProvider {
	return &EmbeddingProvider{EmbeddingProvider: p, limiter: l}
}

// EmbedBatch waits for the limiter, then calls the wrapped provider.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (driven.EmbeddingBatch, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return driven.EmbeddingBatch{}, err
	}
	batch, err := p.EmbeddingProvider.EmbedBatch(ctx, texts)
	if errors.Is(err, domain.ErrRateLimited) {
		p.limiter.Backoff(0)
	}
	return batch, err
}

// LLMService paces an LLM provider.
type LLMService struct {
	driven.LLMService
	limiter *Limiter
}

// WrapLLM returns s paced by l.
func WrapLLM(s driven.LLMService, l *Limiter) *LLMService {
	return &LLMService{LLMService: s, limiter: l}
}

// Complete waits for the limiter, then calls the wrapped provider.
func (s *LLMService) Complete(
	ctx context.Context,
	prompt string,
	opts driven.GenerateOptions,
) (driven.Completion, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return driven.Completion{}, err
	}
	out, err := s.LLMService.Complete(ctx, prompt, opts)
	if errors.Is(err, domain.ErrRateLimited) {
		s.limiter.Backoff(0)
	}
	return out, err
}
