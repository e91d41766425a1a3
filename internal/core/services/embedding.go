package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

// Embedding generator defaults.
const (
	DefaultEmbeddingBatchSize  = 20
	DefaultEmbeddingBatchDelay = 100 * time.Millisecond
)

// EmbeddingGenerator turns texts into vectors, batch by batch.
//
// Batches run sequentially with a fixed pause between them. The pause is
// the pipeline's backpressure against provider rate limits.
type EmbeddingGenerator struct {
	provider   driven.EmbeddingProvider
	counter    driven.TokenCounter
	batchSize  int
	batchDelay time.Duration
}

// EmbeddingOption configures an EmbeddingGenerator.
type EmbeddingOption func(*EmbeddingGenerator)

// WithBatchSize bounds the number of texts per provider call.
func WithBatchSize(n int) EmbeddingOption {
	return func(g *EmbeddingGenerator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between consecutive batches.
func WithBatchDelay(d time.Duration) EmbeddingOption {
	return func(g *EmbeddingGenerator) {
		if d >= 0 {
			g.batchDelay = d
		}
	}
}

// WithTokenCounter sets the counter used when the provider reports no usage.
func WithTokenCounter(c driven.TokenCounter) EmbeddingOption {
	return func(g *EmbeddingGenerator) {
		g.counter = c
	}
}

// NewEmbeddingGenerator creates a generator over provider.
func NewEmbeddingGenerator(provider driven.EmbeddingProvider, opts ...EmbeddingOption) *EmbeddingGenerator {
	g := &EmbeddingGenerator{
		provider:   provider,
		batchSize:  DefaultEmbeddingBatchSize,
		batchDelay: DefaultEmbeddingBatchDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the underlying provider.
func (g *EmbeddingGenerator) Provider() driven.EmbeddingProvider {
	return g.provider
}

// Generate embeds texts and returns one vector and one token count per
// text, in input order. Any provider failure fails the whole call with
// domain.ErrProviderFailed and no partial output.
func (g *EmbeddingGenerator) Generate(ctx context.Context, texts []string) (driven.EmbeddingBatch, error) {
	out := driven.EmbeddingBatch{
		Vectors:     make([][]float32, 0, len(texts)),
		TokenCounts: make([]int, 0, len(texts)),
	}
	if len(texts) == 0 {
		return out, nil
	}
	if g.provider == nil {
		return driven.EmbeddingBatch{}, domain.ErrEmbeddingUnavailable
	}

	provider := g.provider.ProviderName()
	dims := 0

	for start := 0; start < len(texts); start += g.batchSize {
		if start > 0 && g.batchDelay > 0 {
			if err := sleepContext(ctx, g.batchDelay); err != nil {
				return driven.EmbeddingBatch{}, err
			}
		}

		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		logger.Debug("Embedding batch %d-%d of %d via %s", start, end, len(texts), provider)

		res, err := g.provider.EmbedBatch(ctx, batch)
		if err != nil {
			metrics.EmbeddingRequests.WithLabelValues(provider, "error").Inc()
			if errors.Is(err, domain.ErrProviderFailed) {
				return driven.EmbeddingBatch{}, err
			}
			return driven.EmbeddingBatch{}, fmt.Errorf("embed batch %d-%d: %v: %w", start, end, err, domain.ErrProviderFailed)
		}
		metrics.EmbeddingRequests.WithLabelValues(provider, "ok").Inc()

		if len(res.Vectors) != len(batch) {
			return driven.EmbeddingBatch{}, fmt.Errorf(
				"embed batch %d-%d: expected %d vectors, got %d: %w",
				start, end, len(batch), len(res.Vectors), domain.ErrProviderFailed)
		}

		for i, vec := range res.Vectors {
			if dims == 0 {
				dims = len(vec)
			}
			if len(vec) == 0 || len(vec) != dims {
				return driven.EmbeddingBatch{}, fmt.Errorf(
					"embed batch %d-%d: vector %d has %d dimensions, expected %d: %w",
					start, end, i, len(vec), dims, domain.ErrProviderFailed)
			}
			out.Vectors = append(out.Vectors, vec)

			if len(res.TokenCounts) == len(batch) {
				out.TokenCounts = append(out.TokenCounts, res.TokenCounts[i])
			} else {
				out.TokenCounts = append(out.TokenCounts, g.count(batch[i]))
			}
		}
	}

	if want := g.provider.Dimensions(); want > 0 && dims != want {
		logger.Warn("embedding provider %s returned %d dimensions, configured for %d", provider, dims, want)
	}

	return out, nil
}

func (g *EmbeddingGenerator) count(text string) int {
	if g.counter != nil {
		return g.counter.Count(text)
	}
	return estimateTokens(text)
}

// estimateTokens is the last-resort count: one token per four characters.
func estimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CosineSimilarity returns the cosine of the angle between a and b.
// It is 0 when either vector has zero norm or the lengths differ, and is
// clamped to [-1, 1] against rounding.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	default:
		return sim
	}
}
