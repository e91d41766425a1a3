// Package mock provides deterministic pseudo-embeddings.
//
// It is selected when no embedding provider is configured, so indexing and
// search work offline and in tests. Identical text always produces the
// identical unit vector.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/custodia-labs/docgraph/internal/adapters/driven/tokenizer"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure EmbeddingProvider implements the interface.
var _ driven.EmbeddingProvider = (*EmbeddingProvider)(nil)

// DefaultDimensions matches text-embedding-3-small.
const DefaultDimensions = 1536

// EmbeddingProvider generates FNV-seeded pseudo-random unit vectors.
type EmbeddingProvider struct {
	dimensions int
}

// NewEmbeddingProvider creates a mock provider. Non-positive dimensions use the default.
func NewEmbeddingProvider(dimensions int) *EmbeddingProvider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingProvider{dimensions: dimensions}
}

// EmbedBatch returns one vector per text.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (driven.EmbeddingBatch, error) {
	if err := ctx.Err(); err != nil {
		return driven.EmbeddingBatch{}, err
	}

	batch := driven.EmbeddingBatch{
		Vectors:     make([][]float32, len(texts)),
		TokenCounts: make([]int, len(texts)),
	}
	for i, text := range texts {
		batch.Vectors[i] = p.vector(text)
		batch.TokenCounts[i] = tokenizer.Estimate(text)
	}
	return batch, nil
}

func (p *EmbeddingProvider) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec

	vec := make([]float32, p.dimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Dimensions returns the embedding vector size.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns "mock".
func (p *EmbeddingProvider) ModelName() string {
	return "mock"
}

// ProviderName returns "mock".
func (p *EmbeddingProvider) ProviderName() string {
	return "mock"
}

// Ping always succeeds.
func (p *EmbeddingProvider) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (p *EmbeddingProvider) Close() error {
	return nil
}
