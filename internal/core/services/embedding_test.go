package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text number %d", i)
	}
	return out
}

func TestEmbeddingGenerator_Batches(t *testing.T) {
	provider := newMockEmbeddingProvider()
	gen := NewEmbeddingGenerator(provider, WithBatchDelay(0))

	input := texts(45)
	for i, text := range input {
		provider.vectors[text] = []float32{float32(i), 1, 0}
	}

	out, err := gen.Generate(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, provider.calls, 3)
	assert.Len(t, provider.calls[0], 20)
	assert.Len(t, provider.calls[1], 20)
	assert.Len(t, provider.calls[2], 5)

	require.Len(t, out.Vectors, 45)
	require.Len(t, out.TokenCounts, 45)
	for i, vec := range out.Vectors {
		assert.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
}

func TestEmbeddingGenerator_EmptyInput(t *testing.T) {
	provider := newMockEmbeddingProvider()
	out, err := NewEmbeddingGenerator(provider).Generate(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, out.Vectors)
	assert.Zero(t, provider.callCount())
}

func TestEmbeddingGenerator_NilProvider(t *testing.T) {
	_, err := NewEmbeddingGenerator(nil).Generate(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestEmbeddingGenerator_FailsAtomically(t *testing.T) {
	provider := newMockEmbeddingProvider()
	provider.err = errors.New("connection reset")
	provider.failOnCall = 2

	gen := NewEmbeddingGenerator(provider, WithBatchSize(10), WithBatchDelay(0))
	out, err := gen.Generate(context.Background(), texts(25))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
	assert.Empty(t, out.Vectors, "no partial output on failure")
	assert.Equal(t, 2, provider.callCount(), "stops at the failing batch")
}

func TestEmbeddingGenerator_KeepsProviderError(t *testing.T) {
	provider := newMockEmbeddingProvider()
	provider.err = errors.Join(domain.ErrProviderFailed, domain.ErrRateLimited)

	_, err := NewEmbeddingGenerator(provider).Generate(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, domain.ErrProviderFailed)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestEmbeddingGenerator_DimensionMismatch(t *testing.T) {
	provider := newMockEmbeddingProvider()
	provider.vectors["short"] = []float32{1}

	_, err := NewEmbeddingGenerator(provider).Generate(context.Background(), []string{"long", "short"})
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
}

func TestEmbeddingGenerator_TokenCounts(t *testing.T) {
	t.Run("from provider", func(t *testing.T) {
		provider := newMockEmbeddingProvider()
		provider.tokens = true

		out, err := NewEmbeddingGenerator(provider).Generate(context.Background(), []string{"one two three"})
		require.NoError(t, err)
		assert.Equal(t, []int{3}, out.TokenCounts)
	})

	t.Run("from counter", func(t *testing.T) {
		gen := NewEmbeddingGenerator(newMockEmbeddingProvider(), WithTokenCounter(fixedTokenCounter{}))

		out, err := gen.Generate(context.Background(), []string{"a b c d e"})
		require.NoError(t, err)
		assert.Equal(t, []int{5}, out.TokenCounts)
	})

	t.Run("estimated", func(t *testing.T) {
		out, err := NewEmbeddingGenerator(newMockEmbeddingProvider()).Generate(context.Background(), []string{"12345678"})
		require.NoError(t, err)
		assert.Equal(t, []int{2}, out.TokenCounts)
	})
}

func TestEmbeddingGenerator_CancelledBetweenBatches(t *testing.T) {
	provider := newMockEmbeddingProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewEmbeddingGenerator(provider, WithBatchSize(1))
	_, err := gen.Generate(ctx, texts(3))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, provider.callCount())
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilarity_SymmetricAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 500; trial++ {
		n := 1 + rng.Intn(64)
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(rng.NormFloat64() * 10)
			b[i] = float32(rng.NormFloat64() * 10)
		}

		ab := CosineSimilarity(a, b)
		ba := CosineSimilarity(b, a)
		assert.Equal(t, ab, ba)
		assert.False(t, math.IsNaN(ab))
		assert.GreaterOrEqual(t, ab, -1.0)
		assert.LessOrEqual(t, ab, 1.0)
		assert.Zero(t, CosineSimilarity(make([]float32, n), b))
	}
}
