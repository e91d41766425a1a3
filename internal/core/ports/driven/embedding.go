package driven

import "context"

// EmbeddingProvider generates vector embeddings for text.
//
// Implementations include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, mxbai-embed-large)
//   - Mock (deterministic pseudo-embeddings for tests and offline use)
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input text, in input order.
	// The call fails as a whole; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) (EmbeddingBatch, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// ProviderName returns the provider identifier, e.g. "ollama".
	ProviderName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingBatch is the provider output for one call.
type EmbeddingBatch struct {
	// Vectors holds one embedding per input.
	Vectors [][]float32

	// TokenCounts holds one count per input. Nil when the provider does
	// not report usage per item.
	TokenCounts []int
}

// TokenCounter counts tokens the way the embedding model would.
type TokenCounter interface {
	Count(text string) int
}
