// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService provides language model completions for entity extraction.
// This is an optional service - when nil, extraction runs offline heuristics.
//
// Implementations include:
//   - OpenAI (go-openai)
//   - Anthropic (anthropic-sdk-go)
//   - Ollama (local models)
type LLMService interface {
	// Complete produces a completion for a single-turn prompt.
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (Completion, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// ProviderName returns the provider identifier, e.g. "openai".
	ProviderName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// System is an optional system instruction.
	System string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Completion is a provider response with token usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
