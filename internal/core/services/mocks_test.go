package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbeddingProvider returns vectors from a lookup table, falling back
// to a fixed vector, and records every call.
type mockEmbeddingProvider struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	fallback   []float32
	tokens     bool
	failOnCall int
	err        error
	calls      [][]string
}

func newMockEmbeddingProvider() *mockEmbeddingProvider {
	return &mockEmbeddingProvider{
		vectors:  make(map[string][]float32),
		fallback: []float32{1, 0, 0},
	}
}

func (m *mockEmbeddingProvider) EmbedBatch(_ context.Context, texts []string) (driven.EmbeddingBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.err != nil && (m.failOnCall == 0 || m.failOnCall == len(m.calls)) {
		return driven.EmbeddingBatch{}, m.err
	}

	batch := driven.EmbeddingBatch{Vectors: make([][]float32, len(texts))}
	if m.tokens {
		batch.TokenCounts = make([]int, len(texts))
	}
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			batch.Vectors[i] = v
		} else {
			batch.Vectors[i] = m.fallback
		}
		if m.tokens {
			batch.TokenCounts[i] = len(strings.Fields(text))
		}
	}
	return batch, nil
}

func (m *mockEmbeddingProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockEmbeddingProvider) Dimensions() int        { return len(m.fallback) }
func (m *mockEmbeddingProvider) ModelName() string      { return "mock-model" }
func (m *mockEmbeddingProvider) ProviderName() string   { return "mock" }
func (m *mockEmbeddingProvider) Ping(context.Context) error { return nil }
func (m *mockEmbeddingProvider) Close() error           { return nil }

// fixedTokenCounter counts whitespace-separated words.
type fixedTokenCounter struct{}

func (fixedTokenCounter) Count(text string) int { return len(strings.Fields(text)) }

// mockLLM returns a canned completion or error.
type mockLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	opts     []driven.GenerateOptions
}

func (m *mockLLM) Complete(_ context.Context, prompt string, opts driven.GenerateOptions) (driven.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return driven.Completion{}, m.err
	}
	return driven.Completion{Text: m.response, InputTokens: 100, OutputTokens: 20}, nil
}

func (m *mockLLM) ModelName() string          { return "mock-llm" }
func (m *mockLLM) ProviderName() string       { return "openai" }
func (m *mockLLM) Ping(context.Context) error { return nil }
func (m *mockLLM) Close() error               { return nil }

// mockFileStorage serves bytes from a map.
type mockFileStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMockFileStorage() *mockFileStorage {
	return &mockFileStorage{files: make(map[string][]byte)}
}

func (m *mockFileStorage) Download(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *mockFileStorage) Upload(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

// mockTextExtractor returns the input bytes as text, or a fixed result.
type mockTextExtractor struct {
	text  *string
	pages int
	err   error
	panic bool
}

func (m *mockTextExtractor) Extract(_ context.Context, data []byte, _ string) (domain.ExtractedText, error) {
	if m.panic {
		panic("extractor exploded")
	}
	if m.err != nil {
		return domain.ExtractedText{}, m.err
	}
	text := string(data)
	if m.text != nil {
		text = *m.text
	}
	pages := m.pages
	if pages == 0 {
		pages = 1
	}
	return domain.ExtractedText{Text: text, PageCount: pages}, nil
}

// mockPromptStore serves prompts from a map.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", errors.New("prompt not found")
	}
	return p, nil
}

func (m *mockPromptStore) Reload() {}

// mockGraphMirror records mirrored writes.
type mockGraphMirror struct {
	mu            sync.Mutex
	entities      []string
	relationships []string
	err           error
}

func (m *mockGraphMirror) MirrorEntity(_ context.Context, e *domain.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = append(m.entities, e.ID)
	return m.err
}

func (m *mockGraphMirror) MirrorRelationship(_ context.Context, r *domain.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships = append(m.relationships, r.ID)
	return m.err
}

func (m *mockGraphMirror) Close() error { return nil }
