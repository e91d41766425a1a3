package normalisers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/normalisers/docx"
	"github.com/custodia-labs/docgraph/internal/normalisers/eml"
	"github.com/custodia-labs/docgraph/internal/normalisers/html"
	"github.com/custodia-labs/docgraph/internal/normalisers/markdown"
	"github.com/custodia-labs/docgraph/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.TextExtractor = (*Registry)(nil)

// Normaliser extracts text for the file types it declares.
type Normaliser interface {
	driven.TextExtractor
	FileTypes() []string
}

// Registry dispatches extraction to a normaliser by file type.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Normaliser)}
}

// Default returns a registry with every built-in normaliser registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	r.Register(eml.New())
	return r
}

// Register adds n for each of its file types. Later registrations win.
func (r *Registry) Register(n Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ft := range n.FileTypes() {
		r.byType[normaliseType(ft)] = n
	}
}

// Supports reports whether a normaliser handles fileType.
func (r *Registry) Supports(fileType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byType[normaliseType(fileType)]
	return ok
}

// FileTypes returns the registered file types, sorted.
func (r *Registry) FileTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for ft := range r.byType {
		types = append(types, ft)
	}
	sort.Strings(types)
	return types
}

// Extract implements driven.TextExtractor.
func (r *Registry) Extract(ctx context.Context, data []byte, fileType string) (domain.ExtractedText, error) {
	ft := normaliseType(fileType)

	r.mu.RLock()
	n, ok := r.byType[ft]
	r.mu.RUnlock()
	if !ok {
		return domain.ExtractedText{}, fmt.Errorf("%w: %w: %q", domain.ErrUnsupportedType, domain.ErrInvalidInput, fileType)
	}
	return n.Extract(ctx, data, ft)
}

// normaliseType maps ".MD" and "md" to the same key.
func normaliseType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}
