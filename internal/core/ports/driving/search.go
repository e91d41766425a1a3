package driving

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search ranks an organisation's documents by semantic similarity.
	Search(ctx context.Context, orgID, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// SearchWithFallback runs Search and falls back to filename matching
	// when it yields nothing.
	SearchWithFallback(ctx context.Context, orgID, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
