package driving

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// IndexingService drives documents through the indexing pipeline.
// Failures are reported in the returned results, never as errors.
type IndexingService interface {
	// IndexDocument indexes a single document.
	IndexDocument(ctx context.Context, documentID string, opts domain.IndexOptions) domain.IndexingResult

	// ReindexDocument resets the document to pending and indexes it again.
	ReindexDocument(ctx context.Context, documentID string, opts domain.IndexOptions) domain.IndexingResult

	// IndexPending indexes up to limit pending documents, oldest first.
	IndexPending(ctx context.Context, limit int, opts domain.IndexOptions) []domain.IndexingResult
}
