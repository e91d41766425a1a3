package driving

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// ExtractionService builds the knowledge graph from chunks.
type ExtractionService interface {
	// ExtractEntitiesFromChunks extracts, resolves and records entities and
	// relationships for every chunk. Per-chunk failures are skipped.
	ExtractEntitiesFromChunks(ctx context.Context, orgID string, chunks []domain.Chunk) domain.BatchExtractionResult

	// ExtractDocument runs ExtractEntitiesFromChunks over a document's stored chunks.
	ExtractDocument(ctx context.Context, documentID string) (domain.BatchExtractionResult, error)
}

// GraphService reads the knowledge graph.
type GraphService interface {
	ListEntities(ctx context.Context, orgID string, limit int) ([]domain.Entity, error)
	ListRelationships(ctx context.Context, orgID string, limit int) ([]domain.Relationship, error)
}
