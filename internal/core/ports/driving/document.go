package driving

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// DocumentService registers and manages uploaded documents.
type DocumentService interface {
	// Register stores data in blob storage and creates a pending document.
	Register(ctx context.Context, orgID, filename, fileType string, data []byte) (*domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// List returns an organisation's documents, newest first.
	List(ctx context.Context, orgID string, limit int) ([]domain.Document, error)

	// GetContent returns the document's indexed text, reassembled from its chunks.
	GetContent(ctx context.Context, documentID string) (string, error)

	// Delete soft-deletes a document.
	Delete(ctx context.Context, documentID string) error
}
