package driven

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// DocumentStore persists documents. Tombstoned documents are invisible to
// every method except SoftDeleteDocument, which is idempotent.
type DocumentStore interface {
	// CreateDocument stores a new document.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if the document is missing or deleted.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// UpdateDocument overwrites the mutable fields of a document.
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	// ListDocumentsByStatus returns up to limit documents in the given
	// status, oldest first.
	ListDocumentsByStatus(ctx context.Context, status domain.IndexStatus, limit int) ([]domain.Document, error)

	// ListDocuments returns an organisation's documents, newest first.
	ListDocuments(ctx context.Context, orgID string, limit int) ([]domain.Document, error)

	// FindDocumentsByFilename returns documents whose filename contains
	// term, case-insensitively, newest first.
	FindDocumentsByFilename(ctx context.Context, orgID, term string, limit int) ([]domain.Document, error)

	// SoftDeleteDocument sets the tombstone timestamp.
	SoftDeleteDocument(ctx context.Context, id string) error
}

// ChunkStore persists chunks.
type ChunkStore interface {
	// ReplaceChunks deletes every chunk of the document and inserts chunks
	// as one atomic unit.
	ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []domain.Chunk) error

	// GetChunks returns a document's chunks ordered by sequence.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListChunksForSearch returns every chunk with an embedding belonging to
	// the organisation's live documents in one of statuses.
	ListChunksForSearch(ctx context.Context, orgID string, statuses []domain.IndexStatus) ([]domain.ScoredChunk, error)
}
