package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService registers uploads and manages document rows.
type DocumentService struct {
	docs    driven.DocumentStore
	chunks  driven.ChunkStore
	storage driven.FileStorage
}

// NewDocumentService creates a new document service.
func NewDocumentService(docs driven.DocumentStore, chunks driven.ChunkStore, storage driven.FileStorage) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, storage: storage}
}

// Register uploads data to {org}/{id}/{filename} and creates a pending document.
func (s *DocumentService) Register(
	ctx context.Context,
	orgID, filename, fileType string,
	data []byte,
) (*domain.Document, error) {
	if orgID == "" {
		return nil, fmt.Errorf("org id is required: %w", domain.ErrInvalidInput)
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return nil, fmt.Errorf("filename %q: %w", filename, domain.ErrInvalidInput)
	}
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(path.Ext(base)), ".")
	}

	id := uuid.NewString()
	storagePath := path.Join(orgID, id, base)
	if err := s.storage.Upload(ctx, storagePath, data); err != nil {
		return nil, fmt.Errorf("upload %s: %w", base, err)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:          id,
		OrgID:       orgID,
		Filename:    base,
		FileType:    fileType,
		StoragePath: storagePath,
		IndexStatus: domain.IndexStatusPending,
		Metadata:    map[string]any{"size_bytes": len(data)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	logger.WithFields(logger.Fields{
		"document_id": id,
		"org_id":      orgID,
		"file_type":   fileType,
	}).Info("document registered")
	return doc, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, documentID)
}

// List returns an organisation's documents.
func (s *DocumentService) List(ctx context.Context, orgID string, limit int) ([]domain.Document, error) {
	if orgID == "" {
		return nil, fmt.Errorf("org id is required: %w", domain.ErrInvalidInput)
	}
	return s.docs.ListDocuments(ctx, orgID, limit)
}

// GetContent returns the concatenated content of all chunks, dropping
// the overlap each chunk shares with its predecessor.
func (s *DocumentService) GetContent(ctx context.Context, documentID string) (string, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return "", err
	}

	chunks, err := s.chunks.GetChunks(ctx, documentID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	covered := 0
	for _, c := range chunks {
		content := c.Content
		if c.StartOffset < covered {
			skip := covered - c.StartOffset
			if skip >= utf8.RuneCountInString(content) {
				continue
			}
			content = string([]rune(content)[skip:])
		}
		sb.WriteString(content)
		if c.EndOffset > covered {
			covered = c.EndOffset
		}
	}
	return sb.String(), nil
}

// Delete soft-deletes a document. Its chunks stop appearing in search.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if err := s.docs.SoftDeleteDocument(ctx, documentID); err != nil {
		return err
	}
	logger.WithField("document_id", documentID).Info("document deleted")
	return nil
}
