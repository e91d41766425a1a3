package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.ChunkStore    = (*DocumentStore)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore and
// driven.ChunkStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk

	// ChunkErr, when set, is returned by every chunk method.
	ChunkErr error
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// CreateDocument stores a new document.
func (s *DocumentStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a live document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok || doc.IsDeleted() {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// UpdateDocument overwrites a live document.
func (s *DocumentStore) UpdateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.documents[doc.ID]
	if !ok || existing.IsDeleted() {
		return domain.ErrNotFound
	}
	doc.UpdatedAt = time.Now()
	s.documents[doc.ID] = *doc
	return nil
}

// ListDocumentsByStatus returns live documents in status, oldest first.
func (s *DocumentStore) ListDocumentsByStatus(
	_ context.Context,
	status domain.IndexStatus,
	limit int,
) ([]domain.Document, error) {
	return s.filter(func(d *domain.Document) bool { return d.IndexStatus == status }, limit, true), nil
}

// ListDocuments returns an organisation's live documents, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, orgID string, limit int) ([]domain.Document, error) {
	return s.filter(func(d *domain.Document) bool { return d.OrgID == orgID }, limit, false), nil
}

// FindDocumentsByFilename returns live documents whose filename contains
// term case-insensitively, newest first.
func (s *DocumentStore) FindDocumentsByFilename(
	_ context.Context,
	orgID, term string,
	limit int,
) ([]domain.Document, error) {
	term = strings.ToLower(term)
	return s.filter(func(d *domain.Document) bool {
		return d.OrgID == orgID && strings.Contains(strings.ToLower(d.Filename), term)
	}, limit, false), nil
}

// SoftDeleteDocument sets the tombstone. Deleting twice is a no-op.
func (s *DocumentStore) SoftDeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if doc.DeletedAt == nil {
		now := time.Now()
		doc.DeletedAt = &now
		s.documents[id] = doc
	}
	return nil
}

func (s *DocumentStore) filter(keep func(*domain.Document) bool, limit int, ascending bool) []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Document, 0)
	for id := range s.documents {
		doc := s.documents[id]
		if doc.IsDeleted() || !keep(&doc) {
			continue
		}
		result = append(result, doc)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// ReplaceChunks swaps a document's chunks in one step.
func (s *DocumentStore) ReplaceChunks(_ context.Context, documentID, orgID string, chunks []domain.Chunk) error {
	if s.ChunkErr != nil {
		return s.ChunkErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]domain.Chunk, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		c.DocumentID = documentID
		c.OrgID = orgID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		stored[i] = c
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Sequence < stored[j].Sequence })
	s.chunks[documentID] = stored
	return nil
}

// GetChunks returns a document's chunks ordered by sequence.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	if s.ChunkErr != nil {
		return nil, s.ChunkErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// ListChunksForSearch returns embedded chunks of live documents in statuses.
func (s *DocumentStore) ListChunksForSearch(
	_ context.Context,
	orgID string,
	statuses []domain.IndexStatus,
) ([]domain.ScoredChunk, error) {
	if s.ChunkErr != nil {
		return nil, s.ChunkErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[domain.IndexStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}

	var result []domain.ScoredChunk
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || doc.IsDeleted() || doc.OrgID != orgID || !allowed[doc.IndexStatus] {
			continue
		}
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			result = append(result, domain.ScoredChunk{Chunk: c, DocumentStatus: doc.IndexStatus})
		}
	}
	return result, nil
}
