package mcp

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error

	gotOrg  string
	gotOpts domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	orgID, _ string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.gotOrg, m.gotOpts = orgID, opts
	return m.results, m.err
}

func (m *mockSearchService) SearchWithFallback(
	ctx context.Context,
	orgID, query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	return m.Search(ctx, orgID, query, opts)
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	content   string
	err       error

	gotOrg string
}

func (m *mockDocumentService) Register(
	_ context.Context, _, _, _ string, _ []byte,
) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) List(_ context.Context, orgID string, _ int) ([]domain.Document, error) {
	m.gotOrg = orgID
	return m.documents, m.err
}

func (m *mockDocumentService) GetContent(_ context.Context, _ string) (string, error) {
	return m.content, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

// mockIndexingService is a mock implementation of driving.IndexingService.
type mockIndexingService struct {
	result    domain.IndexingResult
	reindexed bool
}

func (m *mockIndexingService) IndexDocument(
	_ context.Context, id string, _ domain.IndexOptions,
) domain.IndexingResult {
	r := m.result
	r.DocumentID = id
	return r
}

func (m *mockIndexingService) ReindexDocument(
	ctx context.Context, id string, opts domain.IndexOptions,
) domain.IndexingResult {
	m.reindexed = true
	return m.IndexDocument(ctx, id, opts)
}

func (m *mockIndexingService) IndexPending(
	_ context.Context, _ int, _ domain.IndexOptions,
) []domain.IndexingResult {
	return []domain.IndexingResult{m.result}
}

// mockExtractionService is a mock implementation of driving.ExtractionService.
type mockExtractionService struct {
	result domain.BatchExtractionResult
	err    error
}

func (m *mockExtractionService) ExtractEntitiesFromChunks(
	_ context.Context, _ string, _ []domain.Chunk,
) domain.BatchExtractionResult {
	return m.result
}

func (m *mockExtractionService) ExtractDocument(_ context.Context, _ string) (domain.BatchExtractionResult, error) {
	return m.result, m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	entities      []domain.Entity
	relationships []domain.Relationship
	err           error

	gotLimit int
}

func (m *mockGraphService) ListEntities(_ context.Context, _ string, limit int) ([]domain.Entity, error) {
	m.gotLimit = limit
	return m.entities, m.err
}

func (m *mockGraphService) ListRelationships(_ context.Context, _ string, _ int) ([]domain.Relationship, error) {
	return m.relationships, m.err
}

// mockQueueService is a mock implementation of driving.QueueService.
type mockQueueService struct {
	stats []domain.QueueStats
	err   error
}

func (m *mockQueueService) EnqueueIndexJob(
	_ context.Context, _ string, _ bool, _ domain.Priority,
) (domain.Job, bool, error) {
	return domain.Job{}, false, m.err
}

func (m *mockQueueService) EnqueueExtractionJob(
	_ context.Context, _, _ string, _ domain.Priority,
) (domain.Job, bool, error) {
	return domain.Job{}, false, m.err
}

func (m *mockQueueService) EnqueueBatchJob(
	_ context.Context, _ domain.BatchJobPayload, _ domain.Priority,
) (domain.Job, error) {
	return domain.Job{}, m.err
}

func (m *mockQueueService) Stats(_ context.Context, q domain.QueueName) (domain.QueueStats, error) {
	return domain.QueueStats{Queue: q}, m.err
}

func (m *mockQueueService) AllStats(_ context.Context) ([]domain.QueueStats, error) {
	return m.stats, m.err
}

func (m *mockQueueService) Shutdown(_ context.Context) error {
	return m.err
}
