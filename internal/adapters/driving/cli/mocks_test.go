package cli

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	content  string
	err      error
	nextID   int
	deleted  []string
	register []string
}

func newMockDocumentService() *mockDocumentService {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &mockDocumentService{
		docs: map[string]*domain.Document{
			"doc-1": {
				ID:          "doc-1",
				OrgID:       "acme",
				Filename:    "q3-report.md",
				FileType:    "md",
				IndexStatus: domain.IndexStatusIndexed,
				PageCount:   1,
				ChunkCount:  4,
				TokenCount:  812,
				CreatedAt:   created,
			},
		},
		content: "# Q3 Report\n\nRevenue grew.",
	}
}

func (m *mockDocumentService) Register(
	_ context.Context, orgID, filename, fileType string, _ []byte,
) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.nextID++
	doc := &domain.Document{
		ID:          "new-" + string(rune('0'+m.nextID)),
		OrgID:       orgID,
		Filename:    filename,
		FileType:    fileType,
		IndexStatus: domain.IndexStatusPending,
	}
	m.docs[doc.ID] = doc
	m.register = append(m.register, filename)
	return doc, nil
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockDocumentService) List(_ context.Context, orgID string, _ int) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Document
	for _, d := range m.docs {
		if d.OrgID == orgID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDocumentService) GetContent(_ context.Context, _ string) (string, error) {
	return m.content, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	delete(m.docs, id)
	return nil
}

func (m *mockDocumentService) registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.register...)
}

func (m *mockDocumentService) deletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// mockIndexingService is a mock implementation of driving.IndexingService.
type mockIndexingService struct {
	fail      string
	gotOpts   domain.IndexOptions
	reindexed []string
	limit     int
}

func (m *mockIndexingService) result(id string) domain.IndexingResult {
	if m.fail != "" {
		return domain.IndexingResult{DocumentID: id, Error: m.fail}
	}
	return domain.IndexingResult{
		Success:       true,
		DocumentID:    id,
		ChunksCreated: 4,
		TotalTokens:   812,
		PageCount:     1,
		Timings:       domain.IndexingTimings{Total: 120 * time.Millisecond},
	}
}

func (m *mockIndexingService) IndexDocument(
	_ context.Context, id string, opts domain.IndexOptions,
) domain.IndexingResult {
	m.gotOpts = opts
	return m.result(id)
}

func (m *mockIndexingService) ReindexDocument(
	ctx context.Context, id string, opts domain.IndexOptions,
) domain.IndexingResult {
	m.reindexed = append(m.reindexed, id)
	return m.IndexDocument(ctx, id, opts)
}

func (m *mockIndexingService) IndexPending(
	_ context.Context, limit int, opts domain.IndexOptions,
) []domain.IndexingResult {
	m.limit, m.gotOpts = limit, opts
	return []domain.IndexingResult{m.result("doc-1"), {DocumentID: "doc-2", Error: "provider call failed"}}
}

// mockExtractionService is a mock implementation of driving.ExtractionService
// and driving.GraphService.
type mockExtractionService struct {
	err      error
	gotLimit int
}

func (m *mockExtractionService) ExtractEntitiesFromChunks(
	_ context.Context, _ string, chunks []domain.Chunk,
) domain.BatchExtractionResult {
	return domain.BatchExtractionResult{ChunksProcessed: len(chunks)}
}

func (m *mockExtractionService) ExtractDocument(_ context.Context, _ string) (domain.BatchExtractionResult, error) {
	if m.err != nil {
		return domain.BatchExtractionResult{}, m.err
	}
	return domain.BatchExtractionResult{
		ChunksProcessed:        4,
		ChunksFailed:           1,
		EntitiesExtracted:      7,
		RelationshipsExtracted: 2,
	}, nil
}

func (m *mockExtractionService) ListEntities(_ context.Context, _ string, limit int) ([]domain.Entity, error) {
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return []domain.Entity{
		{ID: "e1", Name: "Acme Corp", Type: domain.EntityTypeOrganization, MentionCount: 5, Confidence: 0.9},
	}, nil
}

func (m *mockExtractionService) ListRelationships(_ context.Context, _ string, limit int) ([]domain.Relationship, error) {
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return []domain.Relationship{
		{
			SourceEntityID:   "e2",
			TargetEntityID:   "e1",
			Type:             domain.RelationshipWorksFor,
			Weight:           0.6,
			EvidenceChunkIDs: []string{"c1", "c2"},
		},
	}, nil
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error

	gotOrg  string
	gotOpts domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context, orgID, _ string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.gotOrg, m.gotOpts = orgID, opts
	return m.results, m.err
}

func (m *mockSearchService) SearchWithFallback(
	ctx context.Context, orgID, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	return m.Search(ctx, orgID, query, opts)
}

// mockQueueService is a mock implementation of driving.QueueService.
type mockQueueService struct {
	mu       sync.Mutex
	err      error
	jobs     map[string]domain.Job
	batches  []domain.BatchJobPayload
	shutdown bool

	extractOrg string
}

func newMockQueueService() *mockQueueService {
	return &mockQueueService{jobs: make(map[string]domain.Job)}
}

func (m *mockQueueService) enqueue(id string, queue domain.QueueName, priority domain.Priority) (domain.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Job{}, false, m.err
	}
	if job, ok := m.jobs[id]; ok {
		return job, false, nil
	}
	job := domain.Job{ID: id, Queue: queue, Priority: priority, State: domain.JobStateWaiting}
	m.jobs[id] = job
	return job, true, nil
}

func (m *mockQueueService) EnqueueIndexJob(
	_ context.Context, documentID string, _ bool, priority domain.Priority,
) (domain.Job, bool, error) {
	return m.enqueue(domain.IndexJobID(documentID), domain.QueueDocumentIndexing, priority)
}

func (m *mockQueueService) EnqueueExtractionJob(
	_ context.Context, documentID, orgID string, priority domain.Priority,
) (domain.Job, bool, error) {
	m.mu.Lock()
	m.extractOrg = orgID
	m.mu.Unlock()
	return m.enqueue(domain.ExtractJobID(documentID), domain.QueueEntityExtraction, priority)
}

func (m *mockQueueService) EnqueueBatchJob(
	_ context.Context, payload domain.BatchJobPayload, priority domain.Priority,
) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Job{}, m.err
	}
	m.batches = append(m.batches, payload)
	return domain.Job{ID: "batch-1", Queue: domain.QueueBatchOperations, Priority: priority}, nil
}

func (m *mockQueueService) Stats(_ context.Context, q domain.QueueName) (domain.QueueStats, error) {
	return domain.QueueStats{Queue: q}, m.err
}

func (m *mockQueueService) AllStats(_ context.Context) ([]domain.QueueStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.QueueStats{
		{Queue: domain.QueueDocumentIndexing, Waiting: 3, Active: 1},
		{Queue: domain.QueueEntityExtraction, Delayed: 2},
		{Queue: domain.QueueBatchOperations, Completed: 5, Failed: 1},
	}, nil
}

func (m *mockQueueService) Shutdown(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	return nil
}

func (m *mockQueueService) job(id string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// mockWorkerPool is a mock implementation of driving.WorkerPool.
type mockWorkerPool struct {
	mu      sync.Mutex
	started bool
	err     error

	// onStart runs after Start records the call.
	onStart func()
}

func (m *mockWorkerPool) Start(_ context.Context) error {
	m.mu.Lock()
	m.started = true
	hook := m.onStart
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return m.err
}

func (m *mockWorkerPool) wasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockWorkerPool) Stop(_ context.Context) error {
	return nil
}

// mockScheduler is a mock implementation of driving.Scheduler.
type mockScheduler struct {
	mu      sync.Mutex
	started bool
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) wasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockScheduler) Stop() error {
	return nil
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	documents  *mockDocumentService
	indexing   *mockIndexingService
	extraction *mockExtractionService
	search     *mockSearchService
	queue      *mockQueueService
	workers    *mockWorkerPool
	scheduler  *mockScheduler
}

var currentMocks *testServices

// setupTestServices installs mock services and returns a cleanup that
// restores the package state, including flag variables, for the next test.
func setupTestServices() func() {
	m := &testServices{
		documents:  newMockDocumentService(),
		indexing:   &mockIndexingService{},
		extraction: &mockExtractionService{},
		search:     &mockSearchService{},
		queue:      newMockQueueService(),
		workers:    &mockWorkerPool{},
		scheduler:  &mockScheduler{},
	}
	currentMocks = m

	SetServices(&Services{
		Config:     domain.DefaultConfig(""),
		Documents:  m.documents,
		Indexing:   m.indexing,
		Extraction: m.extraction,
		Graph:      m.extraction,
		Search:     m.search,
		Queue:      m.queue,
		Scheduler:  m.scheduler,
		Workers:    m.workers,
		FileTypes:  []string{"docx", "eml", "html", "md", "txt"},
	})
	orgID = "acme"

	return func() {
		SetServices(&Services{Config: domain.DefaultConfig("")})
		currentMocks = nil
		orgID = DefaultOrg
		resetFlags()
	}
}

func resetFlags() {
	addFileType, addIndex, addEnqueue, addPriority = "", false, false, string(domain.PriorityNormal)
	listLimit = 50
	indexJSON, indexChunkSize, indexChunkOverlap, indexPendingLimit = false, 0, 0, 10
	searchLimit, searchMinScore, searchStatus, searchJSON = 10, -1, nil, false
	extractJSON, graphLimit, graphJSON = false, 25, false
	enqueuePriority, enqueueReindex, batchLimit, queueJSON = string(domain.PriorityNormal), false, 100, false
	workerConcurrency, workerMetricsAddr, workerNoScheduler, workerJSONLogs = 0, "", false, false
	watchExisting, watchNoWorker, watchPriority = false, false, string(domain.PriorityNormal)
	resetChanged(rootCmd)
}

// resetChanged clears the Changed mark cobra leaves on parsed flags, so
// mutually exclusive flags from one test do not leak into the next.
func resetChanged(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) { f.Changed = false }
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetChanged(c)
	}
}
