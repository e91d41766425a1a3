package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
	"github.com/custodia-labs/docgraph/internal/postprocessors/chunker"
)

// Ensure Indexer implements the interface.
var _ driving.IndexingService = (*Indexer)(nil)

// Pipeline stage names, used for timings, metrics and PipelineError.
const (
	stageLoad     = "load"
	stageDownload = "download"
	stageExtract  = "extract"
	stageChunk    = "chunk"
	stageEmbed    = "embed"
	stagePersist  = "persist"
)

// Indexer drives one document at a time through
// download → extract → chunk → embed → persist.
type Indexer struct {
	docs      driven.DocumentStore
	chunks    driven.ChunkStore
	storage   driven.FileStorage
	extractor driven.TextExtractor
	embedder  *EmbeddingGenerator
	chunking  domain.ChunkingConfig
	now       func() time.Time
}

// NewIndexer creates an indexer. chunking supplies the defaults that
// per-call IndexOptions may override.
func NewIndexer(
	docs driven.DocumentStore,
	chunks driven.ChunkStore,
	storage driven.FileStorage,
	extractor driven.TextExtractor,
	embedder *EmbeddingGenerator,
	chunking domain.ChunkingConfig,
) *Indexer {
	return &Indexer{
		docs:      docs,
		chunks:    chunks,
		storage:   storage,
		extractor: extractor,
		embedder:  embedder,
		chunking:  chunking,
		now:       time.Now,
	}
}

// IndexDocument indexes a single document. Every failure, including a
// panic in a collaborator, is recorded on the document and reported in
// the result.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string, opts domain.IndexOptions) (result domain.IndexingResult) {
	start := ix.now()
	result.DocumentID = documentID
	log := logger.WithField("document_id", documentID)

	var doc *domain.Document
	defer func() {
		if r := recover(); r != nil {
			err := domain.NewPipelineError("panic", fmt.Errorf("indexing panicked: %v", r))
			log.WithField("panic", r).Error("indexing panicked")
			result = ix.fail(ctx, doc, result, err)
		}
		result.Timings.Total = ix.now().Sub(start)
		metrics.ObserveStage("total", result.Timings.Total)
	}()

	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		log.WithError(err).Warn("indexing: document not loaded")
		return ix.fail(ctx, nil, result, domain.NewPipelineError(stageLoad, err))
	}
	log = log.WithField("org_id", doc.OrgID)

	if doc.StoragePath == "" {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageLoad, domain.ErrNoStoragePath))
	}

	if doc.IndexStatus != domain.IndexStatusProcessing && !doc.IndexStatus.CanTransition(domain.IndexStatusProcessing) {
		log.WithField("status", doc.IndexStatus).Debug("indexing a document outside the pending state")
	}
	doc.IndexStatus = domain.IndexStatusProcessing
	doc.IndexError = ""
	if err := ix.docs.UpdateDocument(ctx, doc); err != nil {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageLoad, fmt.Errorf("mark processing: %w", err)))
	}
	log.Debug("indexing started")

	// Download
	stageStart := ix.now()
	data, err := ix.storage.Download(ctx, doc.StoragePath)
	result.Timings.Download = ix.observe(stageDownload, stageStart)
	if err != nil {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageDownload, fmt.Errorf("download %s: %w", doc.StoragePath, err)))
	}

	// Extract
	stageStart = ix.now()
	extracted, err := ix.extractor.Extract(ctx, data, doc.FileType)
	result.Timings.Extract = ix.observe(stageExtract, stageStart)
	if err != nil {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageExtract, err))
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageExtract, domain.ErrEmptyExtraction))
	}
	result.PageCount = extracted.PageCount

	// Chunk
	stageStart = ix.now()
	chunks := ix.chunkerFor(opts).Chunk(extracted.Text)
	result.Timings.Chunk = ix.observe(stageChunk, stageStart)
	if len(chunks) == 0 {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageChunk, domain.ErrNoChunksGenerated))
	}

	// Embed
	stageStart = ix.now()
	contents := make([]string, len(chunks))
	for i := range chunks {
		contents[i] = chunks[i].Content
	}
	embedded, err := ix.embedder.Generate(ctx, contents)
	result.Timings.Embed = ix.observe(stageEmbed, stageStart)
	if err != nil {
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stageEmbed, err))
	}

	totalTokens := 0
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
		chunks[i].OrgID = doc.OrgID
		chunks[i].Embedding = embedded.Vectors[i]
		chunks[i].TokenCount = embedded.TokenCounts[i]
		totalTokens += chunks[i].TokenCount
	}

	// Persist
	stageStart = ix.now()
	if err := ix.chunks.ReplaceChunks(ctx, doc.ID, doc.OrgID, chunks); err != nil {
		result.Timings.Persist = ix.observe(stagePersist, stageStart)
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stagePersist, fmt.Errorf("replace chunks: %w", err)))
	}

	indexedAt := ix.now()
	doc.IndexStatus = domain.IndexStatusIndexed
	doc.IndexError = ""
	doc.PageCount = extracted.PageCount
	doc.ChunkCount = len(chunks)
	doc.TokenCount = totalTokens
	doc.IndexedAt = &indexedAt
	doc.Metadata = ix.indexMetadata(doc.Metadata, opts, len(extracted.Text))
	if err := ix.docs.UpdateDocument(ctx, doc); err != nil {
		result.Timings.Persist = ix.observe(stagePersist, stageStart)
		return ix.fail(ctx, doc, result, domain.NewPipelineError(stagePersist, fmt.Errorf("mark indexed: %w", err)))
	}
	result.Timings.Persist = ix.observe(stagePersist, stageStart)

	metrics.DocumentsIndexed.WithLabelValues(string(domain.IndexStatusIndexed)).Inc()
	log.WithFields(logger.Fields{
		"chunks": len(chunks),
		"tokens": totalTokens,
	}).Info("document indexed")

	result.Success = true
	result.ChunksCreated = len(chunks)
	result.TotalTokens = totalTokens
	return result
}

// ReindexDocument resets a document to pending, clearing the previous
// error and indexed-at, then indexes it again.
func (ix *Indexer) ReindexDocument(ctx context.Context, documentID string, opts domain.IndexOptions) domain.IndexingResult {
	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		return domain.IndexingResult{DocumentID: documentID, Error: err.Error()}
	}

	if !doc.IndexStatus.CanTransition(domain.IndexStatusPending) && doc.IndexStatus != domain.IndexStatusPending {
		logger.WithFields(logger.Fields{
			"document_id": documentID,
			"status":      doc.IndexStatus,
		}).Warn("reindexing a document that is still processing")
	}

	doc.IndexStatus = domain.IndexStatusPending
	doc.IndexError = ""
	doc.IndexedAt = nil
	if err := ix.docs.UpdateDocument(ctx, doc); err != nil {
		return domain.IndexingResult{DocumentID: documentID, Error: fmt.Sprintf("reset document: %v", err)}
	}

	return ix.IndexDocument(ctx, documentID, opts)
}

// IndexPending indexes up to limit pending documents, oldest first.
// One result is returned per document; failures never stop the batch.
func (ix *Indexer) IndexPending(ctx context.Context, limit int, opts domain.IndexOptions) []domain.IndexingResult {
	docs, err := ix.docs.ListDocumentsByStatus(ctx, domain.IndexStatusPending, limit)
	if err != nil {
		logger.Warn("list pending documents: %v", err)
		return nil
	}

	logger.Section("Index pending")
	results := make([]domain.IndexingResult, 0, len(docs))
	for i := range docs {
		if ctx.Err() != nil {
			logger.Warn("index pending interrupted after %d of %d documents", i, len(docs))
			break
		}
		results = append(results, ix.IndexDocument(ctx, docs[i].ID, opts))
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	logger.Info("Indexed %d of %d pending documents", succeeded, len(results))
	return results
}

// fail records err on doc (when loaded) and returns the failed result.
func (ix *Indexer) fail(ctx context.Context, doc *domain.Document, result domain.IndexingResult, err error) domain.IndexingResult {
	result.Success = false
	result.Error = err.Error()
	metrics.DocumentsIndexed.WithLabelValues(string(domain.IndexStatusFailed)).Inc()

	fields := logger.Fields{"document_id": result.DocumentID}
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		fields["stage"] = pe.Stage
	}
	logger.WithFields(fields).WithError(err).Warn("indexing failed")

	if doc == nil {
		return result
	}
	doc.IndexStatus = domain.IndexStatusFailed
	doc.IndexError = err.Error()
	if updateErr := ix.docs.UpdateDocument(ctx, doc); updateErr != nil {
		logger.WithFields(fields).WithError(updateErr).Error("could not record indexing failure")
	}
	return result
}

func (ix *Indexer) observe(stage string, since time.Time) time.Duration {
	d := ix.now().Sub(since)
	metrics.ObserveStage(stage, d)
	return d
}

func (ix *Indexer) chunkerFor(opts domain.IndexOptions) *chunker.Processor {
	size, overlap, minSize := ix.chunking.Size, ix.chunking.Overlap, ix.chunking.MinSize
	if opts.ChunkSize > 0 {
		size = opts.ChunkSize
	}
	if opts.ChunkOverlap > 0 {
		overlap = opts.ChunkOverlap
	}
	if opts.MinChunkSize > 0 {
		minSize = opts.MinChunkSize
	}
	return chunker.New(
		chunker.WithChunkSize(size),
		chunker.WithOverlap(overlap),
		chunker.WithMinChunkSize(minSize),
	)
}

func (ix *Indexer) indexMetadata(existing map[string]any, opts domain.IndexOptions, textLen int) map[string]any {
	meta := make(map[string]any, len(existing)+4)
	for k, v := range existing {
		meta[k] = v
	}
	meta["text_length"] = textLen
	if p := ix.embedder.Provider(); p != nil {
		meta["embedding_provider"] = p.ProviderName()
		meta["embedding_model"] = p.ModelName()
	}
	if opts.ChunkSize > 0 {
		meta["chunk_size"] = opts.ChunkSize
	}
	return meta
}
