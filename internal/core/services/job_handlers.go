package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// defaultBatchLimit bounds an index_pending batch without an explicit limit.
const defaultBatchLimit = 100

// JobHandlers binds the pipeline services to the worker pool's job types.
type JobHandlers struct {
	indexing    driving.IndexingService
	extraction  driving.ExtractionService
	docs        driven.DocumentStore
	queue       driving.QueueService
	autoExtract bool
}

// NewJobHandlers creates the handlers. When autoExtract is set a
// successful index enqueues extraction for the document.
func NewJobHandlers(
	indexing driving.IndexingService,
	extraction driving.ExtractionService,
	docs driven.DocumentStore,
	queue driving.QueueService,
	autoExtract bool,
) *JobHandlers {
	return &JobHandlers{
		indexing:    indexing,
		extraction:  extraction,
		docs:        docs,
		queue:       queue,
		autoExtract: autoExtract,
	}
}

// Register installs every handler on pool.
func (h *JobHandlers) Register(pool *WorkerPool) {
	pool.RegisterHandler(domain.JobTypeIndexDocument, h.HandleIndex)
	pool.RegisterHandler(domain.JobTypeExtractEntities, h.HandleExtract)
	pool.RegisterHandler(domain.JobTypeBatchOperation, h.HandleBatch)
}

// HandleIndex indexes the job's document. An unsuccessful result is
// returned as an error so the broker retries it. Retries reset the
// document to pending first.
func (h *JobHandlers) HandleIndex(ctx context.Context, job *domain.Job) error {
	var payload domain.IndexJobPayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode index payload: %w", err)
	}

	var result domain.IndexingResult
	if payload.Reindex || job.Attempts > 1 {
		result = h.indexing.ReindexDocument(ctx, payload.DocumentID, payload.Options)
	} else {
		result = h.indexing.IndexDocument(ctx, payload.DocumentID, payload.Options)
	}
	if !result.Success {
		return fmt.Errorf("index %s: %s", payload.DocumentID, result.Error)
	}

	if h.autoExtract {
		h.enqueueExtraction(ctx, payload.DocumentID)
	}
	return nil
}

func (h *JobHandlers) enqueueExtraction(ctx context.Context, documentID string) {
	log := logger.WithField("document_id", documentID)

	doc, err := h.docs.GetDocument(ctx, documentID)
	if err != nil {
		log.WithError(err).Warn("auto-extract: document not loaded")
		return
	}
	if _, _, err := h.queue.EnqueueExtractionJob(ctx, doc.ID, doc.OrgID, domain.PriorityNormal); err != nil {
		log.WithError(err).Warn("auto-extract: enqueue failed")
	}
}

// HandleExtract runs entity extraction over the document's chunks. A run
// where every chunk failed is returned as an error.
func (h *JobHandlers) HandleExtract(ctx context.Context, job *domain.Job) error {
	var payload domain.ExtractJobPayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode extract payload: %w", err)
	}

	result, err := h.extraction.ExtractDocument(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("extract %s: %w", payload.DocumentID, err)
	}
	if result.ChunksProcessed == 0 && result.ChunksFailed > 0 {
		return fmt.Errorf("extract %s: all %d chunks failed", payload.DocumentID, result.ChunksFailed)
	}

	logger.WithFields(logger.Fields{
		"document_id":   payload.DocumentID,
		"org_id":        payload.OrgID,
		"entities":      result.EntitiesExtracted,
		"relationships": result.RelationshipsExtracted,
	}).Info("entities extracted")
	return nil
}

// HandleBatch fans a batch operation out into per-document index jobs.
func (h *JobHandlers) HandleBatch(ctx context.Context, job *domain.Job) error {
	var payload domain.BatchJobPayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode batch payload: %w", err)
	}

	switch payload.Operation {
	case domain.BatchIndexPending:
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultBatchLimit
		}
		docs, err := h.docs.ListDocumentsByStatus(ctx, domain.IndexStatusPending, limit)
		if err != nil {
			return fmt.Errorf("list pending documents: %w", err)
		}
		ids := make([]string, len(docs))
		for i := range docs {
			ids[i] = docs[i].ID
		}
		return h.enqueueIndexJobs(ctx, ids, false)

	case domain.BatchReindex:
		return h.enqueueIndexJobs(ctx, payload.DocumentIDs, true)

	default:
		return fmt.Errorf("unknown batch operation %q: %w", payload.Operation, domain.ErrInvalidInput)
	}
}

func (h *JobHandlers) enqueueIndexJobs(ctx context.Context, ids []string, reindex bool) error {
	var errs []error
	created := 0
	for _, id := range ids {
		_, ok, err := h.queue.EnqueueIndexJob(ctx, id, reindex, domain.PriorityLow)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}

	logger.WithFields(logger.Fields{
		"documents": len(ids),
		"enqueued":  created,
		"reindex":   reindex,
	}).Info("batch fanned out")
	return errors.Join(errs...)
}
