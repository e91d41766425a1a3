package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

// Verify interface compliance.
var _ driving.QueueService = (*JobQueue)(nil)

// JobQueue schedules work on the three queues. Job ids for per-document
// work are deterministic so duplicate requests collapse onto one job.
type JobQueue struct {
	broker driven.JobBroker
	cfg    domain.QueueConfig

	mu     sync.Mutex
	pool   *WorkerPool
	closed bool
}

// NewJobQueue creates a job queue over broker. A nil broker yields a
// queue whose operations return domain.ErrQueueNotConfigured.
func NewJobQueue(broker driven.JobBroker, cfg domain.QueueConfig) *JobQueue {
	return &JobQueue{broker: broker, cfg: cfg}
}

// Broker returns the underlying broker.
func (q *JobQueue) Broker() driven.JobBroker {
	return q.broker
}

// Policy returns the retry policy for queue.
func (q *JobQueue) Policy(queue domain.QueueName) domain.RetryPolicy {
	return q.cfg.Policy(queue)
}

// Attach registers the worker pool stopped by Shutdown.
func (q *JobQueue) Attach(pool *WorkerPool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pool = pool
}

// EnqueueIndexJob schedules indexing of a document under id index-{documentID}.
func (q *JobQueue) EnqueueIndexJob(
	ctx context.Context,
	documentID string,
	reindex bool,
	priority domain.Priority,
) (domain.Job, bool, error) {
	if documentID == "" {
		return domain.Job{}, false, fmt.Errorf("document id is required: %w", domain.ErrInvalidInput)
	}
	payload := domain.IndexJobPayload{DocumentID: documentID, Reindex: reindex}
	return q.enqueue(ctx, domain.IndexJobID(documentID), domain.JobTypeIndexDocument, payload, priority)
}

// EnqueueExtractionJob schedules entity extraction under id extract-{documentID}.
func (q *JobQueue) EnqueueExtractionJob(
	ctx context.Context,
	documentID, orgID string,
	priority domain.Priority,
) (domain.Job, bool, error) {
	if documentID == "" || orgID == "" {
		return domain.Job{}, false, fmt.Errorf("document and org ids are required: %w", domain.ErrInvalidInput)
	}
	payload := domain.ExtractJobPayload{DocumentID: documentID, OrgID: orgID}
	return q.enqueue(ctx, domain.ExtractJobID(documentID), domain.JobTypeExtractEntities, payload, priority)
}

// EnqueueBatchJob schedules a batch operation under a fresh id.
func (q *JobQueue) EnqueueBatchJob(
	ctx context.Context,
	payload domain.BatchJobPayload,
	priority domain.Priority,
) (domain.Job, error) {
	switch payload.Operation {
	case domain.BatchIndexPending:
	case domain.BatchReindex:
		if len(payload.DocumentIDs) == 0 {
			return domain.Job{}, fmt.Errorf("reindex batch needs document ids: %w", domain.ErrInvalidInput)
		}
	default:
		return domain.Job{}, fmt.Errorf("unknown batch operation %q: %w", payload.Operation, domain.ErrInvalidInput)
	}

	job, _, err := q.enqueue(ctx, "batch-"+uuid.NewString(), domain.JobTypeBatchOperation, payload, priority)
	return job, err
}

func (q *JobQueue) enqueue(
	ctx context.Context,
	id string,
	jobType domain.JobType,
	payload any,
	priority domain.Priority,
) (domain.Job, bool, error) {
	if err := q.available(); err != nil {
		return domain.Job{}, false, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("encode %s payload: %w", jobType, err)
	}

	queue := domain.QueueFor(jobType)
	job := domain.Job{
		ID:          id,
		Queue:       queue,
		Type:        jobType,
		Payload:     data,
		Priority:    domain.ParsePriority(string(priority)),
		MaxAttempts: q.cfg.Policy(queue).MaxAttempts,
	}

	stored, created, err := q.broker.Enqueue(ctx, job)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("enqueue %s: %w", id, err)
	}

	fields := logger.Fields{"job_id": id, "queue": queue, "priority": job.Priority}
	if created {
		logger.WithFields(fields).Debug("job enqueued")
	} else {
		logger.WithFields(fields).WithField("state", stored.State).Debug("job already outstanding")
	}
	return stored, created, nil
}

// Stats returns depth counters for one queue and refreshes its gauges.
func (q *JobQueue) Stats(ctx context.Context, queue domain.QueueName) (domain.QueueStats, error) {
	if err := q.available(); err != nil {
		return domain.QueueStats{}, err
	}
	if !queue.IsValid() {
		return domain.QueueStats{}, fmt.Errorf("queue %q: %w", queue, domain.ErrUnknownQueue)
	}

	stats, err := q.broker.Stats(ctx, queue)
	if err != nil {
		return domain.QueueStats{}, err
	}
	recordQueueGauges(stats)
	return stats, nil
}

// AllStats returns depth counters for every queue in a stable order.
func (q *JobQueue) AllStats(ctx context.Context) ([]domain.QueueStats, error) {
	all := make([]domain.QueueStats, 0, len(domain.QueueNames()))
	for _, name := range domain.QueueNames() {
		stats, err := q.Stats(ctx, name)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}
	return all, nil
}

// ReclaimExpired returns jobs with lapsed leases on every queue to waiting.
func (q *JobQueue) ReclaimExpired(ctx context.Context) (int, error) {
	if err := q.available(); err != nil {
		return 0, err
	}

	total := 0
	for _, name := range domain.QueueNames() {
		n, err := q.broker.ReclaimExpired(ctx, name, q.Policy(name))
		if err != nil {
			return total, err
		}
		if n > 0 {
			logger.WithFields(logger.Fields{"queue": name, "count": n}).Warn("reclaimed expired jobs")
		}
		total += n
	}
	return total, nil
}

// Shutdown stops the attached worker pool, waits for in-flight jobs and
// closes the broker. Later enqueues return domain.ErrQueueClosed.
func (q *JobQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pool := q.pool
	q.mu.Unlock()

	if pool != nil {
		if err := pool.Stop(ctx); err != nil {
			logger.Warn("queue: worker pool did not drain: %v", err)
		}
	}

	if q.broker == nil {
		return nil
	}
	if err := q.broker.Close(); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}
	return nil
}

func (q *JobQueue) available() error {
	if q.broker == nil {
		return domain.ErrQueueNotConfigured
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	return nil
}

func recordQueueGauges(s domain.QueueStats) {
	queue := string(s.Queue)
	metrics.QueueJobs.WithLabelValues(queue, string(domain.JobStateWaiting)).Set(float64(s.Waiting))
	metrics.QueueJobs.WithLabelValues(queue, string(domain.JobStateDelayed)).Set(float64(s.Delayed))
	metrics.QueueJobs.WithLabelValues(queue, string(domain.JobStateActive)).Set(float64(s.Active))
	metrics.QueueJobs.WithLabelValues(queue, string(domain.JobStateCompleted)).Set(float64(s.Completed))
	metrics.QueueJobs.WithLabelValues(queue, string(domain.JobStateFailed)).Set(float64(s.Failed))
}
