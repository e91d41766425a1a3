package driving

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// QueueService schedules asynchronous work and exposes queue health.
type QueueService interface {
	// EnqueueIndexJob schedules indexing of a document. A second call while
	// the first job is outstanding returns the existing job and created=false.
	EnqueueIndexJob(
		ctx context.Context,
		documentID string,
		reindex bool,
		priority domain.Priority,
	) (job domain.Job, created bool, err error)

	// EnqueueExtractionJob schedules entity extraction for a document.
	EnqueueExtractionJob(
		ctx context.Context,
		documentID, orgID string,
		priority domain.Priority,
	) (job domain.Job, created bool, err error)

	// EnqueueBatchJob schedules a batch operation.
	EnqueueBatchJob(ctx context.Context, payload domain.BatchJobPayload, priority domain.Priority) (domain.Job, error)

	// Stats returns depth counters for one queue.
	Stats(ctx context.Context, queue domain.QueueName) (domain.QueueStats, error)

	// AllStats returns depth counters for every queue.
	AllStats(ctx context.Context) ([]domain.QueueStats, error)

	// Shutdown stops workers, waits for in-flight jobs and closes the broker.
	Shutdown(ctx context.Context) error
}

// WorkerPool runs queued jobs in the background.
type WorkerPool interface {
	// Start launches the workers and returns immediately.
	Start(ctx context.Context) error

	// Stop waits for in-flight jobs, or for ctx to expire.
	Stop(ctx context.Context) error
}
