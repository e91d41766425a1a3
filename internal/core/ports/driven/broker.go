package driven

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// JobBroker is a durable job queue.
//
// Enqueue is idempotent per job ID: while a job with the same ID is waiting,
// delayed or active, a second enqueue returns the existing job and
// created=false. Receive claims the highest-priority runnable job and leases
// it until the visibility timeout expires.
type JobBroker interface {
	// Enqueue stores job and reports whether a new record was created.
	Enqueue(ctx context.Context, job domain.Job) (domain.Job, bool, error)

	// Receive claims the next runnable job on queue.
	// Returns domain.ErrNoJob when nothing is ready.
	Receive(ctx context.Context, queue domain.QueueName) (*domain.Job, error)

	// Complete marks a claimed job completed and applies retention.
	Complete(ctx context.Context, job *domain.Job, retention domain.RetryPolicy) error

	// Fail records a failed attempt. The job is re-delayed with back-off
	// until MaxAttempts is reached, then marked failed.
	Fail(ctx context.Context, job *domain.Job, cause error, policy domain.RetryPolicy) error

	// Get returns a job by queue and ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, queue domain.QueueName, id string) (*domain.Job, error)

	// Stats counts jobs per state on queue.
	Stats(ctx context.Context, queue domain.QueueName) (domain.QueueStats, error)

	// ReclaimExpired returns active jobs whose lease has expired to the
	// waiting state and reports how many were reclaimed. Jobs with no
	// attempts left are failed and kept for the policy's failed retention.
	ReclaimExpired(ctx context.Context, queue domain.QueueName, policy domain.RetryPolicy) (int, error)

	// Close releases broker resources.
	Close() error
}
