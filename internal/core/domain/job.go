package domain

import (
	"encoding/json"
	"time"
)

// JobType identifies the handler a job is dispatched to.
type JobType string

// Job types.
const (
	JobTypeIndexDocument   JobType = "index_document"
	JobTypeExtractEntities JobType = "extract_entities"
	JobTypeBatchOperation  JobType = "batch_operation"
)

// QueueName is one of the three logical queues.
type QueueName string

// Queue names.
const (
	QueueDocumentIndexing QueueName = "document-indexing"
	QueueEntityExtraction QueueName = "entity-extraction"
	QueueBatchOperations  QueueName = "batch-operations"
)

// QueueNames returns every queue in a stable order.
func QueueNames() []QueueName {
	return []QueueName{QueueDocumentIndexing, QueueEntityExtraction, QueueBatchOperations}
}

// IsValid returns true if the queue is one of the fixed set.
func (q QueueName) IsValid() bool {
	switch q {
	case QueueDocumentIndexing, QueueEntityExtraction, QueueBatchOperations:
		return true
	default:
		return false
	}
}

// QueueFor returns the queue a job type is routed to.
func QueueFor(t JobType) QueueName {
	switch t {
	case JobTypeIndexDocument:
		return QueueDocumentIndexing
	case JobTypeExtractEntities:
		return QueueEntityExtraction
	default:
		return QueueBatchOperations
	}
}

// Priority is the three-tier job priority.
type Priority string

// Priority tiers.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Value maps the tier onto the broker's numeric ordering. Lower runs first.
func (p Priority) Value() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 10
	default:
		return 5
	}
}

// ParsePriority returns the tier for raw, defaulting to normal.
func ParsePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityHigh, PriorityLow:
		return Priority(raw)
	default:
		return PriorityNormal
	}
}

// JobState is the lifecycle stage of a job record.
type JobState string

// Job states.
const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// IsOutstanding reports whether a job in this state still blocks a
// duplicate enqueue.
func (s JobState) IsOutstanding() bool {
	return s == JobStateWaiting || s == JobStateDelayed || s == JobStateActive
}

// IndexJobID is the deterministic job id for indexing a document.
func IndexJobID(documentID string) string {
	return "index-" + documentID
}

// ExtractJobID is the deterministic job id for extracting a document's entities.
func ExtractJobID(documentID string) string {
	return "extract-" + documentID
}

// Job is a unit of queued work.
type Job struct {
	ID          string          `json:"id"`
	Queue       QueueName       `json:"queue"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`

	// AvailableAt is when a waiting or delayed job becomes runnable.
	AvailableAt time.Time `json:"available_at"`

	// LeaseUntil is when an active job's claim expires.
	LeaseUntil time.Time `json:"lease_until,omitempty"`

	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// IndexJobPayload is the payload of an index_document job.
type IndexJobPayload struct {
	DocumentID string       `json:"document_id"`
	Reindex    bool         `json:"reindex,omitempty"`
	Options    IndexOptions `json:"options"`
}

// ExtractJobPayload is the payload of an extract_entities job.
type ExtractJobPayload struct {
	DocumentID string `json:"document_id"`
	OrgID      string `json:"org_id"`
}

// BatchOperation names a batch job's action.
type BatchOperation string

// Batch operations.
const (
	// BatchIndexPending indexes up to Limit pending documents.
	BatchIndexPending BatchOperation = "index_pending"

	// BatchReindex enqueues reindex jobs for DocumentIDs.
	BatchReindex BatchOperation = "reindex"
)

// BatchJobPayload is the payload of a batch_operation job.
type BatchJobPayload struct {
	Operation   BatchOperation `json:"operation"`
	Limit       int            `json:"limit,omitempty"`
	DocumentIDs []string       `json:"document_ids,omitempty"`
}

// RetryPolicy bounds retries and retention for one queue.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int

	// Backoff is the first retry delay; each later retry doubles it.
	Backoff time.Duration

	// CompletedRetention is how long completed records are kept.
	CompletedRetention time.Duration

	// FailedRetention is how long exhausted records are kept.
	FailedRetention time.Duration
}

// Delay returns the exponential back-off before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// DefaultRetryPolicies returns the per-queue policies.
func DefaultRetryPolicies() map[QueueName]RetryPolicy {
	return map[QueueName]RetryPolicy{
		QueueDocumentIndexing: {
			MaxAttempts:        3,
			Backoff:            5 * time.Second,
			CompletedRetention: 24 * time.Hour,
			FailedRetention:    7 * 24 * time.Hour,
		},
		QueueEntityExtraction: {
			MaxAttempts:        2,
			Backoff:            10 * time.Second,
			CompletedRetention: 24 * time.Hour,
			FailedRetention:    3 * 24 * time.Hour,
		},
		QueueBatchOperations: {
			MaxAttempts:        3,
			Backoff:            5 * time.Second,
			CompletedRetention: time.Hour,
			FailedRetention:    7 * 24 * time.Hour,
		},
	}
}

// QueueStats is a per-queue depth snapshot.
type QueueStats struct {
	Queue     QueueName `json:"queue"`
	Waiting   int       `json:"waiting"`
	Active    int       `json:"active"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Delayed   int       `json:"delayed"`
}

// Healthy reports whether the queue has no failed jobs retained.
func (s QueueStats) Healthy() bool {
	return s.Failed == 0
}
