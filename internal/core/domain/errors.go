package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested document or row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a file type no text extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// Precondition Errors.

	// ErrNoStoragePath indicates a document has no storage locator to download from.
	ErrNoStoragePath = errors.New("document has no storage path")

	// ErrQueueNotConfigured indicates the job broker has not been set up.
	ErrQueueNotConfigured = errors.New("job queue not configured")

	// Unusable Input Errors.

	// ErrEmptyExtraction indicates text extraction produced no usable text.
	// The message is stored verbatim on the failed document.
	ErrEmptyExtraction = errors.New("No text content extracted from document") //nolint:stylecheck,revive

	// ErrNoChunksGenerated indicates chunking left nothing to embed.
	ErrNoChunksGenerated = errors.New("No chunks generated from document") //nolint:stylecheck,revive

	// Provider Errors.

	// ErrProviderFailed indicates an embedding or LLM provider call failed.
	ErrProviderFailed = errors.New("provider call failed")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// Queue Errors.

	// ErrNoJob is returned by a broker when no job is ready to run.
	ErrNoJob = errors.New("no job available")

	// ErrQueueClosed indicates the queue has been shut down.
	ErrQueueClosed = errors.New("queue closed")

	// ErrUnknownQueue indicates a queue name outside the fixed set.
	ErrUnknownQueue = errors.New("unknown queue")
)

// PipelineError records the stage of the indexing pipeline that failed.
type PipelineError struct {
	// Stage is the pipeline step, e.g. "download" or "embed".
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error returns the underlying message. Stage names are not prefixed so
// the message stored on a failed document reads the same as the cause.
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Stage)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with the stage it occurred in.
func NewPipelineError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}
