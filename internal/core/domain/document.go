package domain

import "time"

// IndexStatus is the lifecycle stage of a document's searchability.
type IndexStatus string

// Index statuses.
const (
	// IndexStatusPending means the document is waiting to be indexed.
	IndexStatusPending IndexStatus = "pending"

	// IndexStatusProcessing means an indexer currently owns the document.
	IndexStatusProcessing IndexStatus = "processing"

	// IndexStatusIndexed means the document's chunks are searchable.
	IndexStatusIndexed IndexStatus = "indexed"

	// IndexStatusFailed means the last indexing attempt failed.
	IndexStatusFailed IndexStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s IndexStatus) IsValid() bool {
	switch s {
	case IndexStatusPending, IndexStatusProcessing, IndexStatusIndexed, IndexStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a document may move from s to next.
// Reindexing moves indexed or failed documents back to pending.
func (s IndexStatus) CanTransition(next IndexStatus) bool {
	switch s {
	case IndexStatusPending:
		return next == IndexStatusProcessing || next == IndexStatusFailed
	case IndexStatusProcessing:
		return next == IndexStatusIndexed || next == IndexStatusFailed
	case IndexStatusIndexed, IndexStatusFailed:
		return next == IndexStatusPending
	default:
		return false
	}
}

// String returns the string representation.
func (s IndexStatus) String() string {
	return string(s)
}

// ParseIndexStatuses converts raw strings into statuses, dropping unknown values.
func ParseIndexStatuses(raw []string) []IndexStatus {
	out := make([]IndexStatus, 0, len(raw))
	for _, r := range raw {
		s := IndexStatus(r)
		if s.IsValid() {
			out = append(out, s)
		}
	}
	return out
}

// Document represents an uploaded document and its indexing state.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// OrgID is the owning organisation.
	OrgID string

	// Filename is the original upload name, used by the filename search fallback.
	Filename string

	// FileType is the format hint handed to text extraction (e.g. "pdf", "md").
	FileType string

	// StoragePath locates the raw bytes in blob storage.
	StoragePath string

	// IndexStatus is the current lifecycle stage.
	IndexStatus IndexStatus

	// IndexError holds the message of the last failed indexing attempt.
	IndexError string

	// PageCount is reported by text extraction.
	PageCount int

	// ChunkCount is the number of chunks stored by the last successful index.
	ChunkCount int

	// TokenCount is the aggregate token count across all chunks.
	TokenCount int

	// IndexedAt is when the document last reached IndexStatusIndexed.
	IndexedAt *time.Time

	// Metadata contains indexing and extraction metadata.
	Metadata map[string]any

	// CreatedAt is when the upload was confirmed.
	CreatedAt time.Time

	// UpdatedAt is when the row last changed.
	UpdatedAt time.Time

	// DeletedAt is the soft-delete tombstone. Tombstoned documents are
	// excluded from every query.
	DeletedAt *time.Time
}

// IsDeleted returns true if the document carries a tombstone.
func (d *Document) IsDeleted() bool {
	return d.DeletedAt != nil
}

// Chunk is a bounded contiguous slice of a document's extracted text.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// OrgID is copied from the parent document.
	OrgID string

	// Content is the raw text of this chunk.
	Content string

	// Sequence is the zero-based position within the document.
	Sequence int

	// TokenCount is the tokenizer's count for Content.
	TokenCount int

	// StartOffset is the first character (rune) offset into the extracted text.
	StartOffset int

	// EndOffset is one past the last character offset.
	EndOffset int

	// PageNumber is set when the extractor reports page boundaries.
	PageNumber *int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}

// Len returns the chunk length in characters.
func (c *Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// ScoredChunk pairs a stored chunk with the status of its document.
// It is the unit loaded by vector search.
type ScoredChunk struct {
	Chunk          Chunk
	DocumentStatus IndexStatus
}
