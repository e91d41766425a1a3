package domain

import (
	"strings"
	"time"
)

// IndexOptions overrides chunking for a single indexing run.
// Zero values fall back to the configured defaults.
type IndexOptions struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// IndexingTimings records wall time per pipeline stage.
type IndexingTimings struct {
	Download time.Duration `json:"download"`
	Extract  time.Duration `json:"extract"`
	Chunk    time.Duration `json:"chunk"`
	Embed    time.Duration `json:"embed"`
	Persist  time.Duration `json:"persist"`
	Total    time.Duration `json:"total"`
}

// IndexingResult is the structured outcome of indexing one document.
// Failures are reported here, never as a returned error.
type IndexingResult struct {
	Success       bool            `json:"success"`
	DocumentID    string          `json:"document_id"`
	ChunksCreated int             `json:"chunks_created"`
	TotalTokens   int             `json:"total_tokens"`
	PageCount     int             `json:"page_count"`
	Timings       IndexingTimings `json:"timings"`
	Error         string          `json:"error,omitempty"`
}

// ExtractedText is what a text extractor returns for one document.
type ExtractedText struct {
	Text      string
	PageCount int
}

// PageBreak separates pages in extracted text.
const PageBreak = '\f'

// CountPages returns the number of pages in text: one more than the
// number of page breaks.
func CountPages(text string) int {
	return strings.Count(text, string(PageBreak)) + 1
}
