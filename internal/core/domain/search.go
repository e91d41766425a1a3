package domain

// Search defaults.
const (
	DefaultSearchLimit    = 10
	DefaultSearchMinScore = 0.3
	DefaultSnippetWindow  = 200
)

// SearchOptions configures search behaviour.
type SearchOptions struct {
	// Limit is the maximum number of documents to return.
	Limit int

	// MinScore discards chunks scoring below it. Nil means DefaultSearchMinScore,
	// so an explicit zero is honoured.
	MinScore *float64

	// StatusFilter restricts which documents' chunks are scored.
	// Empty means indexed only.
	StatusFilter []IndexStatus
}

// EffectiveLimit returns Limit or the default.
func (o SearchOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultSearchLimit
	}
	return o.Limit
}

// EffectiveMinScore returns MinScore or the default.
func (o SearchOptions) EffectiveMinScore() float64 {
	if o.MinScore == nil {
		return DefaultSearchMinScore
	}
	return *o.MinScore
}

// EffectiveStatuses returns StatusFilter or {indexed}.
func (o SearchOptions) EffectiveStatuses() []IndexStatus {
	if len(o.StatusFilter) == 0 {
		return []IndexStatus{IndexStatusIndexed}
	}
	return o.StatusFilter
}

// SearchResult is one ranked document.
type SearchResult struct {
	// Document is the matched document.
	Document Document `json:"document"`

	// ChunkID is the best-scoring chunk. Empty for filename matches.
	ChunkID string `json:"chunk_id,omitempty"`

	// Score is the cosine similarity, or a synthetic score for filename matches.
	Score float64 `json:"score"`

	// Snippet is the highlighted excerpt of the best chunk.
	Snippet string `json:"snippet,omitempty"`

	// Fallback is true when the result came from the filename match.
	Fallback bool `json:"fallback,omitempty"`
}
