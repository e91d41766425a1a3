package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// Filename fallback scoring.
const (
	fallbackStartScore = 0.5
	fallbackScoreStep  = 0.05
	fallbackMinScore   = 0.01

	// fallbackScanLimit bounds the documents scanned for normalised matches.
	fallbackScanLimit = 1000
)

// SearchService ranks documents by exact cosine similarity over every
// chunk of an organisation, with a filename fallback.
type SearchService struct {
	docs          driven.DocumentStore
	chunks        driven.ChunkStore
	embedder      *EmbeddingGenerator
	snippetWindow int
}

// SearchOption configures a SearchService.
type SearchOption func(*SearchService)

// WithSnippetWindow sets the snippet length in characters.
func WithSnippetWindow(n int) SearchOption {
	return func(s *SearchService) {
		if n > 0 {
			s.snippetWindow = n
		}
	}
}

// NewSearchService creates a new search service.
func NewSearchService(
	docs driven.DocumentStore,
	chunks driven.ChunkStore,
	embedder *EmbeddingGenerator,
	opts ...SearchOption,
) *SearchService {
	s := &SearchService{
		docs:          docs,
		chunks:        chunks,
		embedder:      embedder,
		snippetWindow: domain.DefaultSnippetWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns up to opts.Limit documents ranked by their best chunk.
// Embedding or datastore failures yield an empty list, not an error.
func (s *SearchService) Search(
	ctx context.Context,
	orgID, query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, fmt.Errorf("search: org id is required: %w", domain.ErrInvalidInput)
	}

	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	results := []domain.SearchResult{}
	query = strings.TrimSpace(query)
	if query == "" {
		return results, nil
	}

	embedded, err := s.embedder.Generate(ctx, []string{query})
	if err != nil || len(embedded.Vectors) != 1 {
		logger.WithField("org_id", orgID).WithError(err).Warn("query embedding failed, treating as no matches")
		return results, nil
	}
	queryVec := embedded.Vectors[0]

	chunks, err := s.chunks.ListChunksForSearch(ctx, orgID, opts.EffectiveStatuses())
	if err != nil {
		logger.WithField("org_id", orgID).WithError(err).Warn("loading chunks failed, treating as no matches")
		return results, nil
	}

	type hit struct {
		chunk *domain.Chunk
		score float64
	}
	minScore := opts.EffectiveMinScore()
	hits := make([]hit, 0, len(chunks))
	for i := range chunks {
		score := CosineSimilarity(queryVec, chunks[i].Chunk.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, hit{chunk: &chunks[i].Chunk, score: score})
	}
	logger.Debug("Scored %d chunks, %d above %.2f", len(chunks), len(hits), minScore)

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.chunk.DocumentID != b.chunk.DocumentID {
			return a.chunk.DocumentID < b.chunk.DocumentID
		}
		return a.chunk.Sequence < b.chunk.Sequence
	})

	limit := opts.EffectiveLimit()
	seen := make(map[string]bool)
	for _, h := range hits {
		if len(results) >= limit {
			break
		}
		if seen[h.chunk.DocumentID] {
			continue
		}
		seen[h.chunk.DocumentID] = true

		doc, err := s.docs.GetDocument(ctx, h.chunk.DocumentID)
		if err != nil {
			logger.Debug("Skipping chunk of unavailable document %s: %v", h.chunk.DocumentID, err)
			continue
		}
		results = append(results, domain.SearchResult{
			Document: *doc,
			ChunkID:  h.chunk.ID,
			Score:    h.score,
			Snippet:  Snippet(h.chunk.Content, query, s.snippetWindow),
		})
	}

	return results, nil
}

// SearchWithFallback runs Search and, when it finds nothing, matches
// filenames against the query instead.
func (s *SearchService) SearchWithFallback(
	ctx context.Context,
	orgID, query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	results, err := s.Search(ctx, orgID, query, opts)
	if err != nil || len(results) > 0 {
		return results, err
	}

	fallback := s.filenameMatches(ctx, orgID, strings.TrimSpace(query), opts.EffectiveLimit())
	if len(fallback) > 0 {
		metrics.SearchFallbacks.Inc()
		logger.WithFields(logger.Fields{"org_id": orgID, "matches": len(fallback)}).Debug("answered by filename fallback")
	}
	return fallback, nil
}

// filenameMatches returns documents whose filename contains query, or
// its normalised form, with decreasing synthetic scores.
func (s *SearchService) filenameMatches(ctx context.Context, orgID, query string, limit int) []domain.SearchResult {
	results := []domain.SearchResult{}
	if query == "" {
		return results
	}

	seen := make(map[string]bool)
	add := func(doc domain.Document) {
		if len(results) >= limit || seen[doc.ID] {
			return
		}
		seen[doc.ID] = true
		score := fallbackStartScore - fallbackScoreStep*float64(len(results))
		if score < fallbackMinScore {
			score = fallbackMinScore
		}
		results = append(results, domain.SearchResult{Document: doc, Score: score, Fallback: true})
	}

	direct, err := s.docs.FindDocumentsByFilename(ctx, orgID, query, limit)
	if err != nil {
		logger.WithField("org_id", orgID).WithError(err).Warn("filename fallback failed")
	}
	for _, doc := range direct {
		add(doc)
	}

	normalized := normalizeFilename(query)
	if len(results) >= limit || normalized == "" {
		return results
	}

	docs, err := s.docs.ListDocuments(ctx, orgID, fallbackScanLimit)
	if err != nil {
		logger.WithField("org_id", orgID).WithError(err).Warn("filename fallback scan failed")
		return results
	}
	for _, doc := range docs {
		if strings.Contains(normalizeFilename(doc.Filename), normalized) {
			add(doc)
		}
	}
	return results
}

// normalizeFilename lowercases s and keeps only letters and digits, so
// "Q3 Report" matches "Q3-Report.pdf".
func normalizeFilename(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// queryTerms returns the distinct lowercased words of query longer than
// two characters.
func queryTerms(query string) mapset.Set[string] {
	terms := mapset.NewThreadUnsafeSet[string]()
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) > 2 {
			terms.Add(w)
		}
	}
	return terms
}

// Snippet picks the window of content that contains the most distinct
// query terms. The window starts on a word, ends on a word boundary and
// is marked with "..." on each truncated side.
func Snippet(content, query string, window int) string {
	runes := []rune(content)
	if window <= 0 || len(runes) <= window {
		return strings.TrimSpace(content)
	}

	terms := queryTerms(query).ToSlice()
	sort.Strings(terms)
	lower := []rune(strings.ToLower(content))
	if len(lower) != len(runes) {
		lower = runes
	}

	bestStart, bestCount := 0, 0
	if len(terms) > 0 {
		for start := 0; start < len(runes); start++ {
			if unicode.IsSpace(runes[start]) || (start > 0 && !unicode.IsSpace(runes[start-1])) {
				continue
			}
			end := min(start+window, len(runes))
			segment := string(lower[start:end])
			count := 0
			for _, term := range terms {
				if strings.Contains(segment, term) {
					count++
				}
			}
			if count > bestCount {
				bestStart, bestCount = start, count
			}
			if end == len(runes) {
				break
			}
		}
	}

	end := min(bestStart+window, len(runes))
	if end < len(runes) && !unicode.IsSpace(runes[end]) {
		for i := end - 1; i > bestStart; i-- {
			if unicode.IsSpace(runes[i]) {
				end = i
				break
			}
		}
	}

	snippet := strings.TrimSpace(string(runes[bestStart:end]))
	if bestStart > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}
