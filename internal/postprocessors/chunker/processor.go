// Package chunker splits extracted document text into overlapping,
// size-bounded chunks.
package chunker

import (
	"unicode"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// DefaultMinChunkSize is the length below which a chunk is merged into a neighbour.
const DefaultMinChunkSize = 100

// Processor splits text into chunks. All sizes and offsets are in
// characters (runes), not bytes.
type Processor struct {
	chunkSize int
	overlap   int
	minSize   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinChunkSize sets the merge threshold in characters.
func WithMinChunkSize(size int) Option {
	return func(p *Processor) {
		if size >= 0 {
			p.minSize = size
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		minSize:   DefaultMinChunkSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}
	if p.minSize > p.chunkSize {
		p.minSize = p.chunkSize
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Chunk splits text and merges undersized chunks. The result is
// sequenced from zero and carries page numbers when text contains form feeds.
func (p *Processor) Chunk(text string) []domain.Chunk {
	runes := []rune(text)
	chunks := p.mergeSmall(runes, p.split(runes))
	assignPages(runes, chunks)
	return chunks
}

// Split splits text without the merge pass.
func (p *Processor) Split(text string) []domain.Chunk {
	return p.split([]rune(text))
}

// MergeSmall folds chunks shorter than the minimum size into a neighbour.
// chunks must have been produced from text by Split.
func (p *Processor) MergeSmall(text string, chunks []domain.Chunk) []domain.Chunk {
	return p.mergeSmall([]rune(text), chunks)
}

func (p *Processor) split(runes []rune) []domain.Chunk {
	n := len(runes)
	if n == 0 {
		return nil
	}

	estimated := n/(p.chunkSize-p.overlap) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	start := 0
	for start < n {
		end := start + p.chunkSize
		if end >= n {
			end = n
		} else {
			end = p.findBreak(runes, start, end)
		}

		chunks = append(chunks, domain.Chunk{
			Content:     string(runes[start:end]),
			Sequence:    len(chunks),
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			break
		}

		next := end - p.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// findBreak looks back from end for the strongest boundary, no further
// than half a chunk from start. Paragraphs beat lines, lines beat sentence
// ends, sentence ends beat plain whitespace. With no boundary it cuts at end.
func (p *Processor) findBreak(runes []rune, start, end int) int {
	floor := start + p.chunkSize/2
	if floor < start+1 {
		floor = start + 1
	}

	boundaries := []func(i int) bool{
		func(i int) bool { return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' },
		func(i int) bool { return runes[i-1] == '\n' || runes[i-1] == domain.PageBreak },
		func(i int) bool { return i >= 2 && unicode.IsSpace(runes[i-1]) && isSentenceEnd(runes[i-2]) },
		func(i int) bool { return unicode.IsSpace(runes[i-1]) },
	}

	for _, isBoundary := range boundaries {
		for i := end; i >= floor; i-- {
			if isBoundary(i) {
				return i
			}
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func (p *Processor) mergeSmall(runes []rune, chunks []domain.Chunk) []domain.Chunk {
	if len(chunks) <= 1 || p.minSize == 0 {
		return chunks
	}

	merged := make([]domain.Chunk, 0, len(chunks))
	carry := -1

	for i := range chunks {
		ch := chunks[i]
		if carry >= 0 {
			ch.StartOffset = carry
			ch.Content = string(runes[ch.StartOffset:ch.EndOffset])
			carry = -1
		}

		if ch.Len() >= p.minSize {
			merged = append(merged, ch)
			continue
		}

		if len(merged) > 0 {
			prev := &merged[len(merged)-1]
			if ch.EndOffset > prev.EndOffset {
				prev.EndOffset = ch.EndOffset
				prev.Content = string(runes[prev.StartOffset:prev.EndOffset])
			}
			continue
		}

		if i == len(chunks)-1 {
			merged = append(merged, ch)
			continue
		}
		carry = ch.StartOffset
	}

	for i := range merged {
		merged[i].Sequence = i
	}
	return merged
}

// assignPages sets PageNumber from the count of form feeds before each chunk.
func assignPages(runes []rune, chunks []domain.Chunk) {
	hasPages := false
	for _, r := range runes {
		if r == domain.PageBreak {
			hasPages = true
			break
		}
	}
	if !hasPages {
		return
	}

	page := 1
	pos := 0
	for i := range chunks {
		for ; pos < chunks[i].StartOffset; pos++ {
			if runes[pos] == domain.PageBreak {
				page++
			}
		}
		n := page
		chunks[i].PageNumber = &n
	}
}
