// Package tokenizer counts tokens with the cl100k_base BPE encoding.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// Ensure Counter implements the interface.
var _ driven.TokenCounter = (*Counter)(nil)

// DefaultEncoding is used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// charsPerToken is the estimate used when the encoding cannot be loaded.
const charsPerToken = 4

// Counter counts tokens. It falls back to a character estimate when the
// BPE ranks cannot be loaded (for example offline on first run).
type Counter struct {
	once     sync.Once
	encoding string
	enc      *tiktoken.Tiktoken
}

// New creates a counter for the named encoding. Empty means DefaultEncoding.
// The encoding is loaded lazily on first use.
func New(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{encoding: encoding}
}

func (c *Counter) load() {
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		logger.Warn("tokenizer: %s unavailable, estimating from characters: %v", c.encoding, err)
		return
	}
	c.enc = enc
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate approximates the token count as one token per four characters.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}
