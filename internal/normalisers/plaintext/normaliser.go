// Package plaintext extracts text from plain text and source files.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// FileTypes returns the file types this normaliser handles.
func (n *Normaliser) FileTypes() []string {
	return []string{
		"txt", "text", "log", "csv", "tsv", "json", "yaml", "yml", "toml", "xml",
		"go", "py", "rs", "java", "c", "h", "cpp", "rb", "sh", "sql", "js", "ts", "css",
	}
}

// Extract returns the text unchanged apart from a stripped byte order mark
// and normalised line endings. Pages are separated by form feeds.
func (n *Normaliser) Extract(ctx context.Context, data []byte, _ string) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return domain.ExtractedText{}, fmt.Errorf("plaintext: %w: content is not valid UTF-8", domain.ErrInvalidInput)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return domain.ExtractedText{Text: text, PageCount: domain.CountPages(text)}, nil
}
