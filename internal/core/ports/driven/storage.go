package driven

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// FileStorage downloads raw document bytes.
type FileStorage interface {
	// Download returns the bytes stored at path.
	// Returns domain.ErrNotFound if nothing is stored there.
	Download(ctx context.Context, path string) ([]byte, error)

	// Upload stores data at path, overwriting any existing object.
	Upload(ctx context.Context, path string, data []byte) error
}

// TextExtractor converts raw bytes into plain text.
type TextExtractor interface {
	// Extract returns the text and page count for data of the given file type.
	// Returns domain.ErrUnsupportedType for formats it cannot handle.
	Extract(ctx context.Context, data []byte, fileType string) (domain.ExtractedText, error)
}
