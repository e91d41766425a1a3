// Package filesystem implements driven.FileStorage over a local directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

var _ driven.FileStorage = (*Store)(nil)

// Store keeps blobs as files under a root directory. Storage paths are
// slash-separated and relative to the root.
type Store struct {
	root string
}

// New creates a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem: %w: empty root", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filesystem: resolving root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("filesystem: creating root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Download returns the bytes stored at path.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filesystem: reading %s: %w", path, err)
	}
	return data, nil
}

// Upload writes data to path atomically, overwriting any existing file.
func (s *Store) Upload(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return fmt.Errorf("filesystem: creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("filesystem: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filesystem: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filesystem: closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("filesystem: renaming %s: %w", path, err)
	}
	return nil
}

// Delete removes the blob at path. Missing blobs are not an error.
func (s *Store) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filesystem: deleting %s: %w", path, err)
	}
	return nil
}

// resolve maps a storage path onto the filesystem, rejecting anything
// that would escape the root.
func (s *Store) resolve(path string) (string, error) {
	if path == "" || strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("filesystem: %w: invalid path %q", domain.ErrInvalidInput, path)
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("filesystem: %w: absolute path %q", domain.ErrInvalidInput, path)
	}

	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filesystem: %w: path %q escapes root", domain.ErrInvalidInput, path)
	}
	return full, nil
}
