package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore and driven.ChunkStore.
type documentStore struct {
	store *Store
}

var (
	_ driven.DocumentStore = (*documentStore)(nil)
	_ driven.ChunkStore    = (*documentStore)(nil)
)

const documentColumns = `id, org_id, filename, file_type, storage_path, index_status, index_error,
	page_count, chunk_count, token_count, indexed_at, metadata, created_at, updated_at, deleted_at`

// CreateDocument stores a new document.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.IndexStatus == "" {
		doc.IndexStatus = domain.IndexStatusPending
	}

	metadata, err := marshalMap(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OrgID, doc.Filename, doc.FileType, doc.StoragePath,
		string(doc.IndexStatus), nullString(doc.IndexError),
		doc.PageCount, doc.ChunkCount, doc.TokenCount,
		nullableTimePtr(doc.IndexedAt), metadata,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt), nullableTimePtr(doc.DeletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// GetDocument retrieves a live document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND deleted_at IS NULL`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument overwrites the mutable fields of a live document.
func (s *documentStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	doc.UpdatedAt = time.Now()

	metadata, err := marshalMap(doc.Metadata)
	if err != nil {
		return err
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET
			filename = ?, file_type = ?, storage_path = ?, index_status = ?, index_error = ?,
			page_count = ?, chunk_count = ?, token_count = ?, indexed_at = ?, metadata = ?,
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, doc.Filename, doc.FileType, doc.StoragePath, string(doc.IndexStatus), nullString(doc.IndexError),
		doc.PageCount, doc.ChunkCount, doc.TokenCount, nullableTimePtr(doc.IndexedAt), metadata,
		formatTime(doc.UpdatedAt), doc.ID)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDocumentsByStatus returns live documents in status, oldest first.
func (s *documentStore) ListDocumentsByStatus(
	ctx context.Context,
	status domain.IndexStatus,
	limit int,
) ([]domain.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE index_status = ? AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, string(status), limitClause(limit))
}

// ListDocuments returns an organisation's live documents, newest first.
func (s *documentStore) ListDocuments(ctx context.Context, orgID string, limit int) ([]domain.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE org_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, orgID, limitClause(limit))
}

// FindDocumentsByFilename returns live documents whose filename contains
// term case-insensitively, newest first.
func (s *documentStore) FindDocumentsByFilename(
	ctx context.Context,
	orgID, term string,
	limit int,
) ([]domain.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE org_id = ? AND deleted_at IS NULL AND instr(lower(filename), ?) > 0
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, orgID, strings.ToLower(term), limitClause(limit))
}

// SoftDeleteDocument sets the tombstone. Deleting twice is a no-op.
func (s *documentStore) SoftDeleteDocument(ctx context.Context, id string) error {
	var exists int
	err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx,
		"UPDATE documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func (s *documentStore) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ReplaceChunks deletes every chunk of the document and inserts chunks in one transaction.
func (s *documentStore) ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, org_id, content, sequence, token_count,
			start_offset, end_offset, page_number, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		c.OrgID = orgID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}

		metadata, err := marshalMap(c.Metadata)
		if err != nil {
			return err
		}
		var page any
		if c.PageNumber != nil {
			page = *c.PageNumber
		}

		if _, err := stmt.ExecContext(ctx, c.ID, documentID, orgID, c.Content, c.Sequence, c.TokenCount,
			c.StartOffset, c.EndOffset, page, float32SliceToBytes(c.Embedding), metadata,
			formatTime(c.CreatedAt)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// GetChunks returns a document's chunks ordered by sequence.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, org_id, content, sequence, token_count,
			start_offset, end_offset, page_number, embedding, metadata, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY sequence ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ListChunksForSearch returns embedded chunks of live documents in statuses.
func (s *documentStore) ListChunksForSearch(
	ctx context.Context,
	orgID string,
	statuses []domain.IndexStatus,
) ([]domain.ScoredChunk, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, orgID)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.org_id, c.content, c.sequence, c.token_count,
			c.start_offset, c.end_offset, c.page_number, c.embedding, c.metadata, c.created_at,
			d.index_status
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.org_id = ? AND d.deleted_at IS NULL
			AND c.embedding IS NOT NULL AND length(c.embedding) > 0
			AND d.index_status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY c.document_id, c.sequence
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search chunks: %w", err)
	}
	defer rows.Close()

	var result []domain.ScoredChunk
	for rows.Next() {
		var status string
		c, err := scanChunk(rows, &status)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.ScoredChunk{Chunk: *c, DocumentStatus: domain.IndexStatus(status)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search chunks: %w", err)
	}
	return result, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, metadata, createdAt, updatedAt string
	var indexError, indexedAt, deletedAt sql.NullString

	err := row.Scan(&doc.ID, &doc.OrgID, &doc.Filename, &doc.FileType, &doc.StoragePath,
		&status, &indexError, &doc.PageCount, &doc.ChunkCount, &doc.TokenCount,
		&indexedAt, &metadata, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.IndexStatus = domain.IndexStatus(status)
	if indexError.Valid {
		doc.IndexError = indexError.String
	}
	doc.IndexedAt = timePtr(indexedAt)
	doc.DeletedAt = timePtr(deletedAt)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	if doc.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanChunk(row rowScanner, extra ...any) (*domain.Chunk, error) {
	var c domain.Chunk
	var page sql.NullInt64
	var embedding []byte
	var metadata, createdAt string

	dest := []any{&c.ID, &c.DocumentID, &c.OrgID, &c.Content, &c.Sequence, &c.TokenCount,
		&c.StartOffset, &c.EndOffset, &page, &embedding, &metadata, &createdAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if page.Valid {
		n := int(page.Int64)
		c.PageNumber = &n
	}
	c.Embedding = bytesToFloat32Slice(embedding)
	c.CreatedAt = parseTime(createdAt)

	var err error
	if c.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

// isUniqueViolation reports whether err is a SQLite constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
