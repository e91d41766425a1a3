package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// entityStore implements driven.EntityStore.
type entityStore struct {
	store *Store
}

var _ driven.EntityStore = (*entityStore)(nil)

const entityColumns = `e.id, e.org_id, e.name, e.normalized_name, e.type, e.confidence,
	e.mention_count, e.document_count, e.created_at, e.updated_at`

// FindEntity looks up an entity by exact normalised name and type.
// When several match, the earliest created wins.
func (s *entityStore) FindEntity(
	ctx context.Context,
	orgID, normalizedName string,
	entityType domain.EntityType,
) (*domain.Entity, error) {
	return s.findOne(ctx, `
		SELECT `+entityColumns+` FROM entities e
		WHERE e.org_id = ? AND e.type = ? AND e.normalized_name = ?
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT 1
	`, orgID, string(entityType), normalizedName)
}

// FindEntityByAlias looks up an entity whose aliases contain normalizedName.
func (s *entityStore) FindEntityByAlias(
	ctx context.Context,
	orgID, normalizedName string,
	entityType domain.EntityType,
) (*domain.Entity, error) {
	return s.findOne(ctx, `
		SELECT `+entityColumns+` FROM entities e
		JOIN entity_aliases a ON a.entity_id = e.id
		WHERE a.org_id = ? AND a.type = ? AND a.alias = ?
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT 1
	`, orgID, string(entityType), normalizedName)
}

func (s *entityStore) findOne(ctx context.Context, query string, args ...any) (*domain.Entity, error) {
	entity, err := scanEntity(s.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if entity.Aliases, err = s.loadAliases(ctx, entity.ID); err != nil {
		return nil, err
	}
	return entity, nil
}

// CreateEntity stores a new entity with its aliases.
func (s *entityStore) CreateEntity(ctx context.Context, entity *domain.Entity) error {
	if entity == nil || entity.ID == "" {
		return domain.ErrInvalidInput
	}
	now := time.Now()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = entity.CreatedAt
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, org_id, name, normalized_name, type, confidence,
				mention_count, document_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, entity.ID, entity.OrgID, entity.Name, entity.NormalizedName, string(entity.Type),
			entity.Confidence, entity.MentionCount, entity.DocumentCount,
			formatTime(entity.CreatedAt), formatTime(entity.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("inserting entity: %w", err)
		}
		return writeAliases(ctx, tx, entity)
	})
}

// UpdateEntity overwrites an entity's counters, confidence and aliases.
func (s *entityStore) UpdateEntity(ctx context.Context, entity *domain.Entity) error {
	if entity == nil {
		return domain.ErrInvalidInput
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entities SET name = ?, confidence = ?, mention_count = ?,
				document_count = ?, updated_at = ?
			WHERE id = ?
		`, entity.Name, entity.Confidence, entity.MentionCount, entity.DocumentCount,
			formatTime(entity.UpdatedAt), entity.ID)
		if err != nil {
			return fmt.Errorf("updating entity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entity_aliases WHERE entity_id = ?", entity.ID); err != nil {
			return fmt.Errorf("clearing aliases: %w", err)
		}
		return writeAliases(ctx, tx, entity)
	})
}

func writeAliases(ctx context.Context, tx *sql.Tx, entity *domain.Entity) error {
	for _, alias := range entity.Aliases {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO entity_aliases (entity_id, org_id, type, alias)
			VALUES (?, ?, ?, ?)
		`, entity.ID, entity.OrgID, string(entity.Type), alias)
		if err != nil {
			return fmt.Errorf("inserting alias: %w", err)
		}
	}
	return nil
}

func (s *entityStore) loadAliases(ctx context.Context, entityID string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT alias FROM entity_aliases WHERE entity_id = ? ORDER BY rowid", entityID)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// CreateMention appends a mention.
func (s *entityStore) CreateMention(ctx context.Context, mention *domain.EntityMention) error {
	if mention == nil || mention.ID == "" {
		return domain.ErrInvalidInput
	}
	if mention.CreatedAt.IsZero() {
		mention.CreatedAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO entity_mentions (id, entity_id, chunk_id, document_id, org_id, mention_text,
			start_offset, end_offset, context_before, context_after, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, mention.ID, mention.EntityID, mention.ChunkID, mention.DocumentID, mention.OrgID,
		mention.MentionText, mention.StartOffset, mention.EndOffset,
		mention.ContextBefore, mention.ContextAfter, mention.Confidence, formatTime(mention.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("inserting mention: %w", err)
	}
	return nil
}

// CountMentions returns the number of mentions recorded for an entity.
func (s *entityStore) CountMentions(ctx context.Context, entityID string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entity_mentions WHERE entity_id = ?", entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting mentions: %w", err)
	}
	return n, nil
}

const relationshipColumns = `id, org_id, source_entity_id, target_entity_id, type, weight,
	confidence, description, evidence_chunk_ids, created_at, updated_at`

// FindRelationship looks up an edge by its identity key.
func (s *entityStore) FindRelationship(
	ctx context.Context,
	orgID, sourceID, targetID string,
	relType domain.RelationshipType,
) (*domain.Relationship, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE org_id = ? AND source_entity_id = ? AND target_entity_id = ? AND type = ?
	`, orgID, sourceID, targetID, string(relType))

	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rel, err
}

// CreateRelationship stores a new edge.
func (s *entityStore) CreateRelationship(ctx context.Context, rel *domain.Relationship) error {
	if rel == nil || rel.ID == "" {
		return domain.ErrInvalidInput
	}
	now := time.Now()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	if rel.UpdatedAt.IsZero() {
		rel.UpdatedAt = rel.CreatedAt
	}

	evidence, err := marshalEvidence(rel.EvidenceChunkIDs)
	if err != nil {
		return err
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rel.ID, rel.OrgID, rel.SourceEntityID, rel.TargetEntityID, string(rel.Type),
		rel.Weight, rel.Confidence, rel.Description, evidence,
		formatTime(rel.CreatedAt), formatTime(rel.UpdatedAt))
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrNotFound
	default:
		return fmt.Errorf("inserting relationship: %w", err)
	}
}

// UpdateRelationship overwrites an edge's weight, confidence and evidence.
func (s *entityStore) UpdateRelationship(ctx context.Context, rel *domain.Relationship) error {
	if rel == nil {
		return domain.ErrInvalidInput
	}
	evidence, err := marshalEvidence(rel.EvidenceChunkIDs)
	if err != nil {
		return err
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE relationships SET weight = ?, confidence = ?, description = ?,
			evidence_chunk_ids = ?, updated_at = ?
		WHERE id = ?
	`, rel.Weight, rel.Confidence, rel.Description, evidence, formatTime(rel.UpdatedAt), rel.ID)
	if err != nil {
		return fmt.Errorf("updating relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListEntities returns an organisation's entities, most mentioned first.
func (s *entityStore) ListEntities(ctx context.Context, orgID string, limit int) ([]domain.Entity, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities e
		WHERE e.org_id = ?
		ORDER BY e.mention_count DESC, e.normalized_name ASC
		LIMIT ?
	`, orgID, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}

	var entities []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entities = append(entities, *e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	for i := range entities {
		if entities[i].Aliases, err = s.loadAliases(ctx, entities[i].ID); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// ListRelationships returns an organisation's edges, heaviest first.
func (s *entityStore) ListRelationships(ctx context.Context, orgID string, limit int) ([]domain.Relationship, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE org_id = ?
		ORDER BY weight DESC, id ASC
		LIMIT ?
	`, orgID, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}
	return rels, nil
}

func (s *entityStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return tx.Commit()
}

func scanEntity(row rowScanner) (*domain.Entity, error) {
	var e domain.Entity
	var entityType, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.OrgID, &e.Name, &e.NormalizedName, &entityType, &e.Confidence,
		&e.MentionCount, &e.DocumentCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	e.Type = domain.EntityType(entityType)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func scanRelationship(row rowScanner) (*domain.Relationship, error) {
	var r domain.Relationship
	var relType, evidence, createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.OrgID, &r.SourceEntityID, &r.TargetEntityID, &relType, &r.Weight,
		&r.Confidence, &r.Description, &evidence, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning relationship: %w", err)
	}
	r.Type = domain.RelationshipType(relType)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &r.EvidenceChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling evidence: %w", err)
		}
	}
	return &r, nil
}

func marshalEvidence(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshalling evidence: %w", err)
	}
	return string(data), nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
