// Package neo4j mirrors the knowledge graph into a Neo4j database.
//
// The SQLite entity store stays the source of truth. Every resolved entity
// and relationship is upserted here by id so that the graph can be explored
// with Cypher. Writes are idempotent, so replaying a document is harmless.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

var _ driven.GraphMirror = (*Mirror)(nil)

const mergeEntityQuery = `
MERGE (e:Entity {id: $id})
SET e.org_id = $org_id,
    e.name = $name,
    e.normalized_name = $normalized_name,
    e.type = $type,
    e.aliases = $aliases,
    e.confidence = $confidence,
    e.mention_count = $mention_count,
    e.document_count = $document_count,
    e.updated_at = $updated_at
`

const mergeRelationshipQuery = `
MERGE (s:Entity {id: $source_id})
MERGE (t:Entity {id: $target_id})
MERGE (s)-[r:RELATES {id: $id}]->(t)
SET r.org_id = $org_id,
    r.type = $type,
    r.weight = $weight,
    r.confidence = $confidence,
    r.description = $description,
    r.evidence_chunk_ids = $evidence,
    r.updated_at = $updated_at
`

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

// Mirror writes entities and relationships to Neo4j.
type Mirror struct {
	driver neo4j.Driver
}

// New connects to Neo4j and verifies connectivity.
func New(cfg Config) (*Mirror, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: %w: empty uri", domain.ErrInvalidInput)
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriver(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j: creating driver: %w", err)
	}
	if err := driver.VerifyConnectivity(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("neo4j: connecting to %s: %w", cfg.URI, err)
	}
	return &Mirror{driver: driver}, nil
}

// MirrorEntity upserts an entity node.
func (m *Mirror) MirrorEntity(ctx context.Context, entity *domain.Entity) error {
	return m.write(ctx, mergeEntityQuery, entityParams(entity))
}

// MirrorRelationship upserts an edge and its endpoints.
func (m *Mirror) MirrorRelationship(ctx context.Context, rel *domain.Relationship) error {
	return m.write(ctx, mergeRelationshipQuery, relationshipParams(rel))
}

// Close releases the driver.
func (m *Mirror) Close() error {
	return m.driver.Close()
}

func (m *Mirror) write(ctx context.Context, query string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := m.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (any, error) {
		result, err := tx.Run(query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume()
	})
	if err != nil {
		return fmt.Errorf("neo4j: write: %w", err)
	}
	return nil
}

func entityParams(e *domain.Entity) map[string]any {
	aliases := make([]any, len(e.Aliases))
	for i, a := range e.Aliases {
		aliases[i] = a
	}
	return map[string]any{
		"id":              e.ID,
		"org_id":          e.OrgID,
		"name":            e.Name,
		"normalized_name": e.NormalizedName,
		"type":            string(e.Type),
		"aliases":         aliases,
		"confidence":      e.Confidence,
		"mention_count":   int64(e.MentionCount),
		"document_count":  int64(e.DocumentCount),
		"updated_at":      e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func relationshipParams(r *domain.Relationship) map[string]any {
	evidence := make([]any, len(r.EvidenceChunkIDs))
	for i, id := range r.EvidenceChunkIDs {
		evidence[i] = id
	}
	return map[string]any{
		"id":          r.ID,
		"org_id":      r.OrgID,
		"source_id":   r.SourceEntityID,
		"target_id":   r.TargetEntityID,
		"type":        string(r.Type),
		"weight":      r.Weight,
		"confidence":  r.Confidence,
		"description": r.Description,
		"evidence":    evidence,
		"updated_at":  r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
