package driven

import (
	"context"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// EntityStore persists the knowledge graph.
type EntityStore interface {
	// FindEntity looks up an entity by exact normalised name and type.
	// Returns nil and no error if none exists.
	FindEntity(ctx context.Context, orgID, normalizedName string, entityType domain.EntityType) (*domain.Entity, error)

	// FindEntityByAlias looks up an entity whose aliases contain normalizedName.
	// Returns nil and no error if none exists.
	FindEntityByAlias(ctx context.Context, orgID, normalizedName string, entityType domain.EntityType) (*domain.Entity, error)

	// CreateEntity stores a new entity.
	CreateEntity(ctx context.Context, entity *domain.Entity) error

	// UpdateEntity overwrites an entity's counters, confidence and aliases.
	UpdateEntity(ctx context.Context, entity *domain.Entity) error

	// CreateMention appends a mention. Mentions are never updated.
	CreateMention(ctx context.Context, mention *domain.EntityMention) error

	// FindRelationship looks up an edge by its identity key.
	// Returns nil and no error if none exists.
	FindRelationship(
		ctx context.Context,
		orgID, sourceID, targetID string,
		relType domain.RelationshipType,
	) (*domain.Relationship, error)

	// CreateRelationship stores a new edge.
	CreateRelationship(ctx context.Context, rel *domain.Relationship) error

	// UpdateRelationship overwrites an edge's weight, confidence and evidence.
	UpdateRelationship(ctx context.Context, rel *domain.Relationship) error

	// ListEntities returns an organisation's entities, most mentioned first.
	ListEntities(ctx context.Context, orgID string, limit int) ([]domain.Entity, error)

	// ListRelationships returns an organisation's edges, heaviest first.
	ListRelationships(ctx context.Context, orgID string, limit int) ([]domain.Relationship, error)

	// CountMentions returns the number of mentions recorded for an entity.
	CountMentions(ctx context.Context, entityID string) (int, error)
}

// GraphMirror receives a copy of every knowledge graph write.
// Mirroring is best-effort; callers log and ignore errors.
type GraphMirror interface {
	MirrorEntity(ctx context.Context, entity *domain.Entity) error
	MirrorRelationship(ctx context.Context, rel *domain.Relationship) error
	Close() error
}
