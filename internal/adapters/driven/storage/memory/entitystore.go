package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure EntityStore implements the interface.
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore is an in-memory implementation of driven.EntityStore.
type EntityStore struct {
	mu            sync.RWMutex
	entities      map[string]domain.Entity
	mentions      []domain.EntityMention
	relationships map[string]domain.Relationship
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities:      make(map[string]domain.Entity),
		relationships: make(map[string]domain.Relationship),
	}
}

// FindEntity looks up by exact normalised name and type.
func (s *EntityStore) FindEntity(
	_ context.Context,
	orgID, normalizedName string,
	entityType domain.EntityType,
) (*domain.Entity, error) {
	return s.find(func(e *domain.Entity) bool {
		return e.OrgID == orgID && e.Type == entityType && e.NormalizedName == normalizedName
	}), nil
}

// FindEntityByAlias looks up an entity whose aliases contain normalizedName.
func (s *EntityStore) FindEntityByAlias(
	_ context.Context,
	orgID, normalizedName string,
	entityType domain.EntityType,
) (*domain.Entity, error) {
	return s.find(func(e *domain.Entity) bool {
		return e.OrgID == orgID && e.Type == entityType && e.HasAlias(normalizedName)
	}), nil
}

func (s *EntityStore) find(match func(*domain.Entity) bool) *domain.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Deterministic pick when several entities match.
	var found *domain.Entity
	for id := range s.entities {
		e := s.entities[id]
		if !match(&e) {
			continue
		}
		if found == nil || e.CreatedAt.Before(found.CreatedAt) ||
			(e.CreatedAt.Equal(found.CreatedAt) && e.ID < found.ID) {
			found = &e
		}
	}
	if found != nil {
		found.Aliases = append([]string(nil), found.Aliases...)
	}
	return found
}

// CreateEntity stores a new entity.
func (s *EntityStore) CreateEntity(_ context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.ID]; ok {
		return domain.ErrAlreadyExists
	}
	e := *entity
	e.Aliases = append([]string(nil), entity.Aliases...)
	s.entities[e.ID] = e
	return nil
}

// UpdateEntity overwrites an entity.
func (s *EntityStore) UpdateEntity(_ context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.ID]; !ok {
		return domain.ErrNotFound
	}
	e := *entity
	e.Aliases = append([]string(nil), entity.Aliases...)
	s.entities[e.ID] = e
	return nil
}

// CreateMention appends a mention.
func (s *EntityStore) CreateMention(_ context.Context, mention *domain.EntityMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[mention.EntityID]; !ok {
		return domain.ErrNotFound
	}
	s.mentions = append(s.mentions, *mention)
	return nil
}

// FindRelationship looks up an edge by identity key.
func (s *EntityStore) FindRelationship(
	_ context.Context,
	orgID, sourceID, targetID string,
	relType domain.RelationshipType,
) (*domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.relationships {
		r := s.relationships[id]
		if r.OrgID == orgID && r.SourceEntityID == sourceID && r.TargetEntityID == targetID && r.Type == relType {
			r.EvidenceChunkIDs = append([]string(nil), r.EvidenceChunkIDs...)
			return &r, nil
		}
	}
	return nil, nil
}

// CreateRelationship stores a new edge.
func (s *EntityStore) CreateRelationship(_ context.Context, rel *domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[rel.SourceEntityID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.entities[rel.TargetEntityID]; !ok {
		return domain.ErrNotFound
	}
	r := *rel
	r.EvidenceChunkIDs = append([]string(nil), rel.EvidenceChunkIDs...)
	s.relationships[r.ID] = r
	return nil
}

// UpdateRelationship overwrites an edge.
func (s *EntityStore) UpdateRelationship(_ context.Context, rel *domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relationships[rel.ID]; !ok {
		return domain.ErrNotFound
	}
	r := *rel
	r.EvidenceChunkIDs = append([]string(nil), rel.EvidenceChunkIDs...)
	s.relationships[r.ID] = r
	return nil
}

// ListEntities returns an organisation's entities, most mentioned first.
func (s *EntityStore) ListEntities(_ context.Context, orgID string, limit int) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Entity
	for id := range s.entities {
		if e := s.entities[id]; e.OrgID == orgID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].NormalizedName < out[j].NormalizedName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRelationships returns an organisation's edges, heaviest first.
func (s *EntityStore) ListRelationships(_ context.Context, orgID string, limit int) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Relationship
	for id := range s.relationships {
		if r := s.relationships[id]; r.OrgID == orgID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountMentions returns the number of mentions recorded for an entity.
func (s *EntityStore) CountMentions(_ context.Context, entityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.mentions {
		if s.mentions[i].EntityID == entityID {
			n++
		}
	}
	return n, nil
}

// Mentions returns a copy of every recorded mention, in insertion order.
func (s *EntityStore) Mentions() []domain.EntityMention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EntityMention(nil), s.mentions...)
}
