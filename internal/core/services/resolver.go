package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// Ensure EntityResolver implements the interfaces.
var (
	_ driving.ExtractionService = (*EntityResolver)(nil)
	_ driving.GraphService      = (*EntityResolver)(nil)
)

// EntityResolver merges extracted entities into the organisation's
// knowledge graph and maintains weighted relationships between them.
type EntityResolver struct {
	entities  driven.EntityStore
	docs      driven.DocumentStore
	chunks    driven.ChunkStore
	extractor *EntityExtractor
	mirror    driven.GraphMirror
	now       func() time.Time
}

// ResolverOption configures an EntityResolver.
type ResolverOption func(*EntityResolver)

// WithGraphMirror copies every graph write to mirror.
func WithGraphMirror(mirror driven.GraphMirror) ResolverOption {
	return func(r *EntityResolver) {
		r.mirror = mirror
	}
}

// NewEntityResolver creates a resolver.
func NewEntityResolver(
	entities driven.EntityStore,
	docs driven.DocumentStore,
	chunks driven.ChunkStore,
	extractor *EntityExtractor,
	opts ...ResolverOption,
) *EntityResolver {
	r := &EntityResolver{
		entities:  entities,
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the id of the entity matching e by normalised name or
// alias within the organisation and type. A match has its mention count
// incremented and its confidence averaged with e's; otherwise a new
// entity is created. Either way the aliases and mention text of e that
// differ from the entity's name are recorded as aliases.
func (r *EntityResolver) Resolve(ctx context.Context, orgID string, e domain.ExtractedEntity) (string, error) {
	return r.resolve(ctx, orgID, e, nil)
}

// resolve is Resolve with document tracking: firstInDocument reports, and
// records, whether this is the entity's first sighting in the current
// document.
func (r *EntityResolver) resolve(
	ctx context.Context,
	orgID string,
	e domain.ExtractedEntity,
	firstInDocument func(entityID string) bool,
) (string, error) {
	normalized := domain.NormalizeName(e.Name)
	if normalized == "" {
		return "", fmt.Errorf("resolve entity: empty name: %w", domain.ErrInvalidInput)
	}
	confidence := domain.ClampConfidence(e.Confidence)

	existing, err := r.entities.FindEntity(ctx, orgID, normalized, e.Type)
	if err != nil {
		return "", fmt.Errorf("find entity: %w", err)
	}
	if existing == nil {
		existing, err = r.entities.FindEntityByAlias(ctx, orgID, normalized, e.Type)
		if err != nil {
			return "", fmt.Errorf("find entity by alias: %w", err)
		}
	}

	now := r.now()
	if existing != nil {
		existing.MentionCount++
		existing.Confidence = (existing.Confidence + confidence) / 2
		existing.AddAliases(e.AliasKeys())
		if firstInDocument != nil && firstInDocument(existing.ID) {
			existing.DocumentCount++
		}
		existing.UpdatedAt = now
		if err := r.entities.UpdateEntity(ctx, existing); err != nil {
			return "", fmt.Errorf("update entity: %w", err)
		}
		r.mirrorEntity(ctx, existing)
		return existing.ID, nil
	}

	entity := &domain.Entity{
		ID:             uuid.NewString(),
		OrgID:          orgID,
		Name:           e.Name,
		NormalizedName: normalized,
		Type:           e.Type,
		Confidence:     confidence,
		MentionCount:   1,
		DocumentCount:  1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entity.AddAliases(e.AliasKeys())
	if firstInDocument != nil {
		firstInDocument(entity.ID)
	}
	if err := r.entities.CreateEntity(ctx, entity); err != nil {
		return "", fmt.Errorf("create entity: %w", err)
	}
	r.mirrorEntity(ctx, entity)
	return entity.ID, nil
}

// RecordMention appends a mention of entityID in chunk. Mentions are
// never deduplicated.
func (r *EntityResolver) RecordMention(ctx context.Context, entityID string, chunk domain.Chunk, e domain.ExtractedEntity) error {
	before, after := mentionContext(chunk.Content, e.StartOffset, e.EndOffset)
	mention := &domain.EntityMention{
		ID:            uuid.NewString(),
		EntityID:      entityID,
		ChunkID:       chunk.ID,
		DocumentID:    chunk.DocumentID,
		OrgID:         chunk.OrgID,
		MentionText:   e.MentionText,
		StartOffset:   e.StartOffset,
		EndOffset:     e.EndOffset,
		ContextBefore: before,
		ContextAfter:  after,
		Confidence:    domain.ClampConfidence(e.Confidence),
		CreatedAt:     r.now(),
	}
	if mention.MentionText == "" {
		mention.MentionText = e.Name
	}
	if err := r.entities.CreateMention(ctx, mention); err != nil {
		return fmt.Errorf("create mention: %w", err)
	}
	return nil
}

// CreateRelationship upserts the edge described by rel. Endpoints are
// looked up by exact normalised name and type, without aliases; when
// either is missing the edge is skipped and nil is returned.
//
// A repeat observation adds RelationshipWeightIncrement to the weight,
// overwrites the confidence with the latest value and appends chunkID to
// the evidence.
func (r *EntityResolver) CreateRelationship(
	ctx context.Context,
	orgID, chunkID string,
	rel domain.ExtractedRelationship,
) (*domain.Relationship, error) {
	source, err := r.entities.FindEntity(ctx, orgID, domain.NormalizeName(rel.SourceName), rel.SourceType)
	if err != nil {
		return nil, fmt.Errorf("find source entity: %w", err)
	}
	target, err := r.entities.FindEntity(ctx, orgID, domain.NormalizeName(rel.TargetName), rel.TargetType)
	if err != nil {
		return nil, fmt.Errorf("find target entity: %w", err)
	}
	if source == nil || target == nil {
		logger.Debug("skipping relationship %s -[%s]-> %s: unresolved endpoint", rel.SourceName, rel.Type, rel.TargetName)
		return nil, nil
	}

	relType := rel.Type
	if !relType.IsValid() {
		relType = domain.RelationshipRelatesTo
	}
	confidence := domain.ClampConfidence(rel.Confidence)
	now := r.now()

	existing, err := r.entities.FindRelationship(ctx, orgID, source.ID, target.ID, relType)
	if err != nil {
		return nil, fmt.Errorf("find relationship: %w", err)
	}

	if existing != nil {
		existing.Weight += domain.RelationshipWeightIncrement
		existing.Confidence = confidence
		existing.EvidenceChunkIDs = append(existing.EvidenceChunkIDs, chunkID)
		if rel.Description != "" {
			existing.Description = rel.Description
		}
		existing.UpdatedAt = now
		if err := r.entities.UpdateRelationship(ctx, existing); err != nil {
			return nil, fmt.Errorf("update relationship: %w", err)
		}
		r.mirrorRelationship(ctx, existing)
		return existing, nil
	}

	created := &domain.Relationship{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		SourceEntityID:   source.ID,
		TargetEntityID:   target.ID,
		Type:             relType,
		Weight:           domain.InitialRelationshipWeight,
		Confidence:       confidence,
		Description:      rel.Description,
		EvidenceChunkIDs: []string{chunkID},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.entities.CreateRelationship(ctx, created); err != nil {
		return nil, fmt.Errorf("create relationship: %w", err)
	}
	r.mirrorRelationship(ctx, created)
	return created, nil
}

// ExtractEntitiesFromChunks runs extraction over chunks and records the
// results. A failing chunk is logged and counted, never fatal.
func (r *EntityResolver) ExtractEntitiesFromChunks(
	ctx context.Context,
	orgID string,
	chunks []domain.Chunk,
) domain.BatchExtractionResult {
	var batch domain.BatchExtractionResult
	seen := make(map[string]bool)

	for i := range chunks {
		entities, rels, err := r.extractChunk(ctx, orgID, chunks[i], seen)
		if err != nil {
			batch.ChunksFailed++
			logger.WithFields(logger.Fields{
				"org_id":      orgID,
				"document_id": chunks[i].DocumentID,
				"chunk_id":    chunks[i].ID,
			}).WithError(err).Warn("entity extraction failed for chunk")
			continue
		}
		batch.ChunksProcessed++
		batch.EntitiesExtracted += entities
		batch.RelationshipsExtracted += rels
	}

	logger.WithFields(logger.Fields{
		"org_id":        orgID,
		"chunks":        batch.ChunksProcessed,
		"failed":        batch.ChunksFailed,
		"entities":      batch.EntitiesExtracted,
		"relationships": batch.RelationshipsExtracted,
	}).Info("entity extraction complete")
	return batch
}

func (r *EntityResolver) extractChunk(
	ctx context.Context,
	orgID string,
	chunk domain.Chunk,
	seen map[string]bool,
) (entities, rels int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extraction panicked: %v", p)
		}
	}()

	firstInDocument := func(entityID string) bool {
		key := entityID + "|" + chunk.DocumentID
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	}

	if chunk.OrgID == "" {
		chunk.OrgID = orgID
	}
	result := r.extractor.Extract(ctx, chunk.Content)

	for _, e := range result.Entities {
		id, err := r.resolve(ctx, orgID, e, firstInDocument)
		if err != nil {
			return 0, 0, err
		}
		if err := r.RecordMention(ctx, id, chunk, e); err != nil {
			return 0, 0, err
		}
		entities++
	}

	for _, rel := range result.Relationships {
		created, err := r.CreateRelationship(ctx, orgID, chunk.ID, rel)
		if err != nil {
			return 0, 0, err
		}
		if created != nil {
			rels++
		}
	}
	return entities, rels, nil
}

// ExtractDocument extracts the knowledge graph from a document's stored chunks.
func (r *EntityResolver) ExtractDocument(ctx context.Context, documentID string) (domain.BatchExtractionResult, error) {
	doc, err := r.docs.GetDocument(ctx, documentID)
	if err != nil {
		return domain.BatchExtractionResult{}, fmt.Errorf("get document: %w", err)
	}
	chunks, err := r.chunks.GetChunks(ctx, documentID)
	if err != nil {
		return domain.BatchExtractionResult{}, fmt.Errorf("get chunks: %w", err)
	}

	logger.WithFields(logger.Fields{
		"document_id": documentID,
		"org_id":      doc.OrgID,
		"chunks":      len(chunks),
		"provider":    r.extractor.ProviderName(),
	}).Debug("extracting entities")

	return r.ExtractEntitiesFromChunks(ctx, doc.OrgID, chunks), nil
}

// ListEntities returns an organisation's entities, most mentioned first.
func (r *EntityResolver) ListEntities(ctx context.Context, orgID string, limit int) ([]domain.Entity, error) {
	return r.entities.ListEntities(ctx, orgID, limit)
}

// ListRelationships returns an organisation's relationships, heaviest first.
func (r *EntityResolver) ListRelationships(ctx context.Context, orgID string, limit int) ([]domain.Relationship, error) {
	return r.entities.ListRelationships(ctx, orgID, limit)
}

func (r *EntityResolver) mirrorEntity(ctx context.Context, e *domain.Entity) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.MirrorEntity(ctx, e); err != nil {
		logger.WithField("entity_id", e.ID).WithError(err).Warn("graph mirror write failed")
	}
}

func (r *EntityResolver) mirrorRelationship(ctx context.Context, rel *domain.Relationship) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.MirrorRelationship(ctx, rel); err != nil {
		logger.WithField("relationship_id", rel.ID).WithError(err).Warn("graph mirror write failed")
	}
}

// mentionContext returns up to MentionContextRunes runes either side of
// the [start, end) span of text.
func mentionContext(text string, start, end int) (before, after string) {
	runes := []rune(text)
	start = max(0, min(start, len(runes)))
	end = max(start, min(end, len(runes)))

	from := max(0, start-domain.MentionContextRunes)
	to := min(len(runes), end+domain.MentionContextRunes)
	return string(runes[from:start]), string(runes[end:to])
}
