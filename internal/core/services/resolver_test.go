package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docgraph/internal/core/domain"
)

type resolverFixture struct {
	entities *memory.EntityStore
	docs     *memory.DocumentStore
	mirror   *mockGraphMirror
	resolver *EntityResolver
}

func newResolverFixture(llm *mockLLM) *resolverFixture {
	f := &resolverFixture{
		entities: memory.NewEntityStore(),
		docs:     memory.NewDocumentStore(),
		mirror:   &mockGraphMirror{},
	}
	var extractor *EntityExtractor
	if llm != nil {
		extractor = NewEntityExtractor(llm, nil, domain.ExtractionSettings{})
	} else {
		extractor = NewEntityExtractor(nil, nil, domain.ExtractionSettings{})
	}
	f.resolver = NewEntityResolver(f.entities, f.docs, f.docs, extractor, WithGraphMirror(f.mirror))
	return f
}

func person(name string, confidence float64) domain.ExtractedEntity {
	return domain.ExtractedEntity{
		Name:        name,
		Type:        domain.EntityTypePerson,
		MentionText: name,
		Confidence:  confidence,
	}
}

func TestResolve_CreatesThenMerges(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	id1, err := f.resolver.Resolve(ctx, "org-1", person("Alice Johnson", 0.6))
	require.NoError(t, err)
	id2, err := f.resolver.Resolve(ctx, "org-1", person("  alice   JOHNSON ", 0.9))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	e, err := f.entities.FindEntity(ctx, "org-1", "alice johnson", domain.EntityTypePerson)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Alice Johnson", e.Name, "display name comes from the first sighting")
	assert.Equal(t, 2, e.MentionCount)
	assert.InDelta(t, 0.75, e.Confidence, 1e-9)
	assert.Len(t, f.mirror.entities, 2)
}

// Two sightings always add two mentions and average to the same mean.
func TestResolve_OrderIndependent(t *testing.T) {
	for _, order := range [][]float64{{0.2, 0.8}, {0.8, 0.2}} {
		f := newResolverFixture(nil)
		ctx := context.Background()
		for _, c := range order {
			_, err := f.resolver.Resolve(ctx, "org-1", person("Bob", c))
			require.NoError(t, err)
		}

		e, err := f.entities.FindEntity(ctx, "org-1", "bob", domain.EntityTypePerson)
		require.NoError(t, err)
		assert.Equal(t, 2, e.MentionCount)
		assert.InDelta(t, 0.5, e.Confidence, 1e-9)
	}
}

func TestResolve_SeparatesTypeAndOrg(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	a, _ := f.resolver.Resolve(ctx, "org-1", person("Mercury", 0.5))
	b, _ := f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{Name: "Mercury", Type: domain.EntityTypeProduct, Confidence: 0.5})
	c, _ := f.resolver.Resolve(ctx, "org-2", person("Mercury", 0.5))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestResolve_MatchesAlias(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	require.NoError(t, f.entities.CreateEntity(ctx, &domain.Entity{
		ID:             "ent-ibm",
		OrgID:          "org-1",
		Name:           "International Business Machines",
		NormalizedName: "international business machines",
		Type:           domain.EntityTypeOrganization,
		Aliases:        []string{"ibm"},
		Confidence:     0.8,
		MentionCount:   1,
	}))

	id, err := f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{
		Name: "IBM", Type: domain.EntityTypeOrganization, Confidence: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "ent-ibm", id)
}

func TestResolve_RecordsAliases(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	id, err := f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{
		Name:        "International Business Machines",
		Type:        domain.EntityTypeOrganization,
		MentionText: "International Business Machines",
		Aliases:     []string{"IBM"},
		Confidence:  0.8,
	})
	require.NoError(t, err)

	// A later sighting under a new surface form adds it as an alias.
	again, err := f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{
		Name:        "International Business Machines",
		Type:        domain.EntityTypeOrganization,
		MentionText: "Big Blue",
		Confidence:  0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	for _, name := range []string{"IBM", "big blue"} {
		got, err := f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{
			Name: name, Type: domain.EntityTypeOrganization, Confidence: 0.5,
		})
		require.NoError(t, err)
		assert.Equal(t, id, got, "%s should resolve through its alias", name)
	}

	e, err := f.entities.FindEntity(ctx, "org-1", "international business machines", domain.EntityTypeOrganization)
	require.NoError(t, err)
	assert.Equal(t, []string{"ibm", "big blue"}, e.Aliases)
	assert.Equal(t, 4, e.MentionCount)
}

func TestResolve_ClampsConfidence(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "org-1", person("Carol", 4.2))
	require.NoError(t, err)

	e, _ := f.entities.FindEntity(ctx, "org-1", "carol", domain.EntityTypePerson)
	assert.InDelta(t, 1.0, e.Confidence, 1e-9)
}

func TestResolve_EmptyName(t *testing.T) {
	f := newResolverFixture(nil)
	_, err := f.resolver.Resolve(context.Background(), "org-1", person("   ", 0.5))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordMention_NeverDeduplicates(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	id, err := f.resolver.Resolve(ctx, "org-1", person("Alice", 0.7))
	require.NoError(t, err)

	chunk := domain.Chunk{ID: "chunk-1", DocumentID: "doc-1", OrgID: "org-1", Content: "Yesterday Alice presented."}
	e := person("Alice", 0.7)
	e.StartOffset, e.EndOffset = 10, 15

	require.NoError(t, f.resolver.RecordMention(ctx, id, chunk, e))
	require.NoError(t, f.resolver.RecordMention(ctx, id, chunk, e))

	mentions := f.entities.Mentions()
	require.Len(t, mentions, 2)
	assert.Equal(t, "Yesterday ", mentions[0].ContextBefore)
	assert.Equal(t, " presented.", mentions[0].ContextAfter)
	assert.Equal(t, "chunk-1", mentions[0].ChunkID)
	assert.Equal(t, "doc-1", mentions[0].DocumentID)
}

func TestMentionContext(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'a'
	}
	text := string(long)

	before, after := mentionContext(text, 100, 105)
	assert.Len(t, before, domain.MentionContextRunes)
	assert.Len(t, after, domain.MentionContextRunes)

	before, after = mentionContext("short", 0, 5)
	assert.Empty(t, before)
	assert.Empty(t, after)

	before, after = mentionContext("out of range", 40, 50)
	assert.Equal(t, "out of range", before)
	assert.Empty(t, after)
}

func TestCreateRelationship_Upsert(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "org-1", person("Alice", 0.8))
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, "org-1", domain.ExtractedEntity{Name: "Acme", Type: domain.EntityTypeOrganization, Confidence: 0.8})
	require.NoError(t, err)

	rel := domain.ExtractedRelationship{
		SourceName: "Alice", SourceType: domain.EntityTypePerson,
		TargetName: "Acme", TargetType: domain.EntityTypeOrganization,
		Type: domain.RelationshipWorksFor, Confidence: 0.9,
	}

	first, err := f.resolver.CreateRelationship(ctx, "org-1", "chunk-1", rel)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.InDelta(t, 0.5, first.Weight, 1e-9)

	rel.Confidence = 0.3
	second, err := f.resolver.CreateRelationship(ctx, "org-1", "chunk-2", rel)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, 0.6, second.Weight, 1e-9)
	assert.InDelta(t, 0.3, second.Confidence, 1e-9, "confidence is overwritten, not averaged")
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, second.EvidenceChunkIDs)

	stored, err := f.entities.ListRelationships(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, stored[0].EvidenceChunkIDs, 2)
	assert.Len(t, f.mirror.relationships, 2)
}

func TestCreateRelationship_WeightUnbounded(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "org-1", person("Alice", 0.8))
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, "org-1", person("Bob", 0.8))
	require.NoError(t, err)

	rel := domain.ExtractedRelationship{
		SourceName: "Alice", SourceType: domain.EntityTypePerson,
		TargetName: "Bob", TargetType: domain.EntityTypePerson,
		Type: domain.RelationshipCollaborates, Confidence: 0.7,
	}

	var last *domain.Relationship
	for i := 0; i < 8; i++ {
		last, err = f.resolver.CreateRelationship(ctx, "org-1", "chunk-1", rel)
		require.NoError(t, err)
	}
	require.NotNil(t, last)
	assert.InDelta(t, 1.2, last.Weight, 1e-9)
}

func TestCreateRelationship_UnresolvedEndpointSkipped(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "org-1", person("Alice", 0.8))
	require.NoError(t, err)

	rel, err := f.resolver.CreateRelationship(ctx, "org-1", "chunk-1", domain.ExtractedRelationship{
		SourceName: "Alice", SourceType: domain.EntityTypePerson,
		TargetName: "Ghost Corp", TargetType: domain.EntityTypeOrganization,
		Type: domain.RelationshipWorksFor, Confidence: 0.9,
	})

	require.NoError(t, err)
	assert.Nil(t, rel)
	stored, _ := f.entities.ListRelationships(ctx, "org-1", 10)
	assert.Empty(t, stored)
}

func TestCreateRelationship_NoAliasMatching(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	require.NoError(t, f.entities.CreateEntity(ctx, &domain.Entity{
		ID: "ent-1", OrgID: "org-1", Name: "Robert", NormalizedName: "robert",
		Type: domain.EntityTypePerson, Aliases: []string{"bob"}, MentionCount: 1,
	}))
	require.NoError(t, f.entities.CreateEntity(ctx, &domain.Entity{
		ID: "ent-2", OrgID: "org-1", Name: "Acme", NormalizedName: "acme",
		Type: domain.EntityTypeOrganization, MentionCount: 1,
	}))

	rel, err := f.resolver.CreateRelationship(ctx, "org-1", "chunk-1", domain.ExtractedRelationship{
		SourceName: "Bob", SourceType: domain.EntityTypePerson,
		TargetName: "Acme", TargetType: domain.EntityTypeOrganization,
		Type: domain.RelationshipWorksFor,
	})
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestExtractEntitiesFromChunks(t *testing.T) {
	llm := &mockLLM{response: `{
		"entities": [
			{"name": "Alice", "type": "PERSON", "confidence": 0.9},
			{"name": "Acme", "type": "ORGANIZATION", "confidence": 0.8}
		],
		"relationships": [
			{"source_name": "Alice", "source_type": "PERSON", "target_name": "Acme",
			 "target_type": "ORGANIZATION", "type": "WORKS_FOR", "confidence": 0.7},
			{"source_name": "Alice", "source_type": "PERSON", "target_name": "Nobody",
			 "target_type": "PERSON", "type": "REPORTS_TO", "confidence": 0.7}
		]
	}`}
	f := newResolverFixture(llm)
	ctx := context.Background()

	chunks := []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", OrgID: "org-1", Content: "Alice works at Acme."},
		{ID: "c2", DocumentID: "doc-1", OrgID: "org-1", Content: "Alice leads Acme's research."},
	}

	result := f.resolver.ExtractEntitiesFromChunks(ctx, "org-1", chunks)

	assert.Equal(t, 2, result.ChunksProcessed)
	assert.Zero(t, result.ChunksFailed)
	assert.Equal(t, 4, result.EntitiesExtracted)
	assert.Equal(t, 2, result.RelationshipsExtracted, "the edge to an unknown entity is dropped")

	alice, err := f.entities.FindEntity(ctx, "org-1", "alice", domain.EntityTypePerson)
	require.NoError(t, err)
	assert.Equal(t, 2, alice.MentionCount)
	assert.Equal(t, 1, alice.DocumentCount, "two chunks of one document count once")

	rels, err := f.entities.ListRelationships(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.6, rels[0].Weight, 1e-9)
	assert.Equal(t, []string{"c1", "c2"}, rels[0].EvidenceChunkIDs)
	assert.Len(t, f.entities.Mentions(), 4)
}

func TestExtractEntitiesFromChunks_DocumentCount(t *testing.T) {
	f := newResolverFixture(&mockLLM{response: `{"entities": [{"name": "Alice", "type": "PERSON"}]}`})

	f.resolver.ExtractEntitiesFromChunks(context.Background(), "org-1", []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Content: "Alice"},
		{ID: "c2", DocumentID: "doc-2", Content: "Alice"},
	})

	alice, err := f.entities.FindEntity(context.Background(), "org-1", "alice", domain.EntityTypePerson)
	require.NoError(t, err)
	assert.Equal(t, 2, alice.DocumentCount)
}

// failingMentionStore rejects mentions for one chunk.
type failingMentionStore struct {
	*memory.EntityStore
	badChunk string
}

func (s *failingMentionStore) CreateMention(ctx context.Context, m *domain.EntityMention) error {
	if m.ChunkID == s.badChunk {
		return errors.New("constraint violation")
	}
	return s.EntityStore.CreateMention(ctx, m)
}

// A chunk whose writes fail is skipped without aborting the batch.
func TestExtractEntitiesFromChunks_SkipsFailedChunk(t *testing.T) {
	store := &failingMentionStore{EntityStore: memory.NewEntityStore(), badChunk: "c2"}
	docs := memory.NewDocumentStore()
	extractor := NewEntityExtractor(&mockLLM{response: `{"entities": [{"name": "Alice", "type": "PERSON"}]}`}, nil, domain.ExtractionSettings{})
	resolver := NewEntityResolver(store, docs, docs, extractor)

	result := resolver.ExtractEntitiesFromChunks(context.Background(), "org-1", []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Content: "Alice"},
		{ID: "c2", DocumentID: "doc-1", Content: "Alice"},
		{ID: "c3", DocumentID: "doc-1", Content: "Alice"},
	})

	assert.Equal(t, 2, result.ChunksProcessed)
	assert.Equal(t, 1, result.ChunksFailed)
	assert.Equal(t, 2, result.EntitiesExtracted)
}

func TestExtractEntitiesFromChunks_MirrorFailureIgnored(t *testing.T) {
	f := newResolverFixture(&mockLLM{response: `{"entities": [{"name": "Alice", "type": "PERSON"}]}`})
	f.mirror.err = errors.New("neo4j down")

	result := f.resolver.ExtractEntitiesFromChunks(context.Background(), "org-1", []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Content: "Alice"},
	})

	assert.Equal(t, 1, result.ChunksProcessed)
	assert.Zero(t, result.ChunksFailed)
}

func TestExtractDocument(t *testing.T) {
	f := newResolverFixture(nil)
	ctx := context.Background()

	require.NoError(t, f.docs.CreateDocument(ctx, &domain.Document{
		ID: "doc-1", OrgID: "org-1", IndexStatus: domain.IndexStatusIndexed,
	}))
	require.NoError(t, f.docs.ReplaceChunks(ctx, "doc-1", "org-1", []domain.Chunk{
		{ID: "c1", Sequence: 0, Content: "On 2024-01-02 we paid $500 to Globex Corp."},
	}))

	result, err := f.resolver.ExtractDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksProcessed)
	assert.Equal(t, 3, result.EntitiesExtracted)

	entities, err := f.resolver.ListEntities(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, entities, 3)

	_, err = f.resolver.ExtractDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
