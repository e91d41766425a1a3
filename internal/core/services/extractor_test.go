package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

const sampleChunk = "Alice Johnson joined Acme Corp on 2024-03-15 with a salary of $120,000. " +
	"The board thanked Acme Corp for the donation."

func findEntity(entities []domain.ExtractedEntity, name string, t domain.EntityType) *domain.ExtractedEntity {
	for i := range entities {
		if entities[i].Name == name && entities[i].Type == t {
			return &entities[i]
		}
	}
	return nil
}

func TestOfflineExtractor(t *testing.T) {
	result := NewOfflineExtractor().Extract(sampleChunk)

	assert.Equal(t, "offline", result.Provider)
	assert.Empty(t, result.Relationships)

	date := findEntity(result.Entities, "2024-03-15", domain.EntityTypeDate)
	require.NotNil(t, date)
	assert.InDelta(t, 0.9, date.Confidence, 1e-9)

	money := findEntity(result.Entities, "$120,000", domain.EntityTypeMoney)
	require.NotNil(t, money)
	assert.InDelta(t, 0.95, money.Confidence, 1e-9)

	person := findEntity(result.Entities, "Alice Johnson", domain.EntityTypeOther)
	require.NotNil(t, person)
	assert.InDelta(t, 0.6, person.Confidence, 1e-9)
	assert.Equal(t, 0, person.StartOffset)
	assert.Equal(t, 13, person.EndOffset)

	org := findEntity(result.Entities, "Acme Corp", domain.EntityTypeOrganization)
	require.NotNil(t, org)

	count := 0
	for _, e := range result.Entities {
		if e.Name == "Acme Corp" {
			count++
		}
		assert.NotEqual(t, "The", e.Name, "stopwords are not entities")
	}
	assert.Equal(t, 1, count, "duplicates collapse by name and type")
}

func TestOfflineExtractor_Patterns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		typ  domain.EntityType
	}{
		{"month date", "Signed on March 5, 2024 in London.", "March 5, 2024", domain.EntityTypeDate},
		{"slash date", "Due 12/31/2025.", "12/31/2025", domain.EntityTypeDate},
		{"currency code", "Raised USD 10 million last year.", "USD 10 million", domain.EntityTypeMoney},
		{"euro suffix", "The fund holds €5m in reserve.", "€5m", domain.EntityTypeMoney},
		{"titled person", "We spoke with Dr. Grace Hopper yesterday.", "Dr. Grace Hopper", domain.EntityTypePerson},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewOfflineExtractor().Extract(tt.text)
			assert.NotNil(t, findEntity(result.Entities, tt.want, tt.typ), "entities: %+v", result.Entities)
		})
	}
}

func TestOfflineExtractor_CurrencyCodeNotAName(t *testing.T) {
	result := NewOfflineExtractor().Extract("Raised USD 10 million.")
	assert.Nil(t, findEntity(result.Entities, "USD", domain.EntityTypeOther))
}

func TestOfflineExtractor_Empty(t *testing.T) {
	result := NewOfflineExtractor().Extract("")
	assert.Empty(t, result.Entities)
}

func TestDedupEntities_KeepsHighestConfidence(t *testing.T) {
	out := dedupEntities([]domain.ExtractedEntity{
		{Name: "Acme", Type: domain.EntityTypeOrganization, Confidence: 0.4},
		{Name: "ACME", Type: domain.EntityTypeOrganization, Confidence: 0.9},
		{Name: "Acme", Type: domain.EntityTypeProduct, Confidence: 0.5},
	})

	require.Len(t, out, 2)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-9)
	assert.Equal(t, domain.EntityTypeProduct, out[1].Type)
}

func TestEntityExtractor_Offline(t *testing.T) {
	x := NewEntityExtractor(nil, nil, domain.ExtractionSettings{})

	result := x.Extract(context.Background(), sampleChunk)

	assert.Equal(t, "offline", x.ProviderName())
	assert.Equal(t, "offline", result.Provider)
	assert.False(t, result.UsedFallback)
	assert.NotEmpty(t, result.Entities)
}

func TestEntityExtractor_ParsesProviderJSON(t *testing.T) {
	llm := &mockLLM{response: "Here you go:\n```json\n" + `{
		"entities": [
			{"name": "Alice Johnson", "type": "person", "mention_text": "Alice Johnson", "confidence": 1.7},
			{"name": "Acme Corp", "type": "company", "confidence": -0.2},
			{"name": "Blockchain", "type": "buzzword"}
		],
		"relationships": [
			{"source_name": "Alice Johnson", "source_type": "PERSON", "target_name": "Acme Corp",
			 "target_type": "ORGANIZATION", "type": "works for", "confidence": 0.7, "description": "employee"},
			{"source_name": "Acme Corp", "source_type": "ORG", "target_name": "Blockchain",
			 "target_type": "OTHER", "type": "obsessed_with", "confidence": 0.4}
		]
	}` + "\n```"}

	x := NewEntityExtractor(llm, nil, domain.ExtractionSettings{MaxTokens: 500, Temperature: 0.1})
	result := x.Extract(context.Background(), sampleChunk)

	assert.Equal(t, "openai", result.Provider)
	assert.False(t, result.UsedFallback)
	assert.Equal(t, 100, result.InputTokens)
	assert.Equal(t, 20, result.OutputTokens)

	require.Len(t, result.Entities, 3)
	assert.Equal(t, domain.EntityTypePerson, result.Entities[0].Type)
	assert.InDelta(t, 1.0, result.Entities[0].Confidence, 1e-9)
	assert.Equal(t, domain.EntityTypeOrganization, result.Entities[1].Type)
	assert.InDelta(t, 0.0, result.Entities[1].Confidence, 1e-9)
	assert.Equal(t, domain.EntityTypeOther, result.Entities[2].Type)

	// Offsets were omitted, so they are found in the chunk.
	assert.Equal(t, 21, result.Entities[1].StartOffset)
	assert.Equal(t, 30, result.Entities[1].EndOffset)

	require.Len(t, result.Relationships, 2)
	assert.Equal(t, domain.RelationshipWorksFor, result.Relationships[0].Type)
	assert.Equal(t, "employee", result.Relationships[0].Description)
	assert.Equal(t, domain.RelationshipRelatesTo, result.Relationships[1].Type)
	assert.Equal(t, domain.EntityTypeOrganization, result.Relationships[1].SourceType)

	require.Len(t, llm.opts, 1)
	assert.True(t, llm.opts[0].JSON)
	assert.Equal(t, 500, llm.opts[0].MaxTokens)
}

func TestEntityExtractor_ParsesAliases(t *testing.T) {
	llm := &mockLLM{response: `{"entities": [
		{"name": "Acme Corporation", "type": "organization", "mention_text": "Acme Corp",
		 "aliases": ["Acme", " ", "ACME Corp."]}
	]}`}

	x := NewEntityExtractor(llm, nil, domain.ExtractionSettings{})
	result := x.Extract(context.Background(), sampleChunk)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, []string{"Acme", "ACME Corp."}, result.Entities[0].Aliases)
	assert.Equal(t, []string{"acme corp", "acme", "acme corp."}, result.Entities[0].AliasKeys())
}

// Provider failures and invalid JSON fall back to offline extraction.
func TestEntityExtractor_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		llm  *mockLLM
	}{
		{"timeout", &mockLLM{err: errors.Join(domain.ErrProviderFailed, context.DeadlineExceeded)}},
		{"invalid json", &mockLLM{response: "I'm sorry, I can't produce JSON for this."}},
		{"truncated json", &mockLLM{response: `{"entities": [{"name": "Alice"`}},
		{"entities not array", &mockLLM{response: `{"entities": "Alice"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewEntityExtractor(tt.llm, nil, domain.ExtractionSettings{})

			var result domain.ExtractionResult
			require.NotPanics(t, func() {
				result = x.Extract(context.Background(), sampleChunk)
			})

			assert.True(t, result.UsedFallback)
			assert.Equal(t, "offline", result.Provider)
			assert.NotNil(t, findEntity(result.Entities, "2024-03-15", domain.EntityTypeDate))
		})
	}
}

func TestEntityExtractor_FallbackOnEmptyText(t *testing.T) {
	x := NewEntityExtractor(&mockLLM{err: errors.New("boom")}, nil, domain.ExtractionSettings{})
	result := x.Extract(context.Background(), "")

	assert.True(t, result.UsedFallback)
	assert.Empty(t, result.Entities)
}

func TestEntityExtractor_UsesPromptStore(t *testing.T) {
	llm := &mockLLM{response: `{"entities": [], "relationships": []}`}
	prompts := &mockPromptStore{prompts: map[string]string{
		driven.PromptEntityExtraction: "TYPES=%s RELS=%s TEXT=%s",
	}}

	x := NewEntityExtractor(llm, prompts, domain.ExtractionSettings{})
	result := x.Extract(context.Background(), "hello")

	assert.False(t, result.UsedFallback)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "TYPES=PERSON, ORGANIZATION")
	assert.Contains(t, llm.prompts[0], "TEXT=hello")
}

func TestEntityExtractor_DefaultPromptWhenMissing(t *testing.T) {
	llm := &mockLLM{response: `{"entities": []}`}
	x := NewEntityExtractor(llm, &mockPromptStore{}, domain.ExtractionSettings{})

	x.Extract(context.Background(), "some text")

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Allowed entity types: PERSON")
	assert.Contains(t, llm.prompts[0], "some text")
}

func TestFirstJSONObject(t *testing.T) {
	body, ok := firstJSONObject("noise {not json} then {\"a\": \"}\"} trailing")
	require.True(t, ok)
	assert.Equal(t, `{"a": "}"}`, body)

	_, ok = firstJSONObject("no braces at all")
	assert.False(t, ok)
}
