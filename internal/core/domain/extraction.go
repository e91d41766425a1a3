package domain

import "time"

// ExtractedEntity is a candidate entity produced by an extractor.
type ExtractedEntity struct {
	// Name is the entity name as written.
	Name string `json:"name"`

	// Type is normalised against the closed EntityType set.
	Type EntityType `json:"type"`

	// MentionText is the exact text matched in the chunk.
	MentionText string `json:"mention_text"`

	// StartOffset is the character offset of the mention in the chunk.
	StartOffset int `json:"start_offset"`

	// EndOffset is one past the mention's last character.
	EndOffset int `json:"end_offset"`

	// Confidence is clamped to [0, 1].
	Confidence float64 `json:"confidence"`

	// Aliases are other names the text uses for the entity.
	Aliases []string `json:"aliases,omitempty"`
}

// AliasKeys returns the normalised aliases and mention text of e that
// differ from its normalised name, without duplicates.
func (e ExtractedEntity) AliasKeys() []string {
	name := NormalizeName(e.Name)
	seen := map[string]bool{name: true, "": true}

	var keys []string
	for _, candidate := range append([]string{e.MentionText}, e.Aliases...) {
		key := NormalizeName(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// ExtractedRelationship is a candidate edge produced by an extractor.
type ExtractedRelationship struct {
	SourceName  string           `json:"source_name"`
	SourceType  EntityType       `json:"source_type"`
	TargetName  string           `json:"target_name"`
	TargetType  EntityType       `json:"target_type"`
	Type        RelationshipType `json:"type"`
	Confidence  float64          `json:"confidence"`
	Description string           `json:"description,omitempty"`
}

// ExtractionResult is the output of extracting one chunk.
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`

	// Provider names the extractor that produced the result.
	Provider string `json:"provider"`

	// UsedFallback is true when the configured provider failed and the
	// offline heuristics ran instead.
	UsedFallback bool `json:"used_fallback"`

	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
}

// BatchExtractionResult aggregates extraction over many chunks.
type BatchExtractionResult struct {
	ChunksProcessed        int `json:"chunks_processed"`
	ChunksFailed           int `json:"chunks_failed"`
	EntitiesExtracted      int `json:"entities_extracted"`
	RelationshipsExtracted int `json:"relationships_extracted"`
}
