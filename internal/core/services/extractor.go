package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

// Confidence assumed when the provider omits one.
const defaultProviderConfidence = 0.8

// EntityExtractor turns chunk text into candidate entities and
// relationships. It calls the configured LLM when there is one and
// degrades to the offline heuristics on any provider or parse failure.
type EntityExtractor struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	offline *OfflineExtractor
	opts    driven.GenerateOptions
}

// NewEntityExtractor creates an extractor. A nil llm selects offline
// extraction; a nil prompts store uses the built-in prompt.
func NewEntityExtractor(llm driven.LLMService, prompts driven.PromptStore, settings domain.ExtractionSettings) *EntityExtractor {
	return &EntityExtractor{
		llm:     llm,
		prompts: prompts,
		offline: NewOfflineExtractor(),
		opts: driven.GenerateOptions{
			System:      "You extract knowledge graph data from documents and answer with JSON only.",
			MaxTokens:   settings.MaxTokens,
			Temperature: settings.Temperature,
			JSON:        true,
		},
	}
}

// ProviderName returns the active provider, or "offline".
func (e *EntityExtractor) ProviderName() string {
	if e.llm == nil {
		return offlineProvider
	}
	return e.llm.ProviderName()
}

// Extract extracts one chunk. It never fails: provider errors and
// unparsable output fall back to the offline extractor.
func (e *EntityExtractor) Extract(ctx context.Context, text string) domain.ExtractionResult {
	start := time.Now()
	if e.llm == nil {
		result := e.offline.Extract(text)
		result.Latency = time.Since(start)
		metrics.ExtractionRequests.WithLabelValues(offlineProvider, "ok").Inc()
		return result
	}

	provider := e.llm.ProviderName()
	completion, err := e.llm.Complete(ctx, e.prompt(text), e.opts)
	if err != nil {
		logger.WithField("provider", provider).WithError(err).Warn("entity extraction failed, using offline extractor")
		metrics.ExtractionRequests.WithLabelValues(provider, "error").Inc()
		return e.fallback(text, start, driven.Completion{})
	}

	result, err := parseExtraction(completion.Text, text)
	if err != nil {
		logger.WithField("provider", provider).WithError(err).Warn("unparsable extraction response, using offline extractor")
		metrics.ExtractionRequests.WithLabelValues(provider, "invalid").Inc()
		return e.fallback(text, start, completion)
	}

	metrics.ExtractionRequests.WithLabelValues(provider, "ok").Inc()
	result.Provider = provider
	result.InputTokens = completion.InputTokens
	result.OutputTokens = completion.OutputTokens
	result.Latency = time.Since(start)
	return result
}

func (e *EntityExtractor) fallback(text string, start time.Time, usage driven.Completion) domain.ExtractionResult {
	result := e.offline.Extract(text)
	result.UsedFallback = true
	result.InputTokens = usage.InputTokens
	result.OutputTokens = usage.OutputTokens
	result.Latency = time.Since(start)
	return result
}

func (e *EntityExtractor) prompt(text string) string {
	template := driven.DefaultEntityExtractionPrompt
	if e.prompts != nil {
		if p, err := e.prompts.Load(driven.PromptEntityExtraction); err == nil && strings.Count(p, "%s") == 3 {
			template = p
		} else if err != nil {
			logger.Debug("entity extraction prompt: %v, using default", err)
		}
	}

	entityTypes := make([]string, 0, len(domain.EntityTypes()))
	for _, t := range domain.EntityTypes() {
		entityTypes = append(entityTypes, string(t))
	}
	relTypes := make([]string, 0, len(domain.RelationshipTypes()))
	for _, t := range domain.RelationshipTypes() {
		relTypes = append(relTypes, string(t))
	}

	return fmt.Sprintf(template, strings.Join(entityTypes, ", "), strings.Join(relTypes, ", "), text)
}

// parseExtraction reads the provider's JSON answer. Code fences and
// surrounding prose are ignored; the first complete object is used.
func parseExtraction(raw, text string) (domain.ExtractionResult, error) {
	body, ok := firstJSONObject(raw)
	if !ok {
		return domain.ExtractionResult{}, fmt.Errorf("no JSON object in response")
	}

	parsed := gjson.Parse(body)
	entitiesField := parsed.Get("entities")
	if entitiesField.Exists() && !entitiesField.IsArray() {
		return domain.ExtractionResult{}, fmt.Errorf("entities is not an array")
	}

	var result domain.ExtractionResult
	for _, item := range entitiesField.Array() {
		name := strings.TrimSpace(item.Get("name").String())
		if name == "" {
			continue
		}
		entity := domain.ExtractedEntity{
			Name:        name,
			Type:        domain.ParseEntityType(item.Get("type").String()),
			MentionText: item.Get("mention_text").String(),
			Confidence:  confidenceOf(item),
		}
		if entity.MentionText == "" {
			entity.MentionText = name
		}
		for _, alias := range item.Get("aliases").Array() {
			if a := strings.TrimSpace(alias.String()); a != "" {
				entity.Aliases = append(entity.Aliases, a)
			}
		}
		entity.StartOffset, entity.EndOffset = mentionSpan(text, entity.MentionText, item)
		result.Entities = append(result.Entities, entity)
	}

	for _, item := range parsed.Get("relationships").Array() {
		source := strings.TrimSpace(item.Get("source_name").String())
		target := strings.TrimSpace(item.Get("target_name").String())
		if source == "" || target == "" {
			continue
		}
		result.Relationships = append(result.Relationships, domain.ExtractedRelationship{
			SourceName:  source,
			SourceType:  domain.ParseEntityType(item.Get("source_type").String()),
			TargetName:  target,
			TargetType:  domain.ParseEntityType(item.Get("target_type").String()),
			Type:        domain.ParseRelationshipType(item.Get("type").String()),
			Confidence:  confidenceOf(item),
			Description: item.Get("description").String(),
		})
	}

	return result, nil
}

// firstJSONObject returns the first balanced, valid {...} in s.
func firstJSONObject(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		if end := matchBrace(s, start); end > 0 && gjson.Valid(s[start:end]) {
			return s[start:end], true
		}
	}
	return "", false
}

// matchBrace returns one past the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func confidenceOf(item gjson.Result) float64 {
	c := item.Get("confidence")
	if !c.Exists() {
		return defaultProviderConfidence
	}
	return domain.ClampConfidence(c.Float())
}

// mentionSpan trusts provider offsets only when they point at the mention;
// otherwise it searches the chunk case-insensitively.
func mentionSpan(text, mention string, item gjson.Result) (int, int) {
	runes := []rune(text)
	mentionLen := len([]rune(mention))

	start, end := item.Get("start_offset"), item.Get("end_offset")
	if start.Exists() && end.Exists() {
		s, e := int(start.Int()), int(end.Int())
		if s >= 0 && e > s && e <= len(runes) && strings.EqualFold(string(runes[s:e]), mention) {
			return s, e
		}
	}

	if idx := indexFold(text, mention); idx >= 0 {
		return idx, idx + mentionLen
	}
	return 0, 0
}

// indexFold returns the rune offset of the first case-insensitive match.
func indexFold(text, sub string) int {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(sub))
	if idx < 0 {
		return -1
	}
	// Lowercasing can change byte lengths; re-scan to map back to runes.
	lowerPrefix := strings.ToLower(text)[:idx]
	return len([]rune(lowerPrefix))
}
