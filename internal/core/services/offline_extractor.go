package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

const offlineProvider = "offline"

// Heuristic confidences per pattern.
const (
	offlineNameConfidence  = 0.6
	offlineDateConfidence  = 0.9
	offlineMoneyConfidence = 0.95
)

var (
	capitalisedRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9&'.-]*(?:[ \t]+[A-Z][A-Za-z0-9&'.-]*)*`)

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|` +
			`Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.? \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	}

	moneyRes = []*regexp.Regexp{
		regexp.MustCompile(`[$€£¥]\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:million|billion|thousand|bn|[kKmMbB])\b)?`),
		regexp.MustCompile(`\b(?:USD|EUR|GBP|JPY|CAD|AUD)\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:million|billion|thousand|bn|[kKmMbB])\b)?`),
		regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|dollars|euros|pounds)\b`),
	}

	orgSuffixes = mapset.NewSet(
		"inc", "inc.", "corp", "corp.", "corporation", "llc", "ltd", "ltd.", "plc",
		"gmbh", "co", "co.", "company", "group", "holdings", "bank", "university", "foundation",
	)

	personTitles = mapset.NewSet("mr", "mr.", "mrs", "mrs.", "ms", "ms.", "dr", "dr.", "prof", "prof.")
)

// stopwords are capitalised only because they start a sentence or name a
// calendar unit. They never begin or form a name on their own.
var stopwords = mapset.NewSet(
	"a", "an", "the", "this", "that", "these", "those", "it", "its", "we", "our", "they", "their",
	"he", "she", "his", "her", "i", "you", "your", "in", "on", "at", "for", "from", "to", "of",
	"by", "with", "and", "but", "or", "nor", "if", "when", "while", "after", "before", "as",
	"there", "here", "what", "which", "who", "how", "why", "all", "some", "any", "each", "every",
	"no", "not", "yes", "also", "however", "therefore", "thus", "meanwhile", "page", "section",
	"table", "figure", "note", "see", "please", "thank", "thanks", "dear", "regards",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
)

// OfflineExtractor finds entities with deterministic patterns. It is used
// when no LLM is configured and whenever the LLM fails.
type OfflineExtractor struct{}

// NewOfflineExtractor creates an offline extractor.
func NewOfflineExtractor() *OfflineExtractor {
	return &OfflineExtractor{}
}

// Extract returns deduplicated entity candidates for text. Relationships
// are never produced offline.
func (x *OfflineExtractor) Extract(text string) domain.ExtractionResult {
	var candidates []domain.ExtractedEntity
	var covered [][]int

	for _, re := range dateRes {
		found, spans := matchAll(text, re, domain.EntityTypeDate, offlineDateConfidence)
		candidates = append(candidates, found...)
		covered = append(covered, spans...)
	}
	for _, re := range moneyRes {
		found, spans := matchAll(text, re, domain.EntityTypeMoney, offlineMoneyConfidence)
		candidates = append(candidates, found...)
		covered = append(covered, spans...)
	}
	candidates = append(candidates, capitalisedNames(text, covered)...)

	return domain.ExtractionResult{
		Entities: dedupEntities(candidates),
		Provider: offlineProvider,
	}
}

// matchAll returns a candidate per match of re plus the matched byte spans.
func matchAll(text string, re *regexp.Regexp, t domain.EntityType, confidence float64) ([]domain.ExtractedEntity, [][]int) {
	locs := re.FindAllStringIndex(text, -1)
	out := make([]domain.ExtractedEntity, 0, len(locs))
	for _, loc := range locs {
		out = append(out, newCandidate(text, loc[0], text[loc[0]:loc[1]], t, confidence))
	}
	return out, locs
}

// capitalisedNames yields capitalised word runs with leading stopwords
// removed and trailing punctuation trimmed. Runs inside a covered span
// were already claimed by the date or currency patterns.
func capitalisedNames(text string, covered [][]int) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, loc := range capitalisedRe.FindAllStringIndex(text, -1) {
		if insideAny(loc[0], covered) {
			continue
		}
		start := loc[0]
		words := strings.Fields(text[loc[0]:loc[1]])

		// Drop leading stopwords, advancing the byte offset past each.
		for len(words) > 0 && stopwords.Contains(strings.ToLower(strings.TrimRight(words[0], ".'-"))) {
			start += strings.Index(text[start:], words[0]) + len(words[0])
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		start += strings.Index(text[start:], words[0])

		name := text[start:loc[1]]
		name = strings.TrimRight(name, ".'-")
		if utf8.RuneCountInString(name) < 2 || (len(words) == 1 && stopwords.Contains(strings.ToLower(name))) {
			continue
		}

		out = append(out, newCandidate(text, start, name, classifyName(words), offlineNameConfidence))
	}
	return out
}

func insideAny(pos int, spans [][]int) bool {
	for _, span := range spans {
		if pos >= span[0] && pos < span[1] {
			return true
		}
	}
	return false
}

func classifyName(words []string) domain.EntityType {
	last := strings.ToLower(words[len(words)-1])
	first := strings.ToLower(words[0])
	switch {
	case len(words) > 1 && orgSuffixes.Contains(last):
		return domain.EntityTypeOrganization
	case len(words) > 1 && personTitles.Contains(first):
		return domain.EntityTypePerson
	default:
		return domain.EntityTypeOther
	}
}

func newCandidate(text string, byteStart int, mention string, t domain.EntityType, confidence float64) domain.ExtractedEntity {
	start := utf8.RuneCountInString(text[:byteStart])
	return domain.ExtractedEntity{
		Name:        mention,
		Type:        t,
		MentionText: mention,
		StartOffset: start,
		EndOffset:   start + utf8.RuneCountInString(mention),
		Confidence:  confidence,
	}
}

// dedupEntities keeps the highest-confidence candidate per
// (lowercased name, type), in first-seen order.
func dedupEntities(candidates []domain.ExtractedEntity) []domain.ExtractedEntity {
	type key struct {
		name string
		t    domain.EntityType
	}
	index := make(map[key]int, len(candidates))
	out := make([]domain.ExtractedEntity, 0, len(candidates))

	for _, c := range candidates {
		k := key{strings.ToLower(c.Name), c.Type}
		if i, ok := index[k]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return out
}
