package domain

import (
	"strings"
	"time"
)

// EntityType is the closed set of knowledge graph node types.
type EntityType string

// Entity types.
const (
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeLocation     EntityType = "LOCATION"
	EntityTypeDate         EntityType = "DATE"
	EntityTypeConcept      EntityType = "CONCEPT"
	EntityTypeProduct      EntityType = "PRODUCT"
	EntityTypeEvent        EntityType = "EVENT"
	EntityTypeTopic        EntityType = "TOPIC"
	EntityTypeMoney        EntityType = "MONEY"
	EntityTypeTechnology   EntityType = "TECHNOLOGY"
	EntityTypeOther        EntityType = "OTHER"
)

// EntityTypes returns every entity type in declaration order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityTypePerson, EntityTypeOrganization, EntityTypeLocation,
		EntityTypeDate, EntityTypeConcept, EntityTypeProduct, EntityTypeEvent,
		EntityTypeTopic, EntityTypeMoney, EntityTypeTechnology, EntityTypeOther,
	}
}

// IsValid returns true if the type is one of the closed set.
func (t EntityType) IsValid() bool {
	for _, known := range EntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEntityType maps free-form provider output onto the closed set.
// Unrecognised values become EntityTypeOther rather than being rejected.
func ParseEntityType(raw string) EntityType {
	t := EntityType(canonicalLabel(raw))
	switch t {
	case "ORG", "COMPANY":
		return EntityTypeOrganization
	case "PLACE", "GPE", "LOC":
		return EntityTypeLocation
	case "TIME":
		return EntityTypeDate
	case "CURRENCY", "AMOUNT":
		return EntityTypeMoney
	case "TECH":
		return EntityTypeTechnology
	}
	if t.IsValid() {
		return t
	}
	return EntityTypeOther
}

// RelationshipType is the closed set of knowledge graph edge types.
type RelationshipType string

// Relationship types.
const (
	RelationshipWorksFor     RelationshipType = "WORKS_FOR"
	RelationshipReportsTo    RelationshipType = "REPORTS_TO"
	RelationshipCollaborates RelationshipType = "COLLABORATES"
	RelationshipAuthored     RelationshipType = "AUTHORED"
	RelationshipMentioned    RelationshipType = "MENTIONED"
	RelationshipSubsidiaryOf RelationshipType = "SUBSIDIARY_OF"
	RelationshipPartnerOf    RelationshipType = "PARTNER_OF"
	RelationshipCompetesWith RelationshipType = "COMPETES_WITH"
	RelationshipDiscusses    RelationshipType = "DISCUSSES"
	RelationshipRelatesTo    RelationshipType = "RELATES_TO"
	RelationshipLocatedIn    RelationshipType = "LOCATED_IN"
	RelationshipOccurredOn   RelationshipType = "OCCURRED_ON"
	RelationshipInvolves     RelationshipType = "INVOLVES"
	RelationshipAssociated   RelationshipType = "ASSOCIATED"
	RelationshipOther        RelationshipType = "OTHER"
)

// RelationshipTypes returns every relationship type in declaration order.
func RelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelationshipWorksFor, RelationshipReportsTo, RelationshipCollaborates,
		RelationshipAuthored, RelationshipMentioned, RelationshipSubsidiaryOf,
		RelationshipPartnerOf, RelationshipCompetesWith, RelationshipDiscusses,
		RelationshipRelatesTo, RelationshipLocatedIn, RelationshipOccurredOn,
		RelationshipInvolves, RelationshipAssociated, RelationshipOther,
	}
}

// IsValid returns true if the type is one of the closed set.
func (t RelationshipType) IsValid() bool {
	for _, known := range RelationshipTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseRelationshipType maps free-form provider output onto the closed set.
// Unrecognised values become RelationshipRelatesTo.
func ParseRelationshipType(raw string) RelationshipType {
	t := RelationshipType(canonicalLabel(raw))
	if t.IsValid() {
		return t
	}
	return RelationshipRelatesTo
}

// canonicalLabel upper-cases and joins words with underscores so that
// "works-for", "Works For" and "WORKS_FOR" compare equal.
func canonicalLabel(raw string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	return strings.ToUpper(strings.Join(fields, "_"))
}

// NormalizeName produces the dedup key for an entity name:
// lowercased, trimmed, inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Entity is a deduplicated named concept tracked per organisation.
type Entity struct {
	// ID is the unique identifier for the entity.
	ID string

	// OrgID is the owning organisation.
	OrgID string

	// Name is the canonical display name from the first sighting.
	Name string

	// NormalizedName is the dedup key, see NormalizeName.
	NormalizedName string

	// Type is one of the closed EntityType set.
	Type EntityType

	// Aliases are alternative normalised names that resolve to this entity.
	Aliases []string

	// Confidence is the running mean of observed confidences.
	Confidence float64

	// MentionCount is the number of sightings.
	MentionCount int

	// DocumentCount is the number of distinct documents the entity was seen in.
	DocumentCount int

	// CreatedAt is the first sighting.
	CreatedAt time.Time

	// UpdatedAt is the latest sighting.
	UpdatedAt time.Time
}

// HasAlias reports whether normalized is one of the entity's aliases.
func (e *Entity) HasAlias(normalized string) bool {
	for _, a := range e.Aliases {
		if a == normalized {
			return true
		}
	}
	return false
}

// AddAliases appends the keys that are neither the entity's normalised
// name nor already aliases. It reports whether anything was added.
func (e *Entity) AddAliases(keys []string) bool {
	added := false
	for _, key := range keys {
		if key == "" || key == e.NormalizedName || e.HasAlias(key) {
			continue
		}
		e.Aliases = append(e.Aliases, key)
		added = true
	}
	return added
}

// MentionContextRunes bounds the context captured either side of a mention.
const MentionContextRunes = 50

// EntityMention links one entity to one chunk. Mentions are immutable.
type EntityMention struct {
	ID            string
	EntityID      string
	ChunkID       string
	DocumentID    string
	OrgID         string
	MentionText   string
	StartOffset   int
	EndOffset     int
	ContextBefore string
	ContextAfter  string
	Confidence    float64
	CreatedAt     time.Time
}

// Relationship weight constants.
const (
	// InitialRelationshipWeight is the weight of a newly observed edge.
	InitialRelationshipWeight = 0.5

	// RelationshipWeightIncrement is added on each repeated observation.
	// No upper bound is enforced.
	RelationshipWeightIncrement = 0.1
)

// Relationship is a typed, weighted directed edge between two entities.
type Relationship struct {
	// ID is the unique identifier for the relationship.
	ID string

	// OrgID is the owning organisation.
	OrgID string

	// SourceEntityID is the edge origin.
	SourceEntityID string

	// TargetEntityID is the edge destination.
	TargetEntityID string

	// Type is one of the closed RelationshipType set.
	Type RelationshipType

	// Weight starts at InitialRelationshipWeight and grows per observation.
	Weight float64

	// Confidence is the latest observation's confidence.
	Confidence float64

	// Description is an optional free-text explanation from the provider.
	Description string

	// EvidenceChunkIDs lists the chunk of every observation, in order.
	EvidenceChunkIDs []string

	// CreatedAt is the first observation.
	CreatedAt time.Time

	// UpdatedAt is the latest observation.
	UpdatedAt time.Time
}
