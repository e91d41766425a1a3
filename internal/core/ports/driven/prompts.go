package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Returns the prompt content and any error encountered.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptEntityExtraction asks the model for entities and relationships
	// as strict JSON. The template expects two %s placeholders: the allowed
	// entity types and the allowed relationship types, followed by a third
	// %s for the chunk text.
	PromptEntityExtraction = "entity_extraction"
)

// DefaultEntityExtractionPrompt is used when no entity_extraction prompt
// has been written to the prompts directory.
const DefaultEntityExtractionPrompt = `Extract named entities and the relationships between them from the text below.

Allowed entity types: %s
Allowed relationship types: %s

Respond with a single JSON object and nothing else, in this shape:
{
  "entities": [
    {"name": "...", "type": "...", "mention_text": "...", "start_offset": 0, "end_offset": 0, "confidence": 0.0,
     "aliases": ["..."]}
  ],
  "relationships": [
    {"source_name": "...", "source_type": "...", "target_name": "...", "target_type": "...",
     "type": "...", "confidence": 0.0, "description": "..."}
  ]
}

Offsets are character positions in the text. Confidence is between 0 and 1.
Use the most complete name as "name" and list abbreviations or other names the text uses in "aliases".
Only include relationships whose source and target also appear in "entities".

Text:
%s`
