// Package domain defines the core business entities for docgraph.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded document and its indexing lifecycle
//   - Chunk: A searchable, embedded slice of a document's text
//   - Entity, EntityMention, Relationship: The per-organisation knowledge graph
//   - Job: A unit of queued background work
//   - Config: Runtime configuration resolved once at startup
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
