package mcp

import (
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search ranks documents for a query.
	Search driving.SearchService

	// Documents reads registered documents.
	Documents driving.DocumentService

	// Indexing runs the indexing pipeline synchronously.
	Indexing driving.IndexingService

	// Extraction builds the knowledge graph for a document.
	Extraction driving.ExtractionService

	// Graph reads entities and relationships.
	Graph driving.GraphService

	// Queue reports queue depth.
	Queue driving.QueueService
}

// Validate ensures all required ports are set.
// Only search is mandatory; tools backed by a nil port report errNotConfigured.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
