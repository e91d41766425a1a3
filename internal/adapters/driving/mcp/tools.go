package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query to find documents"`
	Org      string   `json:"org,omitempty" jsonschema:"organisation to search (defaults to the server organisation)"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"minimum cosine similarity between 0 and 1 (default 0.3)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// IndexInput is the input schema for the index tool.
type IndexInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document to index"`
	Reindex    bool   `json:"reindex,omitempty" jsonschema:"discard existing chunks and index again"`
}

// ExtractInput is the input schema for the entity extraction tool.
type ExtractInput struct {
	DocumentID string `json:"document_id" jsonschema:"an indexed document to extract entities from"`
}

// GraphInput is the input schema for the graph listing tool.
type GraphInput struct {
	Org   string `json:"org,omitempty" jsonschema:"organisation to read (defaults to the server organisation)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of entities and relationships (default 25)"`
}

// GraphOutput is the output schema for the graph listing tool.
type GraphOutput struct {
	Entities      []EntityOutput       `json:"entities"`
	Relationships []RelationshipOutput `json:"relationships"`
}

// EntityOutput is one entity in GraphOutput.
type EntityOutput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Aliases      []string `json:"aliases,omitempty"`
	MentionCount int      `json:"mention_count"`
}

// RelationshipOutput is one edge in GraphOutput.
type RelationshipOutput struct {
	Source string  `json:"source_entity_id"`
	Target string  `json:"target_entity_id"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// QueueStatsInput is the (empty) input schema for the queue stats tool.
type QueueStatsInput struct{}

// QueueStatsOutput is the output schema for the queue stats tool.
type QueueStatsOutput struct {
	Queues []domain.QueueStats `json:"queues"`
}

const defaultGraphLimit = 25

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search across an organisation's indexed documents, falling back to filename matches",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "Extract, chunk and embed a registered document so it becomes searchable",
	}, s.handleIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_entities",
		Description: "Extract entities and relationships from an indexed document into the knowledge graph",
	}, s.handleExtract)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_graph",
		Description: "List the most mentioned entities and strongest relationships in the knowledge graph",
	}, s.handleGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_stats",
		Description: "Report waiting, active, delayed, completed and failed job counts per queue",
	}, s.handleQueueStats)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	org, err := s.orgOr(input.Org)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	opts := domain.SearchOptions{Limit: input.Limit, MinScore: input.MinScore}
	results, err := s.ports.Search.SearchWithFallback(ctx, org, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		output.Results[i] = SearchResultOutput{
			DocumentID: results[i].Document.ID,
			Filename:   results[i].Document.Filename,
			ChunkID:    results[i].ChunkID,
			Score:      results[i].Score,
			Snippet:    results[i].Snippet,
			Fallback:   results[i].Fallback,
		}
	}

	return nil, output, nil
}

// handleIndex runs the indexing pipeline and returns its result. A failed
// pipeline is reported as a tool error so the assistant sees the message.
func (s *Server) handleIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexInput,
) (*mcp.CallToolResult, domain.IndexingResult, error) {
	if s.ports.Indexing == nil {
		return nil, domain.IndexingResult{}, fmt.Errorf("indexing: %w", errNotConfigured)
	}
	if input.DocumentID == "" {
		return nil, domain.IndexingResult{}, fmt.Errorf("document_id: %w", domain.ErrInvalidInput)
	}

	var result domain.IndexingResult
	if input.Reindex {
		result = s.ports.Indexing.ReindexDocument(ctx, input.DocumentID, domain.IndexOptions{})
	} else {
		result = s.ports.Indexing.IndexDocument(ctx, input.DocumentID, domain.IndexOptions{})
	}

	if !result.Success {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: result.Error}},
		}, result, nil
	}
	return nil, result, nil
}

// handleExtract builds graph entries for one document.
func (s *Server) handleExtract(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExtractInput,
) (*mcp.CallToolResult, domain.BatchExtractionResult, error) {
	if s.ports.Extraction == nil {
		return nil, domain.BatchExtractionResult{}, fmt.Errorf("extraction: %w", errNotConfigured)
	}
	if input.DocumentID == "" {
		return nil, domain.BatchExtractionResult{}, fmt.Errorf("document_id: %w", domain.ErrInvalidInput)
	}

	result, err := s.ports.Extraction.ExtractDocument(ctx, input.DocumentID)
	if err != nil {
		return nil, domain.BatchExtractionResult{}, err
	}
	return nil, result, nil
}

// handleGraph lists entities and relationships for an organisation.
func (s *Server) handleGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphInput,
) (*mcp.CallToolResult, GraphOutput, error) {
	if s.ports.Graph == nil {
		return nil, GraphOutput{}, fmt.Errorf("graph: %w", errNotConfigured)
	}
	org, err := s.orgOr(input.Org)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultGraphLimit
	}

	entities, err := s.ports.Graph.ListEntities(ctx, org, limit)
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("listing entities: %w", err)
	}
	relationships, err := s.ports.Graph.ListRelationships(ctx, org, limit)
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("listing relationships: %w", err)
	}

	output := GraphOutput{
		Entities:      make([]EntityOutput, len(entities)),
		Relationships: make([]RelationshipOutput, len(relationships)),
	}
	for i := range entities {
		output.Entities[i] = EntityOutput{
			ID:           entities[i].ID,
			Name:         entities[i].Name,
			Type:         string(entities[i].Type),
			Aliases:      entities[i].Aliases,
			MentionCount: entities[i].MentionCount,
		}
	}
	for i := range relationships {
		output.Relationships[i] = RelationshipOutput{
			Source: relationships[i].SourceEntityID,
			Target: relationships[i].TargetEntityID,
			Type:   string(relationships[i].Type),
			Weight: relationships[i].Weight,
		}
	}
	return nil, output, nil
}

// handleQueueStats reports depth for every queue.
func (s *Server) handleQueueStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ QueueStatsInput,
) (*mcp.CallToolResult, QueueStatsOutput, error) {
	if s.ports.Queue == nil {
		return nil, QueueStatsOutput{}, fmt.Errorf("queue: %w", errNotConfigured)
	}

	stats, err := s.ports.Queue.AllStats(ctx)
	if err != nil {
		return nil, QueueStatsOutput{}, err
	}
	return nil, QueueStatsOutput{Queues: stats}, nil
}
