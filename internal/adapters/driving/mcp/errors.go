// Package mcp provides an MCP (Model Context Protocol) server adapter for docgraph.
// It lets AI assistants search an organisation's documents, drive indexing
// and read the knowledge graph.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingOrg is returned when neither the tool input nor the server names an organisation.
var ErrMissingOrg = errors.New("mcp: organisation is required")

// errNotConfigured is returned by tools whose optional port was not provided.
var errNotConfigured = errors.New("mcp: service not configured")
