// Package mcp provides an MCP (Model Context Protocol) server adapter for prdmachine.
// It lets AI assistants inspect and evolve tracked documents.
package mcp

import "errors"

// ErrMissingEvolutionService is returned when the evolution service is not provided.
var ErrMissingEvolutionService = errors.New("mcp: evolution service is required")

// ErrNoRepository is returned when a call names no repository and no default is set.
var ErrNoRepository = errors.New("mcp: repository is required")
