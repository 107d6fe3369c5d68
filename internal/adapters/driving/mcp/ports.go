package mcp

import (
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server needs.
type Ports struct {
	// Evolution runs document operations.
	Evolution driving.EvolutionService

	// DefaultRepo is used when a call omits the repository.
	DefaultRepo string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Evolution == nil {
		return ErrMissingEvolutionService
	}
	return nil
}

// repo resolves a requested repository against the default.
func (p *Ports) repo(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if p.DefaultRepo != "" {
		return p.DefaultRepo, nil
	}
	return "", ErrNoRepository
}
