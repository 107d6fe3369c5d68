package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// DocumentInput selects one document.
type DocumentInput struct {
	Repo string `json:"repo,omitempty" jsonschema:"repository as owner/name (default: the configured repository)"`
	Path string `json:"path,omitempty" jsonschema:"document path (default: the canonical document)"`
}

// RepoInput selects a repository.
type RepoInput struct {
	Repo string `json:"repo,omitempty" jsonschema:"repository as owner/name (default: the configured repository)"`
}

// DistillInput is the input schema for the distill tool.
type DistillInput struct {
	Repo    string `json:"repo,omitempty" jsonschema:"repository as owner/name (default: the configured repository)"`
	Path    string `json:"path,omitempty" jsonschema:"document path (default: the canonical document)"`
	Context string `json:"context,omitempty" jsonschema:"extra context for the distillation, e.g. what just changed"`
	Bump    string `json:"bump,omitempty" jsonschema:"version component to increment: major, minor or patch (default patch)"`
}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	Repo            string   `json:"repo"`
	Path            string   `json:"path"`
	Type            string   `json:"type"`
	Version         string   `json:"version"`
	ContentHash     string   `json:"content_hash"`
	Locked          bool     `json:"locked"`
	AutoEvolve      bool     `json:"auto_evolve"`
	Versions        int      `json:"versions"`
	OpenConflicts   int      `json:"open_conflicts"`
	Exports         int      `json:"exports"`
	MissingSections []string `json:"missing_sections,omitempty"`
	LastDistilledAt string   `json:"last_distilled_at,omitempty"`
}

// VersionOutput describes a committed version.
type VersionOutput struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Summary string `json:"summary"`
	Trigger string `json:"trigger"`
}

// ConflictOutput describes one conflict.
type ConflictOutput struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Section     string `json:"section"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// ConflictsOutput is the output schema for the detection tools.
type ConflictsOutput struct {
	Conflicts []ConflictOutput `json:"conflicts"`
	Count     int              `json:"count"`
}

// AlignedDocument is one step of an alignment.
type AlignedDocument struct {
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AlignOutput is the output schema for the align tool.
type AlignOutput struct {
	Documents []AlignedDocument `json:"documents"`
}

// ExportOutput is the output schema for the export_items tool.
type ExportOutput struct {
	ItemsCreated int                  `json:"items_created"`
	ItemsParsed  int                  `json:"items_parsed"`
	Items        []domain.ExternalRef `json:"items"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "status",
		Description: "Summarise a tracked document: version, lock state and counts of versions, open conflicts and exports",
	}, s.handleStatus)

	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "distill",
		Description: "Evolve a document from the current repository context and record a new version",
	}, s.handleDistill)

	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "detect_conflicts",
		Description: "Compare a document against the repository and record the inconsistencies found",
	}, s.handleDetectConflicts)

	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "detect_drift",
		Description: "Compare the canonical document with its derived documents",
	}, s.handleDetectDrift)

	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "align",
		Description: "Sync the canonical document from its source and align every derived document to it",
	}, s.handleAlign)

	mcp.AddTool(s.impl, &mcp.Tool{
		Name:        "export_items",
		Description: "Create issue tracker items from the document's user stories",
	}, s.handleExportItems)
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	status, err := s.ports.Evolution.Status(ctx, repo, input.Path)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	st := status.State
	out := StatusOutput{
		Repo:            st.Repo,
		Path:            st.Path,
		Type:            st.Type.String(),
		Version:         st.Version,
		ContentHash:     st.ContentHash(),
		Locked:          st.IsLocked,
		AutoEvolve:      st.AutoEvolve,
		Versions:        status.VersionCount,
		OpenConflicts:   status.OpenConflicts,
		Exports:         status.ExportCount,
		MissingSections: status.MissingSection,
	}
	if st.LastDistilledAt != nil {
		out.LastDistilledAt = st.LastDistilledAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleDistill(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DistillInput,
) (*mcp.CallToolResult, VersionOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, VersionOutput{}, err
	}

	req := driving.DistillRequest{Trigger: domain.TriggerManualSync, Ref: "mcp"}
	if input.Bump != "" {
		if req.Bump, err = domain.ParseBumpType(input.Bump); err != nil {
			return nil, VersionOutput{}, err
		}
	}
	if input.Context != "" {
		req.Extra = map[string]string{"context": input.Context}
	}

	v, err := s.ports.Evolution.Distill(ctx, repo, input.Path, req)
	if err != nil {
		return nil, VersionOutput{}, err
	}
	return nil, VersionOutput{
		ID:      v.ID,
		Version: v.Version,
		Summary: v.ChangeSummary,
		Trigger: v.TriggerType.String(),
	}, nil
}

func (s *Server) handleDetectConflicts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, ConflictsOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, ConflictsOutput{}, err
	}

	found, err := s.ports.Evolution.DetectConflicts(ctx, repo, input.Path)
	if err != nil {
		return nil, ConflictsOutput{}, err
	}
	return nil, conflictsOutput(found), nil
}

func (s *Server) handleDetectDrift(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RepoInput,
) (*mcp.CallToolResult, ConflictsOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, ConflictsOutput{}, err
	}

	found, err := s.ports.Evolution.DetectDrift(ctx, repo)
	if err != nil {
		return nil, ConflictsOutput{}, err
	}
	return nil, conflictsOutput(found), nil
}

func conflictsOutput(conflicts []*domain.DocumentConflict) ConflictsOutput {
	out := ConflictsOutput{
		Conflicts: make([]ConflictOutput, len(conflicts)),
		Count:     len(conflicts),
	}
	for i, c := range conflicts {
		out.Conflicts[i] = ConflictOutput{
			ID:          c.ID,
			Type:        c.Type.String(),
			Severity:    c.Severity.String(),
			Section:     c.SectionAffected,
			Description: c.Description,
			Suggestion:  c.SuggestedResolution,
		}
	}
	return out
}

func (s *Server) handleAlign(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RepoInput,
) (*mcp.CallToolResult, AlignOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, AlignOutput{}, err
	}

	result, err := s.ports.Evolution.AlignAll(ctx, repo)
	if err != nil {
		return nil, AlignOutput{}, err
	}

	order := append([]domain.DocumentType{domain.DocumentTypeCanonical}, domain.DerivedTypes...)
	out := AlignOutput{Documents: make([]AlignedDocument, 0, len(order))}
	for _, t := range order {
		doc := AlignedDocument{Type: t.String()}
		st := result.Derived[t]
		if t == domain.DocumentTypeCanonical {
			st = result.Canonical
		}
		if st != nil {
			doc.Path = st.Path
			doc.Version = st.Version
		}
		if err := result.Errors[t]; err != nil {
			doc.Error = err.Error()
		}
		out.Documents = append(out.Documents, doc)
	}
	return nil, out, nil
}

func (s *Server) handleExportItems(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, ExportOutput, error) {
	repo, err := s.ports.repo(input.Repo)
	if err != nil {
		return nil, ExportOutput{}, err
	}

	export, err := s.ports.Evolution.ExportItems(ctx, repo, input.Path)
	if err != nil {
		return nil, ExportOutput{}, err
	}

	items := export.ExternalRefs
	if items == nil {
		items = []domain.ExternalRef{}
	}
	return nil, ExportOutput{
		ItemsCreated: export.ItemsCreated,
		ItemsParsed:  export.DetailInt(domain.DetailItemsParsed),
		Items:        items,
	}, nil
}
