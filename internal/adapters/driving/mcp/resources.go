package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for prdmachine resources.
	uriScheme = "prdmachine://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.impl.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "All tracked documents",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// {+path} keeps slashes in nested document paths.
	s.impl.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "repos/{owner}/{name}/documents/{+path}",
		Name:        "document-content",
		Description: "Current content of a tracked document",
		MIMEType:    "text/markdown",
	}, s.handleDocumentContentResource)

	s.impl.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "repos/{owner}/{name}/conflicts",
		Name:        "open-conflicts",
		Description: "Open conflicts of a repository's canonical document",
		MIMEType:    "application/json",
	}, s.handleConflictsResource)
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Evolution.ListDocuments(ctx, domain.StateFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		Repo    string `json:"repo"`
		Path    string `json:"path"`
		Type    string `json:"type"`
		Version string `json:"version"`
		Locked  bool   `json:"locked"`
		URI     string `json:"uri"`
	}

	infos := make([]docInfo, len(docs))
	for i, d := range docs {
		infos[i] = docInfo{
			Repo:    d.Repo,
			Path:    d.Path,
			Type:    d.Type.String(),
			Version: d.Version,
			Locked:  d.IsLocked,
			URI:     documentURI(d.Repo, d.Path),
		}
	}
	return jsonResult(req.Params.URI, infos)
}

func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	repo, path := parseDocumentURI(req.Params.URI)
	if repo == "" || path == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	status, err := s.ports.Evolution.Status(ctx, repo, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s:%s: %w", repo, path, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     status.State.Content(),
		}},
	}, nil
}

func (s *Server) handleConflictsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	repo := parseConflictsURI(req.Params.URI)
	if repo == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	conflicts, err := s.ports.Evolution.ListConflicts(ctx, repo, "", true)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	return jsonResult(req.Params.URI, conflictsOutput(conflicts))
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// documentURI builds prdmachine://repos/{owner}/{name}/documents/{path}.
func documentURI(repo, path string) string {
	return uriScheme + "repos/" + repo + "/documents/" + path
}

// parseDocumentURI extracts the repository and path from a document URI.
func parseDocumentURI(uri string) (repo, path string) {
	rest, ok := strings.CutPrefix(uri, uriScheme+"repos/")
	if !ok {
		return "", ""
	}
	owner, rest, ok := strings.Cut(rest, "/")
	if !ok || owner == "" {
		return "", ""
	}
	name, path, ok := strings.Cut(rest, "/documents/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", ""
	}
	return owner + "/" + name, path
}

// parseConflictsURI extracts the repository from prdmachine://repos/{owner}/{name}/conflicts.
func parseConflictsURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme+"repos/")
	if !ok {
		return ""
	}
	repo, ok := strings.CutSuffix(rest, "/conflicts")
	if !ok {
		return ""
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return ""
	}
	return repo
}
