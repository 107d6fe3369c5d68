package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestParseDocumentURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantRepo string
		wantPath string
	}{
		{
			name:     "canonical document",
			uri:      "prdmachine://repos/acme/widgets/documents/PRD.md",
			wantRepo: "acme/widgets",
			wantPath: "PRD.md",
		},
		{
			name:     "nested path",
			uri:      "prdmachine://repos/acme/widgets/documents/docs/plan/IP.md",
			wantRepo: "acme/widgets",
			wantPath: "docs/plan/IP.md",
		},
		{
			name: "invalid scheme",
			uri:  "file://repos/acme/widgets/documents/PRD.md",
		},
		{
			name: "missing documents segment",
			uri:  "prdmachine://repos/acme/widgets/PRD.md",
		},
		{
			name: "empty URI",
			uri:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, path := parseDocumentURI(tt.uri)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestDocumentURI_RoundTrip(t *testing.T) {
	repo, path := parseDocumentURI(documentURI("acme/widgets", "docs/PRD.md"))
	assert.Equal(t, "acme/widgets", repo)
	assert.Equal(t, "docs/PRD.md", path)
}

func TestParseConflictsURI(t *testing.T) {
	assert.Equal(t, "acme/widgets", parseConflictsURI("prdmachine://repos/acme/widgets/conflicts"))
	assert.Empty(t, parseConflictsURI("prdmachine://repos/acme/conflicts"))
	assert.Empty(t, parseConflictsURI("prdmachine://repos/acme/widgets/extra/conflicts"))
	assert.Empty(t, parseConflictsURI("prdmachine://documents"))
}

func TestServer_handleDocumentsResource(t *testing.T) {
	doc := domain.NewDocumentState("acme/widgets", "PRD.md", domain.DocumentDefaults{})
	server := newTestServer(t, &mockEvolutionService{docs: []*domain.DocumentState{doc}})

	result, err := server.handleDocumentsResource(context.Background(), readRequest("prdmachine://documents"))

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "acme/widgets", infos[0]["repo"])
	assert.Equal(t, "prdmachine://repos/acme/widgets/documents/PRD.md", infos[0]["uri"])
}

func TestServer_handleDocumentContentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns content", func(t *testing.T) {
		state := domain.NewDocumentState("acme/widgets", "docs/PRD.md", domain.DocumentDefaults{})
		state.SetContent("# Widgets PRD")
		evo := &mockEvolutionService{status: &driving.DocumentStatus{State: state}}
		server := newTestServer(t, evo)

		result, err := server.handleDocumentContentResource(ctx,
			readRequest("prdmachine://repos/acme/widgets/documents/docs/PRD.md"))

		require.NoError(t, err)
		assert.Equal(t, "docs/PRD.md", evo.gotPath)
		assert.Equal(t, "# Widgets PRD", result.Contents[0].Text)
		assert.Equal(t, "text/markdown", result.Contents[0].MIMEType)
	})

	t.Run("malformed URI is not found", func(t *testing.T) {
		server := newTestServer(t, &mockEvolutionService{})
		_, err := server.handleDocumentContentResource(ctx, readRequest("prdmachine://repos/acme"))
		assert.Error(t, err)
	})
}

func TestServer_handleConflictsResource(t *testing.T) {
	evo := &mockEvolutionService{conflicts: []*domain.DocumentConflict{{
		ID: "c-1", Type: domain.ConflictMissingFeature, Severity: domain.SeverityMedium,
	}}}
	server := newTestServer(t, evo)

	result, err := server.handleConflictsResource(context.Background(),
		readRequest("prdmachine://repos/acme/widgets/conflicts"))

	require.NoError(t, err)
	assert.True(t, evo.gotOpen)
	assert.Equal(t, "acme/widgets", evo.gotRepo)

	var out ConflictsOutput
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "missing-feature", out.Conflicts[0].Type)
}
