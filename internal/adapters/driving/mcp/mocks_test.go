package mcp

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// mockEvolutionService records calls and returns canned results.
// Methods the tests never reach panic through the nil embedded interface.
type mockEvolutionService struct {
	driving.EvolutionService

	status    *driving.DocumentStatus
	docs      []*domain.DocumentState
	version   *domain.DocumentVersion
	conflicts []*domain.DocumentConflict
	align     *driving.AlignResult
	export    *domain.DocumentExport
	err       error

	gotRepo    string
	gotPath    string
	gotDistill driving.DistillRequest
	gotOpen    bool
}

func (m *mockEvolutionService) record(repo, path string) {
	m.gotRepo = repo
	m.gotPath = path
}

func (m *mockEvolutionService) Status(_ context.Context, repo, path string) (*driving.DocumentStatus, error) {
	m.record(repo, path)
	return m.status, m.err
}

func (m *mockEvolutionService) ListDocuments(_ context.Context, _ domain.StateFilter) ([]*domain.DocumentState, error) {
	return m.docs, m.err
}

func (m *mockEvolutionService) Distill(
	_ context.Context, repo, path string, req driving.DistillRequest,
) (*domain.DocumentVersion, error) {
	m.record(repo, path)
	m.gotDistill = req
	return m.version, m.err
}

func (m *mockEvolutionService) DetectConflicts(_ context.Context, repo, path string) ([]*domain.DocumentConflict, error) {
	m.record(repo, path)
	return m.conflicts, m.err
}

func (m *mockEvolutionService) ListConflicts(
	_ context.Context, repo, path string, openOnly bool,
) ([]*domain.DocumentConflict, error) {
	m.record(repo, path)
	m.gotOpen = openOnly
	return m.conflicts, m.err
}

func (m *mockEvolutionService) DetectDrift(_ context.Context, repo string) ([]*domain.DocumentConflict, error) {
	m.record(repo, "")
	return m.conflicts, m.err
}

func (m *mockEvolutionService) AlignAll(_ context.Context, repo string) (*driving.AlignResult, error) {
	m.record(repo, "")
	return m.align, m.err
}

func (m *mockEvolutionService) ExportItems(_ context.Context, repo, path string) (*domain.DocumentExport, error) {
	m.record(repo, path)
	return m.export, m.err
}
