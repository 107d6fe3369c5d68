package driving

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// EvolutionService is the entry point for every document operation.
// Operations on the same document never overlap; different documents
// run independently.
type EvolutionService interface {
	// Status summarises one document.
	Status(ctx context.Context, repo, path string) (*DocumentStatus, error)

	// ListDocuments returns tracked documents.
	ListDocuments(ctx context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error)

	// ListVersions returns a document's history, newest first.
	ListVersions(ctx context.Context, repo, path string, limit int) ([]*domain.DocumentVersion, error)

	// SyncFromSource pulls the canonical file from the content source.
	// It returns a nil version when the content is unchanged.
	SyncFromSource(ctx context.Context, repo, path string) (*domain.DocumentVersion, error)

	// Distill evolves a document from repository context.
	Distill(ctx context.Context, repo, path string, req DistillRequest) (*domain.DocumentVersion, error)

	// Generate writes a canonical document from scratch.
	Generate(ctx context.Context, repo, projectName, path string) (*domain.DocumentState, error)

	// BumpVersion increments and persists a document's version.
	BumpVersion(ctx context.Context, repo, path string, bump domain.BumpType) (string, error)

	// DetectConflicts compares a document against the repository.
	DetectConflicts(ctx context.Context, repo, path string) ([]*domain.DocumentConflict, error)

	// ListConflicts returns a document's conflicts, newest first.
	ListConflicts(ctx context.Context, repo, path string, openOnly bool) ([]*domain.DocumentConflict, error)

	// ResolveConflict marks a conflict resolved.
	ResolveConflict(ctx context.Context, conflictID, resolvedBy string) (*domain.DocumentConflict, error)

	// SendAlert delivers one conflict alert and reports whether it was delivered.
	SendAlert(ctx context.Context, conflictID string) (bool, error)

	// SyncDerived aligns one derived document to the canonical document.
	SyncDerived(ctx context.Context, repo string, docType domain.DocumentType) (*domain.DocumentState, error)

	// AlignAll syncs the canonical document then every derived document.
	AlignAll(ctx context.Context, repo string) (*AlignResult, error)

	// DetectDrift compares the canonical document with its derived documents.
	DetectDrift(ctx context.Context, repo string) ([]*domain.DocumentConflict, error)

	// ExportItems creates tracker items from the canonical document's stories.
	ExportItems(ctx context.Context, repo, path string) (*domain.DocumentExport, error)

	// ExportChangelog produces a changelog entry for targetVersion
	// (the current version when empty).
	ExportChangelog(ctx context.Context, repo, path, targetVersion string) (*domain.DocumentExport, error)

	// SetLocked toggles zero-touch mode.
	SetLocked(ctx context.Context, repo, path string, locked bool) error

	// SetAutoEvolve toggles trigger-driven distillation.
	SetAutoEvolve(ctx context.Context, repo, path string, enabled bool) error

	// SetNotifyTarget sets where conflict alerts are delivered.
	SetNotifyTarget(ctx context.Context, repo, path, target string) error

	// ApplyHumanEdit writes human-authored content, subject to the lock.
	ApplyHumanEdit(ctx context.Context, repo, path, content string) (*domain.DocumentVersion, error)

	// Revert restores the content of an earlier version.
	Revert(ctx context.Context, repo, path, versionID string) (*domain.DocumentVersion, error)

	// HandleTrigger records and processes one trigger.
	HandleTrigger(ctx context.Context, trigger Trigger) (*TriggerResult, error)
}

// DistillRequest parameterises a distillation.
type DistillRequest struct {
	// Trigger records what caused the run (default: manual-sync).
	Trigger domain.TriggerType

	// Ref points at the causing event.
	Ref string

	// Extra is labelled free-form context added to the instruction
	// (e.g. "pr_title").
	Extra map[string]string

	// Bump selects the version component (default: patch).
	Bump domain.BumpType
}

// DocumentStatus summarises a document for display.
type DocumentStatus struct {
	State          *domain.DocumentState
	VersionCount   int
	OpenConflicts  int
	ExportCount    int
	LatestVersion  *domain.DocumentVersion
	RecentEvents   []*domain.DocumentEvent
	MissingSection []string
}

// AlignResult holds the outcome of AlignAll.
// A failed step leaves its state nil and records the error by type.
type AlignResult struct {
	Canonical *domain.DocumentState
	Derived   map[domain.DocumentType]*domain.DocumentState
	Errors    map[domain.DocumentType]error
}

// Err returns the first recorded error in alignment order, or nil.
func (r *AlignResult) Err() error {
	for _, t := range append([]domain.DocumentType{domain.DocumentTypeCanonical}, domain.DerivedTypes...) {
		if err := r.Errors[t]; err != nil {
			return err
		}
	}
	return nil
}
