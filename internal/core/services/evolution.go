package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Ensure EvolutionService implements the interface.
var _ driving.EvolutionService = (*EvolutionService)(nil)

const recentEventLimit = 5

// EvolutionDeps wires the collaborators of an EvolutionService.
// Only Store is required.
type EvolutionDeps struct {
	Store     driven.DocumentStore
	Generator driven.TextGenerator
	Source    driven.ContentSource
	Tracker   driven.IssueTracker
	Notifier  driven.Notifier
	Decoder   RecordDecoder

	// Paths names the canonical and derived documents.
	Paths domain.RepositorySettings

	// NotifyTarget is the initial alert target of new documents.
	NotifyTarget string

	// Workers bounds concurrent operations across all documents.
	Workers int
}

// EvolutionService runs every document operation, serialised per document.
type EvolutionService struct {
	store        driven.DocumentStore
	distiller    *DistillationEngine
	detector     *ConflictDetector
	sync         *CrossDocumentSynchronizer
	exporter     *ExportCoordinator
	lock         *LockPolicy
	runner       *keyedRunner
	paths        domain.RepositorySettings
	notifyTarget string
}

// NewEvolutionService creates the service and its components.
func NewEvolutionService(deps EvolutionDeps) *EvolutionService {
	paths := deps.Paths
	defaults := domain.DefaultSettings().Repository
	if paths.CanonicalPath == "" {
		paths.CanonicalPath = defaults.CanonicalPath
	}
	if paths.SummaryPath == "" {
		paths.SummaryPath = defaults.SummaryPath
	}
	if paths.PlanPath == "" {
		paths.PlanPath = defaults.PlanPath
	}

	return &EvolutionService{
		store:        deps.Store,
		distiller:    NewDistillationEngine(deps.Store, deps.Generator, deps.Source),
		detector:     NewConflictDetector(deps.Store, deps.Generator, deps.Source, deps.Notifier, deps.Decoder),
		sync:         NewCrossDocumentSynchronizer(deps.Store, deps.Generator, deps.Source, deps.Decoder, paths),
		exporter:     NewExportCoordinator(deps.Store, deps.Generator, deps.Tracker, deps.Decoder),
		lock:         NewLockPolicy(deps.Store),
		runner:       newKeyedRunner(deps.Workers),
		paths:        paths,
		notifyTarget: deps.NotifyTarget,
	}
}

// setClock replaces the time source of every component.
func (s *EvolutionService) setClock(now func() time.Time) {
	s.distiller.now = now
	s.detector.now = now
	s.sync.now = now
	s.exporter.now = now
}

func (s *EvolutionService) pathOr(path string) string {
	if path == "" {
		return s.paths.CanonicalPath
	}
	return path
}

func (s *EvolutionService) typeForPath(path string) domain.DocumentType {
	switch path {
	case s.paths.SummaryPath:
		return domain.DocumentTypeSummary
	case s.paths.PlanPath:
		return domain.DocumentTypePlan
	default:
		return domain.DocumentTypeCanonical
	}
}

func (s *EvolutionService) defaultsFor(path string) domain.DocumentDefaults {
	return domain.DocumentDefaults{Type: s.typeForPath(path), NotifyTarget: s.notifyTarget}
}

func (s *EvolutionService) getOrCreate(ctx context.Context, repo, path string) (*domain.DocumentState, error) {
	if repo == "" {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	state, err := s.store.GetOrCreate(ctx, repo, path, s.defaultsFor(path))
	if err != nil {
		return nil, fmt.Errorf("get document %s:%s: %w", repo, path, err)
	}
	return state, nil
}

func (s *EvolutionService) get(ctx context.Context, repo, path string) (*domain.DocumentState, error) {
	state, err := s.store.Get(ctx, repo, path)
	if err != nil {
		return nil, fmt.Errorf("document %s:%s: %w", repo, path, err)
	}
	return state, nil
}

func (s *EvolutionService) withKey(ctx context.Context, repo, path string, fn func(context.Context) error) error {
	return s.runner.Do(ctx, domain.DocumentKey{Repo: repo, Path: path}, fn)
}

// Status summarises one document.
func (s *EvolutionService) Status(ctx context.Context, repo, path string) (*driving.DocumentStatus, error) {
	state, err := s.get(ctx, repo, s.pathOr(path))
	if err != nil {
		return nil, err
	}

	versions, err := s.store.ListVersions(ctx, state.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	open, err := s.store.ListConflicts(ctx, domain.ConflictFilter{StateID: state.ID, OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	exports, err := s.store.ListExports(ctx, state.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	events, err := s.store.ListEvents(ctx, state.ID, recentEventLimit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	status := &driving.DocumentStatus{
		State:         state,
		VersionCount:  len(versions),
		OpenConflicts: len(open),
		ExportCount:   len(exports),
		RecentEvents:  events,
	}
	if len(versions) > 0 {
		status.LatestVersion = versions[0]
	}
	if state.Type == domain.DocumentTypeCanonical && state.HasContent() {
		status.MissingSection = domain.MissingSections(state.Content())
	}
	return status, nil
}

// ListDocuments returns tracked documents.
func (s *EvolutionService) ListDocuments(ctx context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error) {
	return s.store.ListStates(ctx, filter)
}

// ListVersions returns a document's history, newest first.
func (s *EvolutionService) ListVersions(ctx context.Context, repo, path string, limit int) ([]*domain.DocumentVersion, error) {
	state, err := s.get(ctx, repo, s.pathOr(path))
	if err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, state.ID, limit)
}

// SyncFromSource pulls the document from the content source.
func (s *EvolutionService) SyncFromSource(ctx context.Context, repo, path string) (*domain.DocumentVersion, error) {
	path = s.pathOr(path)
	var version *domain.DocumentVersion
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		var err error
		_, version, err = s.sync.SyncCanonical(ctx, repo, path)
		return err
	})
	return version, err
}

// Distill evolves a document from repository context.
func (s *EvolutionService) Distill(
	ctx context.Context,
	repo, path string,
	req driving.DistillRequest,
) (*domain.DocumentVersion, error) {
	path = s.pathOr(path)
	var version *domain.DocumentVersion
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.getOrCreate(ctx, repo, path)
		if err != nil {
			return err
		}
		version, err = s.distiller.Distill(ctx, state, req)
		return err
	})
	return version, err
}

// Generate writes a canonical document from scratch.
func (s *EvolutionService) Generate(ctx context.Context, repo, projectName, path string) (*domain.DocumentState, error) {
	if repo == "" {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	path = s.pathOr(path)
	var state *domain.DocumentState
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		var err error
		state, err = s.distiller.GenerateFromScratch(ctx, repo, projectName, path)
		return err
	})
	return state, err
}

// BumpVersion increments and persists a document's version.
func (s *EvolutionService) BumpVersion(ctx context.Context, repo, path string, bump domain.BumpType) (string, error) {
	path = s.pathOr(path)
	var version string
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.get(ctx, repo, path)
		if err != nil {
			return err
		}
		version, err = s.distiller.BumpVersion(ctx, state, bump)
		return err
	})
	return version, err
}

// DetectConflicts compares a document against the repository.
func (s *EvolutionService) DetectConflicts(ctx context.Context, repo, path string) ([]*domain.DocumentConflict, error) {
	path = s.pathOr(path)
	var conflicts []*domain.DocumentConflict
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.getOrCreate(ctx, repo, path)
		if err != nil {
			return err
		}
		conflicts, err = s.detector.Detect(ctx, state)
		return err
	})
	return conflicts, err
}

// ListConflicts returns a document's conflicts, newest first.
func (s *EvolutionService) ListConflicts(ctx context.Context, repo, path string, openOnly bool) ([]*domain.DocumentConflict, error) {
	state, err := s.get(ctx, repo, s.pathOr(path))
	if err != nil {
		return nil, err
	}
	return s.store.ListConflicts(ctx, domain.ConflictFilter{StateID: state.ID, OpenOnly: openOnly})
}

// withConflict runs fn under the lock of the conflict's owning document,
// passing freshly loaded records.
func (s *EvolutionService) withConflict(
	ctx context.Context,
	conflictID string,
	fn func(context.Context, *domain.DocumentState, *domain.DocumentConflict) error,
) error {
	conflict, err := s.store.GetConflict(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("conflict %s: %w", conflictID, err)
	}
	owner, err := s.store.GetByID(ctx, conflict.StateID)
	if err != nil {
		return fmt.Errorf("conflict %s owner: %w", conflictID, err)
	}

	return s.withKey(ctx, owner.Repo, owner.Path, func(ctx context.Context) error {
		conflict, err := s.store.GetConflict(ctx, conflictID)
		if err != nil {
			return fmt.Errorf("conflict %s: %w", conflictID, err)
		}
		state, err := s.store.GetByID(ctx, conflict.StateID)
		if err != nil {
			return fmt.Errorf("conflict %s owner: %w", conflictID, err)
		}
		return fn(ctx, state, conflict)
	})
}

// ResolveConflict marks a conflict resolved.
func (s *EvolutionService) ResolveConflict(ctx context.Context, conflictID, resolvedBy string) (*domain.DocumentConflict, error) {
	if resolvedBy == "" {
		return nil, fmt.Errorf("%w: resolver name is required", domain.ErrInvalidInput)
	}
	var out *domain.DocumentConflict
	err := s.withConflict(ctx, conflictID, func(ctx context.Context, _ *domain.DocumentState, c *domain.DocumentConflict) error {
		if err := s.detector.Resolve(ctx, c, resolvedBy); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// SendAlert delivers one conflict alert.
func (s *EvolutionService) SendAlert(ctx context.Context, conflictID string) (bool, error) {
	var sent bool
	err := s.withConflict(ctx, conflictID, func(ctx context.Context, state *domain.DocumentState, c *domain.DocumentConflict) error {
		var err error
		sent, err = s.detector.SendAlert(ctx, state, c)
		return err
	})
	return sent, err
}

// AlertUrgent delivers alerts for the high and critical conflicts among
// the given ones, returning how many were delivered.
func (s *EvolutionService) AlertUrgent(ctx context.Context, conflicts []*domain.DocumentConflict) (int, error) {
	sent := 0
	for _, c := range conflicts {
		if !c.Severity.IsUrgent() {
			continue
		}
		ok, err := s.SendAlert(ctx, c.ID)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// SyncDerived aligns one derived document to the stored canonical document.
func (s *EvolutionService) SyncDerived(ctx context.Context, repo string, docType domain.DocumentType) (*domain.DocumentState, error) {
	if !docType.IsDerived() {
		return nil, fmt.Errorf("%w: %s is not a derived document type", domain.ErrInvalidInput, docType)
	}
	canonical, err := s.get(ctx, repo, s.paths.CanonicalPath)
	if err != nil {
		return nil, err
	}

	var state *domain.DocumentState
	err = s.withKey(ctx, repo, s.paths.PathFor(docType), func(ctx context.Context) error {
		var err error
		state, err = s.sync.SyncDerived(ctx, canonical, docType)
		return err
	})
	return state, err
}

// AlignAll syncs the canonical document from the source, then each derived
// document in turn. Steps are independent: a failure is recorded in
// result.Errors and completed steps stay committed. If the canonical sync
// fails the stored canonical document is used for the derived steps.
func (s *EvolutionService) AlignAll(ctx context.Context, repo string) (*driving.AlignResult, error) {
	if repo == "" {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	result := &driving.AlignResult{
		Derived: make(map[domain.DocumentType]*domain.DocumentState),
		Errors:  make(map[domain.DocumentType]error),
	}

	canonicalPath := s.paths.CanonicalPath
	err := s.withKey(ctx, repo, canonicalPath, func(ctx context.Context) error {
		state, _, err := s.sync.SyncCanonical(ctx, repo, canonicalPath)
		result.Canonical = state
		return err
	})
	if err != nil {
		result.Errors[domain.DocumentTypeCanonical] = err
		logger.Warn("align %s: canonical sync failed: %v", repo, err)
		if stored, getErr := s.store.Get(ctx, repo, canonicalPath); getErr == nil {
			result.Canonical = stored
		}
	}

	for _, t := range domain.DerivedTypes {
		if result.Canonical == nil {
			result.Errors[t] = fmt.Errorf("canonical document unavailable: %w", err)
			continue
		}
		err := s.withKey(ctx, repo, s.paths.PathFor(t), func(ctx context.Context) error {
			state, err := s.sync.SyncDerived(ctx, result.Canonical, t)
			if err == nil {
				result.Derived[t] = state
			}
			return err
		})
		if err != nil {
			result.Errors[t] = err
			logger.Warn("align %s: %s sync failed: %v", repo, t, err)
		}
	}

	return result, nil
}

// DetectDrift compares the canonical document with its derived documents.
func (s *EvolutionService) DetectDrift(ctx context.Context, repo string) ([]*domain.DocumentConflict, error) {
	if repo == "" {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	var conflicts []*domain.DocumentConflict
	err := s.withKey(ctx, repo, s.paths.CanonicalPath, func(ctx context.Context) error {
		var err error
		conflicts, err = s.sync.DetectDrift(ctx, repo)
		return err
	})
	return conflicts, err
}

// ExportItems creates tracker items from the canonical document's stories.
func (s *EvolutionService) ExportItems(ctx context.Context, repo, path string) (*domain.DocumentExport, error) {
	path = s.pathOr(path)
	var export *domain.DocumentExport
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.get(ctx, repo, path)
		if err != nil {
			return err
		}
		export, err = s.exporter.ExportItems(ctx, state)
		return err
	})
	return export, err
}

// ExportChangelog produces a changelog entry.
func (s *EvolutionService) ExportChangelog(ctx context.Context, repo, path, targetVersion string) (*domain.DocumentExport, error) {
	path = s.pathOr(path)
	var export *domain.DocumentExport
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.get(ctx, repo, path)
		if err != nil {
			return err
		}
		export, err = s.exporter.ExportChangelog(ctx, state, targetVersion)
		return err
	})
	return export, err
}

func (s *EvolutionService) updateState(ctx context.Context, repo, path string, mutate func(*domain.DocumentState)) error {
	path = s.pathOr(path)
	return s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.getOrCreate(ctx, repo, path)
		if err != nil {
			return err
		}
		mutate(state)
		if err := s.store.SaveState(ctx, state); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		return nil
	})
}

// SetLocked toggles zero-touch mode.
func (s *EvolutionService) SetLocked(ctx context.Context, repo, path string, locked bool) error {
	return s.updateState(ctx, repo, path, func(st *domain.DocumentState) { st.IsLocked = locked })
}

// SetAutoEvolve toggles trigger-driven distillation.
func (s *EvolutionService) SetAutoEvolve(ctx context.Context, repo, path string, enabled bool) error {
	return s.updateState(ctx, repo, path, func(st *domain.DocumentState) { st.AutoEvolve = enabled })
}

// SetNotifyTarget sets where conflict alerts are delivered.
func (s *EvolutionService) SetNotifyTarget(ctx context.Context, repo, path, target string) error {
	return s.updateState(ctx, repo, path, func(st *domain.DocumentState) { st.NotifyTarget = target })
}

// ApplyHumanEdit writes human-authored content. Locked documents reject
// edits that differ from the latest machine version with an error wrapping
// domain.ErrLockRejected. Identical content creates no version.
func (s *EvolutionService) ApplyHumanEdit(ctx context.Context, repo, path, content string) (*domain.DocumentVersion, error) {
	path = s.pathOr(path)
	var version *domain.DocumentVersion
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.getOrCreate(ctx, repo, path)
		if err != nil {
			return err
		}

		decision, err := s.lock.CheckWrite(ctx, state, content, domain.OriginHuman)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return fmt.Errorf("%w: %s", domain.ErrLockRejected, decision.Reason)
		}
		if domain.HashContent(content) == state.ContentHash() {
			return nil
		}

		next := *state
		if state.HasContent() {
			next.Version = domain.BumpVersion(state.Version, domain.BumpPatch)
		}
		next.SetContent(content)

		version = domain.NewVersion(&next, domain.TriggerHumanEdit, "manual edit", "Human edit", true)
		if err := s.store.CommitVersion(ctx, &next, version); err != nil {
			return fmt.Errorf("commit version: %w", err)
		}
		return nil
	})
	return version, err
}

// Revert restores the content of an earlier version as a new machine
// version. Reverting to the current content creates no version.
func (s *EvolutionService) Revert(ctx context.Context, repo, path, versionID string) (*domain.DocumentVersion, error) {
	path = s.pathOr(path)
	var version *domain.DocumentVersion
	err := s.withKey(ctx, repo, path, func(ctx context.Context) error {
		state, err := s.get(ctx, repo, path)
		if err != nil {
			return err
		}
		target, err := s.store.GetVersion(ctx, versionID)
		if err != nil {
			return fmt.Errorf("version %s: %w", versionID, err)
		}
		if target.StateID != state.ID {
			return fmt.Errorf("%w: version %s belongs to another document", domain.ErrInvalidInput, versionID)
		}
		if target.ContentHash == state.ContentHash() {
			return nil
		}

		next := *state
		next.SetContent(target.Content)
		next.Version = domain.BumpVersion(state.Version, domain.BumpPatch)

		targetID := target.ID
		version = domain.NewVersion(&next, domain.TriggerRevert, versionID,
			fmt.Sprintf("Reverted to v%s", target.Version), false)
		version.RevertedTo = &targetID
		if err := s.store.CommitVersion(ctx, &next, version); err != nil {
			return fmt.Errorf("commit version: %w", err)
		}
		return nil
	})
	return version, err
}

// IsRetryable reports whether an operation error may succeed on retry.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrLockRejected),
		errors.Is(err, domain.ErrTransformerUnavailable),
		errors.Is(err, domain.ErrContentSourceUnavailable),
		errors.Is(err, domain.ErrIssueTrackerUnavailable):
		return false
	default:
		return true
	}
}
