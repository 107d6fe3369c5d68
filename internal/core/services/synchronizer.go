package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

const summaryInitialSync = "Initial sync"

// CrossDocumentSynchronizer keeps derived documents aligned with the
// canonical document and detects drift between them. Propagation is one-way,
// canonical to derived.
type CrossDocumentSynchronizer struct {
	store   driven.DocumentStore
	gen     driven.TextGenerator
	source  driven.ContentSource
	decoder RecordDecoder
	paths   domain.RepositorySettings
	now     func() time.Time
}

// NewCrossDocumentSynchronizer creates a synchronizer for the configured document paths.
func NewCrossDocumentSynchronizer(
	store driven.DocumentStore,
	gen driven.TextGenerator,
	source driven.ContentSource,
	decoder RecordDecoder,
	paths domain.RepositorySettings,
) *CrossDocumentSynchronizer {
	if decoder == nil {
		decoder = DelimitedDecoder{}
	}
	return &CrossDocumentSynchronizer{
		store:   store,
		gen:     gen,
		source:  source,
		decoder: decoder,
		paths:   paths,
		now:     time.Now,
	}
}

// SyncCanonical pulls a document from the content source. When the fetched
// content hashes identically to the stored content no version is created
// and the returned version is nil.
func (s *CrossDocumentSynchronizer) SyncCanonical(
	ctx context.Context,
	repo, path string,
) (*domain.DocumentState, *domain.DocumentVersion, error) {
	if s.source == nil {
		return nil, nil, domain.ErrContentSourceUnavailable
	}

	state, err := s.store.GetOrCreate(ctx, repo, path, domain.DocumentDefaults{Type: domain.DocumentTypeCanonical})
	if err != nil {
		return nil, nil, fmt.Errorf("get document: %w", err)
	}

	content, err := s.source.FetchFile(ctx, repo, path)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", path, err)
	}

	now := s.now()
	next := *state
	next.LastSyncedAt = &now

	if domain.HashContent(content) == state.ContentHash() {
		logger.Info("%s unchanged", state.Key())
		if err := s.store.SaveState(ctx, &next); err != nil {
			return nil, nil, fmt.Errorf("save state: %w", err)
		}
		return &next, nil, nil
	}

	summary := summaryInitialSync
	if state.HasContent() {
		summary, err = s.syncSummary(ctx, state.Content(), content)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	next.SetContent(content)
	ref := "Synced from source at " + now.UTC().Format(time.RFC3339)
	version := domain.NewVersion(&next, domain.TriggerManualSync, ref, summary, false)
	if err := s.store.CommitVersion(ctx, &next, version); err != nil {
		return nil, nil, fmt.Errorf("commit version: %w", err)
	}

	logger.Info("synced %s from source", next.Key())
	return &next, version, nil
}

func (s *CrossDocumentSynchronizer) syncSummary(ctx context.Context, oldContent, newContent string) (string, error) {
	if s.gen == nil {
		return "Synced from source", nil
	}
	return generate(ctx, s.gen, changeSummarySystemPrompt, changeSummaryUserPrompt(oldContent, newContent))
}

// SyncDerived rewrites the canonical-derived sections of one derived
// document. A derived document missing from the content source is skipped
// and its stored state returned unchanged.
func (s *CrossDocumentSynchronizer) SyncDerived(
	ctx context.Context,
	canonical *domain.DocumentState,
	docType domain.DocumentType,
) (*domain.DocumentState, error) {
	if !docType.IsDerived() {
		return nil, fmt.Errorf("%w: %s is not a derived document type", domain.ErrInvalidInput, docType)
	}
	if s.source == nil {
		return nil, domain.ErrContentSourceUnavailable
	}
	if s.gen == nil {
		return nil, domain.ErrTransformerUnavailable
	}
	if !canonical.HasContent() {
		return nil, fmt.Errorf("%w: canonical document %s has no content", domain.ErrInvalidInput, canonical.Key())
	}

	path := s.paths.PathFor(docType)
	parentID := canonical.ID
	state, err := s.store.GetOrCreate(ctx, canonical.Repo, path, domain.DocumentDefaults{
		Type:     docType,
		ParentID: &parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	current, err := s.source.FetchFile(ctx, canonical.Repo, path)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("%s not found, cannot sync", state.Key())
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}

	system := summarySyncSystemPrompt()
	summary := fmt.Sprintf("Aligned with PRD v%s", canonical.Version)
	if docType == domain.DocumentTypePlan {
		system = planSyncSystemPrompt()
		summary = fmt.Sprintf("Aligned deliverables with PRD v%s", canonical.Version)
	}

	updated, err := generate(ctx, s.gen, system, derivedSyncUserPrompt(docType, path, current, canonical.Content()))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	next := *state
	next.Type = docType
	next.ParentID = &parentID
	next.LastAlignedAt = &now

	if domain.HashContent(updated) == state.ContentHash() {
		if err := s.store.SaveState(ctx, &next); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
		return &next, nil
	}

	if state.HasContent() {
		next.Version = domain.BumpVersion(state.Version, domain.BumpPatch)
	}
	next.SetContent(updated)

	ref := fmt.Sprintf("Synced from PRD v%s", canonical.Version)
	version := domain.NewVersion(&next, domain.TriggerManualSync, ref, summary, false)
	if err := s.store.CommitVersion(ctx, &next, version); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}

	logger.Info("%s aligned to PRD v%s", next.Key(), canonical.Version)
	return &next, nil
}

// DetectDrift compares the canonical document with every derived document
// that exists in the content source. Conflicts are owned by the canonical state.
func (s *CrossDocumentSynchronizer) DetectDrift(ctx context.Context, repo string) ([]*domain.DocumentConflict, error) {
	if s.source == nil {
		return nil, domain.ErrContentSourceUnavailable
	}
	if s.gen == nil {
		return nil, domain.ErrTransformerUnavailable
	}

	canonicalPath := s.paths.CanonicalPath
	canonical, err := s.source.FetchFile(ctx, repo, canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", canonicalPath, err)
	}

	labels := []string{domain.DocumentTypeCanonical.Label()}
	var derived []derivedDocument
	for _, t := range domain.DerivedTypes {
		path := s.paths.PathFor(t)
		content, err := s.source.FetchFile(ctx, repo, path)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("drift: %s:%s not found, skipped", repo, path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		derived = append(derived, derivedDocument{docType: t, path: path, content: content})
		labels = append(labels, t.Label())
	}
	if len(derived) == 0 {
		return []*domain.DocumentConflict{}, nil
	}

	out, err := generate(ctx, s.gen, driftSystemPrompt(labels, s.decoder.Format(driftSpec)), driftUserPrompt(canonicalPath, canonical, derived))
	if err != nil {
		return nil, err
	}

	state, err := s.store.GetOrCreate(ctx, repo, canonicalPath, domain.DocumentDefaults{Type: domain.DocumentTypeCanonical})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	conflicts := s.parseDrift(state.ID, out)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if err := s.store.SaveConflicts(ctx, conflicts); err != nil {
			return nil, fmt.Errorf("save conflicts: %w", err)
		}
	}

	logger.Info("%s: detected %d drift issues", repo, len(conflicts))
	return conflicts, nil
}

func (s *CrossDocumentSynchronizer) parseDrift(stateID, out string) []*domain.DocumentConflict {
	records := s.decoder.Decode(out, driftSpec)
	conflicts := make([]*domain.DocumentConflict, 0, len(records))
	for _, rec := range records {
		sev, err := domain.ParseSeverity(rec.field(2))
		if err != nil {
			logger.Debug("skipping drift line with severity %q", rec.field(2))
			continue
		}
		src, tgt, section := rec.field(0), rec.field(1), rec.field(3)

		conflictType := domain.ConflictOther
		if strings.Contains(strings.ToLower(section), "version") {
			conflictType = domain.ConflictVersionMismatch
		}

		conflicts = append(conflicts, &domain.DocumentConflict{
			StateID:             stateID,
			Type:                conflictType,
			Severity:            sev,
			SectionAffected:     fmt.Sprintf("%s↔%s: %s", src, tgt, section),
			Description:         rec.field(4),
			SuggestedResolution: fmt.Sprintf("Sync %s from %s", tgt, src),
		})
	}
	return conflicts
}
