package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Labels and markers applied to exported work items.
const (
	exportLabel     = "prd-generated"
	defaultPriority = "P1"
	itemTitlePrefix = "[PRD] "
	storySection    = "MVP"
)

// ExportCoordinator pushes canonical content into external trackers.
//
// Exports do not deduplicate: each invocation is a fresh attempt and may
// create items that an earlier export already created.
type ExportCoordinator struct {
	store   driven.DocumentStore
	gen     driven.TextGenerator
	tracker driven.IssueTracker
	decoder RecordDecoder
	now     func() time.Time
}

// NewExportCoordinator creates an export coordinator. tracker may be nil,
// which disables work-item export only.
func NewExportCoordinator(
	store driven.DocumentStore,
	gen driven.TextGenerator,
	tracker driven.IssueTracker,
	decoder RecordDecoder,
) *ExportCoordinator {
	if decoder == nil {
		decoder = DelimitedDecoder{}
	}
	return &ExportCoordinator{
		store:   store,
		gen:     gen,
		tracker: tracker,
		decoder: decoder,
		now:     time.Now,
	}
}

// ExportItems creates one tracker item per story in the MVP section.
// Exactly one export record is written on every path, listing only the
// items that were created; individual tracker failures are logged and
// skipped. When the tracker or generator is unavailable, or ctx ends, the
// record is still saved with the error under DetailError and the error is
// returned alongside it.
func (e *ExportCoordinator) ExportItems(ctx context.Context, state *domain.DocumentState) (*domain.DocumentExport, error) {
	export := &domain.DocumentExport{
		StateID:      state.ID,
		Type:         domain.ExportWorkItems,
		Details:      map[string]any{domain.DetailItemsParsed: 0},
		ExternalRefs: []domain.ExternalRef{},
	}

	if e.tracker == nil {
		return e.saveItems(ctx, state, export, domain.ErrIssueTrackerUnavailable)
	}

	logger.Info("exporting %s to work items", state.Key())

	mvp := domain.ExtractSection(state.Content(), storySection)
	out, err := generate(ctx, e.gen, storySystemPrompt(e.decoder.Format(storySpec)), storyUserPrompt(mvp))
	if err != nil {
		return e.saveItems(ctx, state, export, err)
	}

	records := e.decoder.Decode(out, storySpec)
	export.Details[domain.DetailItemsParsed] = len(records)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			break
		}
		title := itemTitlePrefix + rec.field(0)
		body := fmt.Sprintf("%s\n\n---\n_Auto-generated from PRD v%s_", rec.field(1), state.Version)
		priority := rec.field(2)
		if priority == "" {
			priority = defaultPriority
		}

		ref, err := e.tracker.CreateItem(ctx, state.Repo, title, body, []string{exportLabel, priority})
		if err != nil {
			logger.Warn("%s: create item %q failed: %v", state.Key(), title, err)
			continue
		}
		logger.Info("created item %s: %s", ref.ID, title)
		export.ExternalRefs = append(export.ExternalRefs, ref)
	}
	export.ItemsCreated = len(export.ExternalRefs)

	if err := ctx.Err(); err != nil {
		logger.Warn("%s: export cancelled after creating %d items", state.Key(), export.ItemsCreated)
		return e.saveItems(ctx, state, export, err)
	}
	return e.saveItems(ctx, state, export, nil)
}

// saveItems stores export and returns it with cause. The save outlives a
// cancelled ctx so items already created are never left unrecorded.
func (e *ExportCoordinator) saveItems(
	ctx context.Context,
	state *domain.DocumentState,
	export *domain.DocumentExport,
	cause error,
) (*domain.DocumentExport, error) {
	if cause != nil {
		export.Details[domain.DetailError] = cause.Error()
	}
	if err := e.store.SaveExport(context.WithoutCancel(ctx), export); err != nil {
		return nil, errors.Join(cause, fmt.Errorf("save export: %w", err))
	}
	if cause != nil {
		logger.Warn("%s: recorded empty or partial export: %v", state.Key(), cause)
		return export, cause
	}
	logger.Info("%s: exported %d of %d items", state.Key(), export.ItemsCreated, export.Details[domain.DetailItemsParsed])
	return export, nil
}

// ExportChangelog writes a changelog entry for targetVersion comparing the
// two most recent versions. With fewer than two versions it emits an
// initial-release entry without calling the generator.
func (e *ExportCoordinator) ExportChangelog(
	ctx context.Context,
	state *domain.DocumentState,
	targetVersion string,
) (*domain.DocumentExport, error) {
	if targetVersion == "" {
		targetVersion = state.Version
	}

	logger.Info("generating changelog for %s v%s", state.Key(), targetVersion)

	recent, err := e.store.ListVersions(ctx, state.ID, 2)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	var changelog string
	if len(recent) < 2 {
		changelog = fmt.Sprintf("## v%s\n\n- Initial release\n", targetVersion)
	} else {
		changelog, err = generate(ctx, e.gen, changelogSystemPrompt, changelogUserPrompt(recent[1], recent[0]))
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	export := &domain.DocumentExport{
		StateID:      state.ID,
		Type:         domain.ExportChangelog,
		ItemsCreated: 1,
		Details: map[string]any{
			domain.DetailChangelog: changelog,
			domain.DetailVersion:   targetVersion,
		},
	}
	if err := e.store.SaveExport(ctx, export); err != nil {
		return nil, fmt.Errorf("save export: %w", err)
	}
	return export, nil
}
