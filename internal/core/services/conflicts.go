package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// ConflictDetector finds inconsistencies between a document and its repository.
type ConflictDetector struct {
	store    driven.DocumentStore
	gen      driven.TextGenerator
	notifier driven.Notifier
	decoder  RecordDecoder
	gatherer contextGatherer
	now      func() time.Time
}

// NewConflictDetector creates a conflict detector. notifier may be nil.
func NewConflictDetector(
	store driven.DocumentStore,
	gen driven.TextGenerator,
	source driven.ContentSource,
	notifier driven.Notifier,
	decoder RecordDecoder,
) *ConflictDetector {
	if decoder == nil {
		decoder = DelimitedDecoder{}
	}
	return &ConflictDetector{
		store:    store,
		gen:      gen,
		notifier: notifier,
		decoder:  decoder,
		gatherer: contextGatherer{source: source},
		now:      time.Now,
	}
}

// Detect stores and returns the conflicts reported for state.
// An empty document has nothing to check.
func (d *ConflictDetector) Detect(ctx context.Context, state *domain.DocumentState) ([]*domain.DocumentConflict, error) {
	if !state.HasContent() {
		logger.Warn("%s: no content to check for conflicts", state.Key())
		return []*domain.DocumentConflict{}, nil
	}

	rc := d.gatherer.gather(ctx, state.Repo, nil)
	out, err := generate(ctx, d.gen, conflictSystemPrompt(d.decoder.Format(conflictSpec)), conflictUserPrompt(state.Content(), rc))
	if err != nil {
		return nil, err
	}

	conflicts := d.parseConflicts(state.ID, out)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if err := d.store.SaveConflicts(ctx, conflicts); err != nil {
			return nil, fmt.Errorf("save conflicts: %w", err)
		}
	}

	logger.Info("%s: detected %d conflicts", state.Key(), len(conflicts))
	return conflicts, nil
}

func (d *ConflictDetector) parseConflicts(stateID, out string) []*domain.DocumentConflict {
	records := d.decoder.Decode(out, conflictSpec)
	conflicts := make([]*domain.DocumentConflict, 0, len(records))
	for _, rec := range records {
		sev, err := domain.ParseSeverity(rec.field(1))
		if err != nil {
			logger.Debug("skipping conflict line with severity %q", rec.field(1))
			continue
		}
		conflicts = append(conflicts, &domain.DocumentConflict{
			StateID:             stateID,
			Type:                domain.ParseConflictType(rec.field(0)),
			Severity:            sev,
			SectionAffected:     rec.field(2),
			Description:         rec.field(3),
			SuggestedResolution: rec.field(4),
		})
	}
	return conflicts
}

// SendAlert delivers one conflict to the document's notification target and
// records confirmed delivery. It returns false without error when the document
// has no target or delivery fails.
func (d *ConflictDetector) SendAlert(
	ctx context.Context,
	state *domain.DocumentState,
	conflict *domain.DocumentConflict,
) (bool, error) {
	if state.NotifyTarget == "" || d.notifier == nil {
		logger.Warn("%s: no notification target configured", state.Key())
		return false, nil
	}

	if !d.notifier.Send(ctx, state.NotifyTarget, domain.NewAlertPayload(state.Repo, conflict)) {
		logger.Warn("%s: alert for conflict %s was not delivered", state.Key(), conflict.ID)
		return false, nil
	}

	next := *conflict
	next.Notified = true
	if err := d.store.UpdateConflict(ctx, &next); err != nil {
		return false, fmt.Errorf("update conflict: %w", err)
	}
	*conflict = next
	return true, nil
}

// AlertUrgent alerts every unnotified high or critical conflict and returns
// how many alerts were delivered.
func (d *ConflictDetector) AlertUrgent(
	ctx context.Context,
	state *domain.DocumentState,
	conflicts []*domain.DocumentConflict,
) (int, error) {
	sent := 0
	for _, c := range conflicts {
		if !c.Severity.IsUrgent() || c.Notified || c.Resolved {
			continue
		}
		ok, err := d.SendAlert(ctx, state, c)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// Resolve marks a conflict resolved by the named actor.
func (d *ConflictDetector) Resolve(ctx context.Context, conflict *domain.DocumentConflict, by string) error {
	next := *conflict
	if err := next.Resolve(by, d.now()); err != nil {
		return err
	}
	if err := d.store.UpdateConflict(ctx, &next); err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	*conflict = next
	return nil
}
