package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Change summaries written by the engine itself.
const (
	summaryInitialVersion = "Initial version"
	summaryGenerated      = "Initial PRD generation from repository analysis"
)

// DistillationEngine evolves documents with the text generator.
type DistillationEngine struct {
	store    driven.DocumentStore
	gen      driven.TextGenerator
	gatherer contextGatherer
	now      func() time.Time
}

// NewDistillationEngine creates a distillation engine.
// source may be nil, in which case no repository context is gathered.
func NewDistillationEngine(
	store driven.DocumentStore,
	gen driven.TextGenerator,
	source driven.ContentSource,
) *DistillationEngine {
	return &DistillationEngine{
		store:    store,
		gen:      gen,
		gatherer: contextGatherer{source: source},
		now:      time.Now,
	}
}

// Distill produces exactly one new version of state. On success state is
// updated in place; on failure it is left untouched and nothing is stored.
func (e *DistillationEngine) Distill(
	ctx context.Context,
	state *domain.DocumentState,
	req driving.DistillRequest,
) (*domain.DocumentVersion, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.TriggerManualSync
	}
	bump := req.Bump
	if bump == "" {
		bump = domain.BumpPatch
	}

	logger.Info("distilling %s (%s)", state.Key(), trigger)

	rc := e.gatherer.gather(ctx, state.Repo, req.Extra)
	evolved, err := generate(ctx, e.gen, distillSystemPrompt(), distillUserPrompt(state, rc, trigger))
	if err != nil {
		return nil, err
	}
	warnMissingSections(state.Key(), evolved)

	summary, err := e.changeSummary(ctx, state.Content(), evolved)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	next := *state
	next.SetContent(evolved)
	next.Version = domain.BumpVersion(state.Version, bump)
	next.LastDistilledAt = &now

	version := domain.NewVersion(&next, trigger, req.Ref, summary, false)
	if err := e.store.CommitVersion(ctx, &next, version); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}

	*state = next
	logger.Info("distilled %s to v%s", state.Key(), state.Version)
	return version, nil
}

// GenerateFromScratch writes a new canonical document at version 1.0.0.
// projectName defaults to a title-cased form of the repository name.
func (e *DistillationEngine) GenerateFromScratch(
	ctx context.Context,
	repo, projectName, path string,
) (*domain.DocumentState, error) {
	if projectName == "" {
		projectName = ProjectNameFromRepo(repo)
	}

	logger.Info("generating %s:%s from scratch for %q", repo, path, projectName)

	rc := e.gatherer.gatherExtended(ctx, repo)
	content, err := generate(ctx, e.gen, generateSystemPrompt(), generateUserPrompt(projectName, repo, rc))
	if err != nil {
		return nil, err
	}
	warnMissingSections(domain.DocumentKey{Repo: repo, Path: path}, content)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := e.store.GetOrCreate(ctx, repo, path, domain.DocumentDefaults{Type: domain.DocumentTypeCanonical})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	now := e.now()
	next := *state
	next.SetContent(content)
	next.Version = domain.InitialVersion
	next.LastDistilledAt = &now

	version := domain.NewVersion(&next, domain.TriggerInitial, "Generated from "+repo, summaryGenerated, false)
	if err := e.store.CommitVersion(ctx, &next, version); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}
	return &next, nil
}

// BumpVersion increments the requested component and persists it.
func (e *DistillationEngine) BumpVersion(
	ctx context.Context,
	state *domain.DocumentState,
	bump domain.BumpType,
) (string, error) {
	if !bump.IsValid() {
		return "", fmt.Errorf("%w: bump type %q", domain.ErrInvalidInput, bump)
	}

	next := *state
	next.Version = domain.BumpVersion(state.Version, bump)
	if err := e.store.SaveState(ctx, &next); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}

	*state = next
	logger.Info("bumped %s to v%s", state.Key(), state.Version)
	return state.Version, nil
}

func (e *DistillationEngine) changeSummary(ctx context.Context, oldContent, newContent string) (string, error) {
	if oldContent == "" {
		return summaryInitialVersion, nil
	}
	return generate(ctx, e.gen, changeSummarySystemPrompt, changeSummaryUserPrompt(oldContent, newContent))
}

// ProjectNameFromRepo turns "acme/widget-factory" into "Widget Factory".
func ProjectNameFromRepo(repo string) string {
	name := repo[strings.LastIndex(repo, "/")+1:]
	name = strings.ReplaceAll(name, "-", " ")
	return cases.Title(language.Und).String(name)
}

// warnMissingSections flags generated content lacking required markers.
// The content is still accepted.
func warnMissingSections(key domain.DocumentKey, content string) {
	if missing := domain.MissingSections(content); len(missing) > 0 {
		logger.Warn("%s: generated content is missing sections: %s", key, strings.Join(missing, ", "))
	}
}
