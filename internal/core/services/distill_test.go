package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

func TestDistill_CommitsOneVersion(t *testing.T) {
	h := newHarness(t)
	h.seed(t, completePRD("v1"))
	h.source.put(testRepo, "go.mod", "module example.com/widgets")

	v, err := h.svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{
		Trigger: domain.TriggerExternalCommit,
		Ref:     "abc123",
		Extra:   map[string]string{"commit_message": "add api endpoint"},
	})
	require.NoError(t, err)

	assert.Equal(t, "1.0.1", v.Version)
	assert.Equal(t, domain.TriggerExternalCommit, v.TriggerType)
	assert.Equal(t, "abc123", v.TriggerRef)
	assert.Equal(t, "Refined the MVP stories.", v.ChangeSummary)
	assert.False(t, v.IsHumanEdit)

	st, err := h.store.Get(context.Background(), testRepo, "PRD.md")
	require.NoError(t, err)
	assert.Equal(t, completePRD("evolved"), st.Content())
	assert.Equal(t, v.ContentHash, st.ContentHash())
	assert.NotNil(t, st.LastDistilledAt)
	assert.Len(t, h.versions(t, "PRD.md"), 2)

	user := h.gen.lastUser(kindDistill)
	assert.Contains(t, user, "=== go.mod ===")
	assert.Contains(t, user, "=== commit_message ===")
	assert.Contains(t, user, "Trigger: external-commit")
}

func TestDistill_FirstContentUsesInitialSummary(t *testing.T) {
	h := newHarness(t)

	v, err := h.svc.Distill(context.Background(), testRepo, "PRD.md", driving.DistillRequest{})
	require.NoError(t, err)

	assert.Equal(t, summaryInitialVersion, v.ChangeSummary)
	assert.Equal(t, domain.TriggerManualSync, v.TriggerType)
	assert.Equal(t, 0, h.gen.count(kindSummarize))
}

func TestDistill_BumpComponents(t *testing.T) {
	for bump, want := range map[domain.BumpType]string{
		domain.BumpPatch: "1.0.1",
		domain.BumpMinor: "1.1.0",
		domain.BumpMajor: "2.0.0",
	} {
		t.Run(string(bump), func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "old")

			v, err := h.svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{Bump: bump})
			require.NoError(t, err)
			assert.Equal(t, want, v.Version)
		})
	}
}

func TestDistill_GeneratorFailureWritesNothing(t *testing.T) {
	for _, kind := range []promptKind{kindDistill, kindSummarize} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t)
			before := h.seed(t, "old")
			h.gen.fail(kind, errors.New("upstream 500"))

			_, err := h.svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTransformer)

			st, err := h.store.Get(context.Background(), testRepo, "PRD.md")
			require.NoError(t, err)
			assert.Equal(t, before.ContentHash(), st.ContentHash())
			assert.Equal(t, before.Version, st.Version)
			assert.Len(t, h.versions(t, "PRD.md"), 1)
		})
	}
}

func TestDistill_EmptyResponseIsTransformerError(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "old")
	h.gen.reply(kindDistill, "   ")

	_, err := h.svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{})
	assert.ErrorIs(t, err, domain.ErrTransformer)
	assert.Len(t, h.versions(t, "PRD.md"), 1)
}

func TestDistill_CancelledAfterGenerationWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "old")

	ctx, cancel := context.WithCancel(context.Background())
	h.gen.hook = func(_ context.Context, kind promptKind) {
		if kind == kindSummarize {
			cancel()
		}
	}

	_, err := h.svc.Distill(ctx, testRepo, "", driving.DistillRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.versions(t, "PRD.md"), 1)
}

func TestDistill_NoGenerator(t *testing.T) {
	h := newHarness(t)
	svc := NewEvolutionService(EvolutionDeps{Store: h.store})

	_, err := svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{})
	assert.ErrorIs(t, err, domain.ErrTransformerUnavailable)
}

func TestDistill_StripsCodeFence(t *testing.T) {
	h := newHarness(t)
	h.gen.reply(kindDistill, "```markdown\n# PRD\n\n## WHY\nBecause.\n```")

	_, err := h.svc.Distill(context.Background(), testRepo, "", driving.DistillRequest{})
	require.NoError(t, err)

	st, err := h.store.Get(context.Background(), testRepo, "PRD.md")
	require.NoError(t, err)
	assert.Equal(t, "# PRD\n\n## WHY\nBecause.", st.Content())
}

func TestGenerate_FromScratch(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "previous draft")
	h.source.put(testRepo, "CHANGELOG.md", "## 0.1.0")

	st, err := h.svc.Generate(context.Background(), testRepo, "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.InitialVersion, st.Version)
	assert.Equal(t, completePRD("generated"), st.Content())

	versions := h.versions(t, "PRD.md")
	require.Len(t, versions, 2)
	assert.Equal(t, domain.TriggerInitial, versions[0].TriggerType)
	assert.Equal(t, "Generated from "+testRepo, versions[0].TriggerRef)
	assert.Equal(t, summaryGenerated, versions[0].ChangeSummary)

	user := h.gen.lastUser(kindGenerate)
	assert.Contains(t, user, "Project: Widgets")
	assert.Contains(t, user, "=== CHANGELOG.md ===")
}

func TestGenerate_RequiresRepo(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Generate(context.Background(), "", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBumpVersion(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "content")
	ctx := context.Background()

	v, err := h.svc.BumpVersion(ctx, testRepo, "", domain.BumpMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v)

	v, err = h.svc.BumpVersion(ctx, testRepo, "", domain.BumpMajor)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v)

	st, err := h.store.Get(ctx, testRepo, "PRD.md")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", st.Version)
	assert.Equal(t, "content", st.Content())
	assert.Len(t, h.versions(t, "PRD.md"), 1)

	_, err = h.svc.BumpVersion(ctx, testRepo, "", domain.BumpType("huge"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.BumpVersion(ctx, testRepo, "missing.md", domain.BumpPatch)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectNameFromRepo(t *testing.T) {
	assert.Equal(t, "Widget Factory", ProjectNameFromRepo("acme/widget-factory"))
	assert.Equal(t, "Tools", ProjectNameFromRepo("tools"))
}
