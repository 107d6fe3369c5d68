package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func createState(t *testing.T, docs driven.DocumentStore, repo, path string) *domain.DocumentState {
	t.Helper()
	st, err := docs.GetOrCreate(context.Background(), repo, path, domain.DocumentDefaults{})
	require.NoError(t, err)
	return st
}

func commitContent(t *testing.T, docs driven.DocumentStore, st *domain.DocumentState, content string, human bool) *domain.DocumentVersion {
	t.Helper()
	st.SetContent(content)
	v := domain.NewVersion(st, domain.TriggerManualSync, "ref", "summary", human)
	require.NoError(t, docs.CommitVersion(context.Background(), st, v))
	return v
}

// ==================== Store Tests ====================

func TestNewStore_RunsMigrationsOnce(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	v, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, err = reopened.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Contains(t, reopened.Path(), dbFileName)
	assert.NoError(t, reopened.Ping(context.Background()))
}

// ==================== DocumentStore Tests ====================

func TestDocumentStore_GetOrCreate(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	first, err := docs.GetOrCreate(ctx, "acme/widgets", "README.md", domain.DocumentDefaults{
		Type:         domain.DocumentTypeSummary,
		NotifyTarget: "https://hooks.example/a",
	})
	require.NoError(t, err)

	second, err := docs.GetOrCreate(ctx, "acme/widgets", "README.md", domain.DocumentDefaults{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.DocumentTypeSummary, second.Type)
	assert.Equal(t, "https://hooks.example/a", second.NotifyTarget)
	assert.Equal(t, domain.InitialVersion, second.Version)
	assert.True(t, second.AutoEvolve)
	assert.False(t, second.IsLocked)
	assert.False(t, second.HasContent())
	assert.Equal(t, domain.HashContent(""), second.ContentHash())
}

func TestDocumentStore_GetOrCreate_Concurrent(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := docs.GetOrCreate(context.Background(), "acme/widgets", "PRD.md", domain.DocumentDefaults{})
			if assert.NoError(t, err) {
				mu.Lock()
				ids[st.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
}

func TestDocumentStore_Get_NotFound(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	_, err := docs.Get(ctx, "acme/widgets", "PRD.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = docs.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = docs.GetVersion(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = docs.GetConflict(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListStates(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	createState(t, docs, "b/repo", "PRD.md")
	_, err := docs.GetOrCreate(ctx, "a/repo", "IP.md", domain.DocumentDefaults{Type: domain.DocumentTypePlan})
	require.NoError(t, err)
	prd := createState(t, docs, "a/repo", "PRD.md")

	prd.AutoEvolve = false
	require.NoError(t, docs.SaveState(ctx, prd))

	all, err := docs.ListStates(ctx, domain.StateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "IP.md", all[0].Path)
	assert.Equal(t, "b/repo", all[2].Repo)

	byRepo, err := docs.ListStates(ctx, domain.StateFilter{Repo: "a/repo"})
	require.NoError(t, err)
	assert.Len(t, byRepo, 2)

	evolving, err := docs.ListStates(ctx, domain.StateFilter{Type: domain.DocumentTypeCanonical, AutoEvolveOnly: true})
	require.NoError(t, err)
	require.Len(t, evolving, 1)
	assert.Equal(t, "b/repo", evolving[0].Repo)
}

func TestDocumentStore_SaveState_DoesNotTouchContent(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	st := createState(t, docs, "acme/widgets", "PRD.md")
	commitContent(t, docs, st, "# PRD", false)

	synced := time.Now().UTC()
	next := *st
	next.SetContent("ignored")
	next.IsLocked = true
	next.NotifyTarget = "https://hooks.example/b"
	next.LastSyncedAt = &synced
	require.NoError(t, docs.SaveState(ctx, &next))

	stored, err := docs.GetByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "# PRD", stored.Content())
	assert.True(t, stored.IsLocked)
	assert.Equal(t, "https://hooks.example/b", stored.NotifyTarget)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, synced.Equal(*stored.LastSyncedAt))

	missing := *st
	missing.ID = "missing"
	assert.ErrorIs(t, docs.SaveState(ctx, &missing), domain.ErrNotFound)
}

func TestDocumentStore_CommitVersion(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	st := createState(t, docs, "acme/widgets", "PRD.md")
	st.Version = "1.0.1"
	v := commitContent(t, docs, st, "# PRD\n\n## WHY\nBecause.", false)

	assert.NotEmpty(t, v.ID)
	assert.False(t, v.CreatedAt.IsZero())

	stored, err := docs.Get(ctx, "acme/widgets", "PRD.md")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", stored.Version)
	assert.Equal(t, v.ContentHash, stored.ContentHash())

	got, err := docs.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", got.Version)
	assert.Equal(t, domain.TriggerManualSync, got.TriggerType)
	assert.Equal(t, "ref", got.TriggerRef)
	assert.Equal(t, "summary", got.ChangeSummary)
	assert.Nil(t, got.RevertedTo)
}

func TestDocumentStore_CommitVersion_MismatchWritesNothing(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	st := createState(t, docs, "acme/widgets", "PRD.md")
	st.SetContent("one")
	v := domain.NewVersion(st, domain.TriggerManualSync, "", "", false)
	st.SetContent("two")

	assert.ErrorIs(t, docs.CommitVersion(ctx, st, v), domain.ErrInvalidInput)

	versions, err := docs.ListVersions(ctx, st.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, versions)

	stored, err := docs.GetByID(ctx, st.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasContent())
}

func TestDocumentStore_CommitVersion_UnknownStateRollsBack(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	st := domain.NewDocumentState("acme/widgets", "PRD.md", domain.DocumentDefaults{})
	st.ID = "missing"
	st.SetContent("text")
	v := domain.NewVersion(st, domain.TriggerManualSync, "", "", false)

	assert.ErrorIs(t, docs.CommitVersion(ctx, st, v), domain.ErrNotFound)
	assert.Empty(t, v.ID)
}

func TestDocumentStore_Versions_OrderAndMachineLookup(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	st := createState(t, docs, "acme/widgets", "PRD.md")
	_, err := docs.LatestMachineVersion(ctx, st.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	commitContent(t, docs, st, "one", false)
	machine := commitContent(t, docs, st, "two", false)
	human := commitContent(t, docs, st, "three", true)

	all, err := docs.ListVersions(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, human.ID, all[0].ID)
	assert.True(t, all[0].IsHumanEdit)
	assert.Equal(t, "one", all[2].Content)

	limited, err := docs.ListVersions(ctx, st.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := docs.LatestMachineVersion(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, machine.ID, latest.ID)
}

func TestDocumentStore_RevertedTo(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	st := createState(t, docs, "acme/widgets", "PRD.md")
	original := commitContent(t, docs, st, "one", false)
	commitContent(t, docs, st, "two", false)

	st.SetContent("one")
	revert := domain.NewVersion(st, domain.TriggerRevert, original.ID, "Reverted", false)
	revert.RevertedTo = &original.ID
	require.NoError(t, docs.CommitVersion(ctx, st, revert))

	got, err := docs.GetVersion(ctx, revert.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevertedTo)
	assert.Equal(t, original.ID, *got.RevertedTo)
}

func TestDocumentStore_Events(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	st := createState(t, docs, "acme/widgets", "PRD.md")

	push := &domain.DocumentEvent{
		StateID: st.ID,
		Type:    domain.EventPush,
		Payload: map[string]any{"commit_id": "abc123", "changed_files": []any{"PRD.md"}},
	}
	require.NoError(t, docs.SaveEvent(ctx, push))
	release := &domain.DocumentEvent{StateID: st.ID, Type: domain.EventRelease}
	require.NoError(t, docs.SaveEvent(ctx, release))

	push.MarkProcessed("Distilled PRD to v1.0.1", time.Now())
	require.NoError(t, docs.SaveEvent(ctx, push))

	events, err := docs.ListEvents(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, release.ID, events[0].ID)
	assert.Empty(t, events[0].Payload)
	assert.True(t, events[1].Processed)
	assert.NotNil(t, events[1].ProcessedAt)
	assert.Equal(t, "abc123", events[1].PayloadString("commit_id"))

	ghost := &domain.DocumentEvent{ID: "missing"}
	assert.ErrorIs(t, docs.SaveEvent(ctx, ghost), domain.ErrNotFound)
}

func TestDocumentStore_Conflicts(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	st := createState(t, docs, "acme/widgets", "PRD.md")

	batch := []*domain.DocumentConflict{
		{StateID: st.ID, Type: domain.ConflictStaleReference, Severity: domain.SeverityMedium,
			SectionAffected: "API", Description: "v1 endpoint removed", SuggestedResolution: "Update API"},
		{StateID: st.ID, Type: domain.ConflictMissedDeadline, Severity: domain.SeverityCritical,
			Description: "Q1 passed"},
	}
	require.NoError(t, docs.SaveConflicts(ctx, batch))
	require.NotEmpty(t, batch[0].ID)

	all, err := docs.ListConflicts(ctx, domain.ConflictFilter{StateID: st.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, batch[1].ID, all[0].ID)
	assert.Equal(t, "API", all[1].SectionAffected)

	urgent, err := docs.ListConflicts(ctx, domain.ConflictFilter{StateID: st.ID, MinSeverity: domain.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, urgent, 1)

	now := time.Now()
	batch[0].Resolved = true
	batch[0].ResolvedAt = &now
	batch[0].ResolvedBy = "ana"
	batch[0].Notified = true
	require.NoError(t, docs.UpdateConflict(ctx, batch[0]))

	open, err := docs.ListConflicts(ctx, domain.ConflictFilter{StateID: st.ID, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, batch[1].ID, open[0].ID)

	got, err := docs.GetConflict(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.True(t, got.Notified)
	assert.Equal(t, "ana", got.ResolvedBy)

	ghost := &domain.DocumentConflict{ID: "missing"}
	assert.ErrorIs(t, docs.UpdateConflict(ctx, ghost), domain.ErrNotFound)
}

func TestDocumentStore_SaveConflicts_Atomic(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	st := createState(t, docs, "acme/widgets", "PRD.md")

	batch := []*domain.DocumentConflict{
		{StateID: st.ID, Type: domain.ConflictOther, Severity: domain.SeverityLow, Description: "ok"},
		{StateID: "missing", Type: domain.ConflictOther, Severity: domain.SeverityLow, Description: "orphan"},
	}
	err := docs.SaveConflicts(ctx, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, batch[0].ID)

	all, err := docs.ListConflicts(ctx, domain.ConflictFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDocumentStore_Exports(t *testing.T) {
	docs := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	st := createState(t, docs, "acme/widgets", "PRD.md")

	items := &domain.DocumentExport{
		StateID:      st.ID,
		Type:         domain.ExportWorkItems,
		ItemsCreated: 2,
		Details:      map[string]any{domain.DetailItemsParsed: 3},
		ExternalRefs: []domain.ExternalRef{{ID: "101", URL: "https://github.com/acme/widgets/issues/101"}},
	}
	require.NoError(t, docs.SaveExport(ctx, items))
	changelog := &domain.DocumentExport{
		StateID:      st.ID,
		Type:         domain.ExportChangelog,
		ItemsCreated: 1,
		Details:      map[string]any{domain.DetailChangelog: "## v1.0.0", domain.DetailVersion: "1.0.0"},
	}
	require.NoError(t, docs.SaveExport(ctx, changelog))

	exports, err := docs.ListExports(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, exports, 2)
	assert.Equal(t, domain.ExportChangelog, exports[0].Type)
	assert.Equal(t, "1.0.0", exports[0].DetailString(domain.DetailVersion))
	assert.Empty(t, exports[0].ExternalRefs)
	require.Len(t, exports[1].ExternalRefs, 1)
	assert.Equal(t, "101", exports[1].ExternalRefs[0].ID)
	assert.EqualValues(t, 3, exports[1].Details[domain.DetailItemsParsed])

	orphan := &domain.DocumentExport{StateID: "missing", Type: domain.ExportFull}
	assert.ErrorIs(t, docs.SaveExport(ctx, orphan), domain.ErrNotFound)
}
