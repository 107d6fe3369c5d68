package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// failingListStore fails every ListTasks call.
type failingListStore struct {
	*memory.SchedulerStore
}

func (failingListStore) ListTasks(context.Context) ([]domain.ScheduledTask, error) {
	return nil, errors.New("disk I/O error")
}

func newTestScheduler(t *testing.T) (*Scheduler, *memory.SchedulerStore, *harness) {
	t.Helper()
	h := newHarness(t)
	store := memory.NewSchedulerStore()
	return NewScheduler(domain.DefaultSchedulerConfig(), store, h.svc, 2), store, h
}

func history(t *testing.T, store driven.SchedulerStore, taskID string) []domain.TaskResult {
	t.Helper()
	runs, err := store.GetTaskHistory(context.Background(), taskID, 0)
	require.NoError(t, err)
	return runs
}

func TestNewScheduler_DefaultFanOut(t *testing.T) {
	s := NewScheduler(domain.DefaultSchedulerConfig(), memory.NewSchedulerStore(), nil, 0)
	assert.Equal(t, defaultFanOut, s.fanOut)
}

func TestScheduler_Lifecycle(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	require.NoError(t, scheduler.Stop(), "stop before start")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	require.Eventually(t, func() bool {
		task, _ := store.GetTask(ctx, domain.TaskIDDistill)
		return task != nil
	}, time.Second, 5*time.Millisecond, "start initialises tasks")

	assert.NoError(t, scheduler.Start(ctx), "second start returns at once")
	require.NoError(t, scheduler.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StartEndsWithContext(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, scheduler.Start(ctx), context.Canceled)
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	err := scheduler.initialiseTasks(ctx)
	require.NoError(t, err)

	distill, err := store.GetTask(ctx, domain.TaskIDDistill)
	require.NoError(t, err)
	require.NotNil(t, distill)
	assert.Equal(t, "Scheduled PRD distillation", distill.Name)
	assert.Equal(t, 24*time.Hour, distill.Interval)
	assert.True(t, distill.Enabled)

	conflicts, err := store.GetTask(ctx, domain.TaskIDConflictDetect)
	require.NoError(t, err)
	require.NotNil(t, conflicts)
	assert.Equal(t, 6*time.Hour, conflicts.Interval)

	// Drift detection is disabled by default.
	drift, err := store.GetTask(ctx, domain.TaskIDDriftDetect)
	require.NoError(t, err)
	assert.Nil(t, drift)
}

func TestScheduler_InitialiseTasks_RemovesRetired(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: "sync-sources", Interval: time.Hour}))

	require.NoError(t, scheduler.initialiseTasks(ctx))

	retired, err := store.GetTask(ctx, "sync-sources")
	require.NoError(t, err)
	assert.Nil(t, retired)
}

func TestScheduler_History(t *testing.T) {
	scheduler, _, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.source.put(testRepo, "PRD.md", completePRD("v1"))
	h.source.put(testRepo, "README.md", "# Widgets")

	require.NoError(t, scheduler.RunNow(ctx, domain.TaskIDDriftDetect))

	history, err := scheduler.History(ctx, domain.TaskIDDriftDetect, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TaskIDDriftDetect, history[0].TaskID)

	_, err = scheduler.History(ctx, "unknown-task", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return base }
	require.NoError(t, scheduler.ensureTask(ctx, domain.TaskIDDistill, "Distill", domain.TaskConfig{Enabled: true, Interval: time.Hour}))

	scheduler.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, scheduler.ensureTask(ctx, domain.TaskIDDistill, "Distill", domain.TaskConfig{Enabled: true, Interval: 2 * time.Hour}))

	task, err := store.GetTask(ctx, domain.TaskIDDistill)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
	assert.Equal(t, base.Add(130*time.Minute), task.NextRun, "next run recomputed from now")
}

func TestScheduler_RunDistill(t *testing.T) {
	scheduler, _, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.seedPath(t, "README.md", "summary")

	h.seedOther(t, "acme/paused", "PRD.md", completePRD("paused"))
	require.NoError(t, h.svc.SetAutoEvolve(ctx, "acme/paused", "", false))

	processed, err := scheduler.runDistill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	versions := h.versions(t, "PRD.md")
	require.Len(t, versions, 2)
	assert.Equal(t, domain.TriggerScheduled, versions[0].TriggerType)
	assert.Contains(t, versions[0].TriggerRef, "Scheduled distillation at ")
	assert.Len(t, h.versions(t, "README.md"), 1)
}

func TestScheduler_RunConflictDetect_AlertsUrgent(t *testing.T) {
	scheduler, _, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.gen.reply(kindConflict, "CONFLICT|other|low|UX|a|b\nCONFLICT|other|critical|ROAD|c|d")

	processed, err := scheduler.runConflictDetect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, domain.SeverityCritical, h.notifier.sent[0].Severity)
}

func TestScheduler_RunConflictDetect_JoinsErrors(t *testing.T) {
	scheduler, _, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.seedOther(t, "acme/gadgets", "PRD.md", completePRD("gadgets"))
	h.gen.fail(kindConflict, errors.New("overloaded"))

	processed, err := scheduler.runConflictDetect(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, processed)
	assert.Contains(t, err.Error(), "acme/widgets:PRD.md")
	assert.Contains(t, err.Error(), "acme/gadgets:PRD.md")
}

func TestScheduler_RunNow_RecordsHistory(t *testing.T) {
	scheduler, store, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.source.put(testRepo, "PRD.md", completePRD("v1"))
	h.source.put(testRepo, "README.md", "# Widgets")

	require.NoError(t, scheduler.RunNow(ctx, domain.TaskIDDriftDetect))

	runs := history(t, store, domain.TaskIDDriftDetect)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, 1, runs[0].Documents)
	assert.Equal(t, 1, h.gen.count(kindDrift))

	task, err := store.GetTask(ctx, domain.TaskIDDriftDetect)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.False(t, task.LastOK.IsZero())
	assert.True(t, task.NextRun.After(task.LastRun))

	err = scheduler.RunNow(ctx, "unknown-task")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestScheduler_RunNow_RecordsFailure(t *testing.T) {
	scheduler, store, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))
	h.gen.fail(kindDistill, errors.New("overloaded"))

	err := scheduler.RunNow(ctx, domain.TaskIDDistill)
	require.Error(t, err)

	runs := history(t, store, domain.TaskIDDistill)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
	assert.Contains(t, runs[0].Error, "overloaded")

	task, err := store.GetTask(ctx, domain.TaskIDDistill)
	require.NoError(t, err)
	assert.NotEmpty(t, task.LastError)
}

func TestScheduler_OnResult(t *testing.T) {
	scheduler, _, h := newTestScheduler(t)
	h.seed(t, completePRD("v1"))

	var observed []*domain.TaskResult
	scheduler.OnResult(func(r *domain.TaskResult) { observed = append(observed, r) })

	require.NoError(t, scheduler.RunNow(context.Background(), domain.TaskIDDistill))

	require.Len(t, observed, 1)
	assert.Equal(t, domain.TaskIDDistill, observed[0].TaskID)
	assert.True(t, observed[0].Success)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	scheduler, store, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))

	now := time.Now()
	dueTask := &domain.ScheduledTask{
		ID:       domain.TaskIDDistill,
		Name:     domain.TaskNames[domain.TaskIDDistill],
		Interval: 1 * time.Hour,
		NextRun:  now.Add(-time.Minute),
		Enabled:  true,
	}
	require.NoError(t, store.SaveTask(ctx, dueTask))

	notDue := &domain.ScheduledTask{
		ID:       domain.TaskIDConflictDetect,
		Name:     domain.TaskNames[domain.TaskIDConflictDetect],
		Interval: 1 * time.Hour,
		NextRun:  now.Add(time.Hour),
		Enabled:  true,
	}
	require.NoError(t, store.SaveTask(ctx, notDue))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, h.gen.count(kindDistill))
	assert.Equal(t, 0, h.gen.count(kindConflict))
}

func TestScheduler_SkipsTaskStillRunning(t *testing.T) {
	scheduler, store, h := newTestScheduler(t)
	ctx := context.Background()
	h.seed(t, completePRD("v1"))

	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	h.gen.hook = func(_ context.Context, kind promptKind) {
		if kind != kindDistill {
			return
		}
		started <- struct{}{}
		<-unblock
	}

	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDDistill,
		Name:     domain.TaskNames[domain.TaskIDDistill],
		Interval: time.Hour,
		NextRun:  time.Now().Add(-time.Minute),
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("distill task did not start")
	}

	// The task is still due in the store while its first run blocks.
	scheduler.checkAndRunDueTasks(ctx)
	assert.ErrorIs(t, scheduler.RunNow(ctx, domain.TaskIDDistill), domain.ErrTaskRunning)

	close(unblock)
	scheduler.wg.Wait()

	assert.Equal(t, 1, h.gen.count(kindDistill))
	assert.Len(t, history(t, store, domain.TaskIDDistill), 1)

	// Once finished the task may run again.
	require.NoError(t, scheduler.RunNow(ctx, domain.TaskIDDistill))
	assert.Equal(t, 2, h.gen.count(kindDistill))
}

func TestScheduler_CheckAndRunDueTasks_ListError(t *testing.T) {
	h := newHarness(t)
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), failingListStore{memory.NewSchedulerStore()}, h.svc, 1)

	scheduler.checkAndRunDueTasks(context.Background())
	scheduler.wg.Wait()

	assert.Equal(t, 0, h.gen.count(kindDistill))
}

func TestScheduler_NilEvolutionService(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), memory.NewSchedulerStore(), nil, 1)

	processed, err := scheduler.runDistill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}
