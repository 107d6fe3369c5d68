package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

const (
	checkInterval = time.Minute
	historyKeep   = 100
	defaultFanOut = 4
)

// Scheduler runs the recurring distillation and detection tasks over
// every tracked canonical document.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	evo     driving.EvolutionService
	fanOut  int
	now     func() time.Time
	observe func(*domain.TaskResult)

	mu       sync.Mutex
	running  bool
	inflight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration. fanOut bounds how
// many documents one task processes at a time (default 4).
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	evo driving.EvolutionService,
	fanOut int,
) *Scheduler {
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}
	return &Scheduler{
		config:   config,
		store:    store,
		evo:      evo,
		fanOut:   fanOut,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// OnResult registers a callback invoked after every recorded task run.
// It must be called before Start.
func (s *Scheduler) OnResult(fn func(*domain.TaskResult)) {
	s.observe = fn
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// RunNow executes one task synchronously, outside its schedule.
// The run is recorded in the task history like a scheduled run. It fails
// with domain.ErrTaskRunning while the same task is still running.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) error {
	name, ok := domain.TaskNames[taskID]
	if !ok {
		return fmt.Errorf("%w: unknown task %q", domain.ErrInvalidInput, taskID)
	}
	if !s.claim(taskID) {
		return fmt.Errorf("%w: %s", domain.ErrTaskRunning, taskID)
	}
	defer s.release(taskID)

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		cfg := s.config.Task(taskID)
		task = &domain.ScheduledTask{ID: taskID, Name: name, Interval: cfg.Interval, Enabled: cfg.Enabled}
	}
	return s.execute(ctx, task)
}

// History implements driving.Scheduler.
func (s *Scheduler) History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if _, ok := domain.TaskNames[taskID]; !ok {
		return nil, fmt.Errorf("%w: unknown task %q", domain.ErrInvalidInput, taskID)
	}
	return s.store.GetTaskHistory(ctx, taskID, limit)
}

// initialiseTasks saves every enabled task and drops stored tasks whose
// id is no longer known.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	stored, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range stored {
		if _, ok := domain.TaskNames[task.ID]; ok {
			continue
		}
		logger.Debug("scheduler: removing retired task %s", task.ID)
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
	}

	for _, id := range domain.TaskIDs() {
		cfg := s.config.Task(id)
		if !cfg.Enabled {
			continue
		}
		if err := s.ensureTask(ctx, id, domain.TaskNames[id], cfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  s.now().Add(cfg.Interval),
		}
	} else {
		// Interval changed: recalculate next run from now
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = s.now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := &tasks[i]
		if task.Due(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background. A task whose previous
// run has not finished is skipped until a later tick.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	if !s.claim(task.ID) {
		logger.Debug("scheduler: task %s still running, skipping", task.ID)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(task.ID)
		if err := s.execute(ctx, task); err != nil {
			logger.Warn("scheduler: task %s failed: %v", task.ID, err)
		}
	}()
}

// claim marks id as running. It returns false if it already is.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// execute runs a task and records its outcome.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask) error {
	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: s.now(),
	}

	var err error
	switch task.ID {
	case domain.TaskIDDistill:
		result.Documents, err = s.runDistill(ctx)
	case domain.TaskIDConflictDetect:
		result.Documents, err = s.runConflictDetect(ctx)
	case domain.TaskIDDriftDetect:
		result.Documents, err = s.runDriftDetect(ctx)
	default:
		return fmt.Errorf("%w: unknown task %q", domain.ErrInvalidInput, task.ID)
	}

	result.EndedAt = s.now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	task.Record(result)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		logger.Error("scheduler: failed to save task %s: %v", task.ID, saveErr)
	}
	if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
		logger.Error("scheduler: failed to record result for %s: %v", task.ID, recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, historyKeep); pruneErr != nil {
		logger.Error("scheduler: failed to prune history: %v", pruneErr)
	}
	if s.observe != nil {
		s.observe(result)
	}

	logger.Info("scheduler: %s processed %d documents", task.ID, result.Documents)
	return err
}

// forEach runs fn over docs with bounded fan-out. Failures do not stop
// other documents; they are joined into the returned error.
func (s *Scheduler) forEach(
	ctx context.Context,
	docs []*domain.DocumentState,
	fn func(context.Context, *domain.DocumentState) error,
) (int, error) {
	var (
		mu        sync.Mutex
		processed int
		errs      []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, doc := range docs {
		g.Go(func() error {
			err := fn(gctx, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", doc.Key(), err))
			} else {
				processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	return processed, errors.Join(errs...)
}

func (s *Scheduler) canonicalDocs(ctx context.Context, autoEvolveOnly bool) ([]*domain.DocumentState, error) {
	if s.evo == nil {
		return nil, nil
	}
	return s.evo.ListDocuments(ctx, domain.StateFilter{
		Type:           domain.DocumentTypeCanonical,
		AutoEvolveOnly: autoEvolveOnly,
	})
}

// runDistill distills every auto-evolving canonical document.
func (s *Scheduler) runDistill(ctx context.Context) (int, error) {
	docs, err := s.canonicalDocs(ctx, true)
	if err != nil {
		return 0, err
	}

	ref := "Scheduled distillation at " + s.now().UTC().Format(time.RFC3339)
	return s.forEach(ctx, docs, func(ctx context.Context, doc *domain.DocumentState) error {
		_, err := s.evo.Distill(ctx, doc.Repo, doc.Path, driving.DistillRequest{
			Trigger: domain.TriggerScheduled,
			Ref:     ref,
		})
		return err
	})
}

// runConflictDetect detects conflicts in every canonical document and
// alerts on the urgent ones.
func (s *Scheduler) runConflictDetect(ctx context.Context) (int, error) {
	docs, err := s.canonicalDocs(ctx, false)
	if err != nil {
		return 0, err
	}

	return s.forEach(ctx, docs, func(ctx context.Context, doc *domain.DocumentState) error {
		if !doc.HasContent() {
			return nil
		}
		conflicts, err := s.evo.DetectConflicts(ctx, doc.Repo, doc.Path)
		if err != nil {
			return err
		}
		for _, c := range conflicts {
			if !c.Severity.IsUrgent() {
				continue
			}
			if _, err := s.evo.SendAlert(ctx, c.ID); err != nil {
				logger.Warn("scheduler: alert for conflict %s: %v", c.ID, err)
			}
		}
		return nil
	})
}

// runDriftDetect checks drift once per repository.
func (s *Scheduler) runDriftDetect(ctx context.Context) (int, error) {
	docs, err := s.canonicalDocs(ctx, false)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	perRepo := make([]*domain.DocumentState, 0, len(docs))
	for _, doc := range docs {
		if !seen[doc.Repo] {
			seen[doc.Repo] = true
			perRepo = append(perRepo, doc)
		}
	}

	return s.forEach(ctx, perRepo, func(ctx context.Context, doc *domain.DocumentState) error {
		_, err := s.evo.DetectDrift(ctx, doc.Repo)
		return err
	})
}
