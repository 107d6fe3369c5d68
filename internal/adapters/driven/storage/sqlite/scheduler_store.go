package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*schedulerStore)(nil)

type schedulerStore struct {
	store *Store
}

const (
	selectTask = `SELECT id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled
		FROM scheduled_tasks`

	upsertTask = `INSERT INTO scheduled_tasks
			(id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name             = excluded.name,
			interval_seconds = excluded.interval_seconds,
			last_run         = excluded.last_run,
			next_run         = excluded.next_run,
			last_error       = excluded.last_error,
			last_success     = excluded.last_success,
			enabled          = excluded.enabled`

	selectResult = `SELECT task_id, started_at, ended_at, success, error, items_processed
		FROM task_results`

	// Rank each task's results newest first and drop everything past keep.
	pruneResults = `DELETE FROM task_results WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY task_id ORDER BY started_at DESC, id DESC
				) AS pos
				FROM task_results
			) WHERE pos > ?
		)`
)

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	task, err := scanTask(s.store.db.QueryRowContext(ctx, selectTask+` WHERE id = ?`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", taskID, err)
	}
	return &task, nil
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, selectTask+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return collect(rows, scanTask)
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, upsertTask,
		task.ID,
		task.Name,
		int64(task.Interval/time.Second),
		formatNullableTime(task.LastRun),
		formatNullableTime(task.NextRun),
		nullString(task.LastError),
		formatNullableTime(task.LastOK),
		boolToInt(task.Enabled),
	)
	if err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes the task together with its run history.
func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM task_results WHERE task_id = ?`,
			`DELETE FROM scheduled_tasks WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, taskID); err != nil {
				return fmt.Errorf("deleting task %s: %w", taskID, err)
			}
		}
		return nil
	})
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx,
		`INSERT INTO task_results (task_id, started_at, ended_at, success, error, items_processed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		result.TaskID,
		formatTime(result.StartedAt),
		formatTime(result.EndedAt),
		boolToInt(result.Success),
		nullString(result.Error),
		result.Documents,
	)
	if err != nil {
		return fmt.Errorf("recording %s run: %w", result.TaskID, err)
	}
	return nil
}

// GetTaskHistory returns runs newest first. A limit of zero or less
// returns every recorded run.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	rows, err := s.store.db.QueryContext(ctx,
		selectResult+` WHERE task_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		taskID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("loading %s history: %w", taskID, err)
	}
	return collect(rows, scanResult)
}

func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if _, err := s.store.db.ExecContext(ctx, pruneResults, keep); err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (domain.ScheduledTask, error) {
	var (
		task             domain.ScheduledTask
		seconds          int64
		lastRun, nextRun sql.NullString
		lastErr, lastOK  sql.NullString
		enabled          int
	)
	if err := row.Scan(&task.ID, &task.Name, &seconds, &lastRun, &nextRun, &lastErr, &lastOK, &enabled); err != nil {
		return task, err
	}

	task.Interval = time.Duration(seconds) * time.Second
	task.LastRun = parseNullableTime(lastRun)
	task.NextRun = parseNullableTime(nextRun)
	task.LastError = lastErr.String
	task.LastOK = parseNullableTime(lastOK)
	task.Enabled = enabled == 1
	return task, nil
}

func scanResult(row scanner) (domain.TaskResult, error) {
	var (
		r              domain.TaskResult
		started, ended string
		success        int
		errMsg         sql.NullString
	)
	if err := row.Scan(&r.TaskID, &started, &ended, &success, &errMsg, &r.Documents); err != nil {
		return r, fmt.Errorf("scanning task result: %w", err)
	}

	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	r.Success = success == 1
	r.Error = errMsg.String
	return r, nil
}
