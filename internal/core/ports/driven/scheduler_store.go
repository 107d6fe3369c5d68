package driven

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// SchedulerStore keeps the recurring tasks and their run history so that
// schedules survive restarts.
type SchedulerStore interface {
	// GetTask returns nil and no error when taskID is unknown.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask upserts by task ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends one run to the task's history.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns up to limit runs, newest first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps the newest keep runs of each task.
	PruneHistory(ctx context.Context, keep int) error
}
