package driving

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// Scheduler runs the recurring distillation and detection tasks.
type Scheduler interface {
	// Start runs due tasks until ctx ends or Stop is called.
	Start(ctx context.Context) error

	// Stop waits for in-flight runs to finish.
	Stop() error

	// RunNow executes one task immediately, outside its schedule.
	RunNow(ctx context.Context, taskID string) error

	// History returns a task's most recent runs, newest first.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
