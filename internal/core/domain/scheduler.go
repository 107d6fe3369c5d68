package domain

import (
	"sort"
	"time"
)

// Built-in scheduled tasks.
const (
	TaskIDDistill        = "prd-distill"
	TaskIDConflictDetect = "conflict-detect"
	TaskIDDriftDetect    = "drift-detect"
)

// TaskNames gives the display name of each built-in task.
var TaskNames = map[string]string{
	TaskIDDistill:        "Scheduled PRD distillation",
	TaskIDConflictDetect: "Conflict detection",
	TaskIDDriftDetect:    "Drift detection",
}

// TaskIDs returns the built-in task ids in sorted order.
func TaskIDs() []string {
	ids := make([]string, 0, len(TaskNames))
	for id := range TaskNames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ScheduledTask is the persisted schedule of one built-in task.
type ScheduledTask struct {
	ID       string
	Name     string
	Enabled  bool
	Interval time.Duration

	LastRun time.Time
	NextRun time.Time

	// LastOK is when the task last finished without error.
	LastOK    time.Time
	LastError string
}

// Due reports whether an enabled task should run at now. A task that has
// never been scheduled is always due.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// Record folds a finished run into the schedule and sets the next run one
// interval after it ended.
func (t *ScheduledTask) Record(r *TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastOK = r.EndedAt
		t.LastError = ""
	} else {
		t.LastError = r.Error
	}
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// Documents counts documents the run handled without error.
	Documents int
}

// Duration is the wall time of the run.
func (r *TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// TaskConfig enables and paces one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig is the scheduler's master switch and per-task settings.
type SchedulerConfig struct {
	Enabled bool
	Tasks   map[string]TaskConfig
}

// Task returns the settings for id, or the zero TaskConfig.
func (c SchedulerConfig) Task(id string) TaskConfig {
	return c.Tasks[id]
}

// DefaultSchedulerConfig distills daily and checks conflicts every six
// hours. Drift detection is off until enabled.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tasks: map[string]TaskConfig{
			TaskIDDistill:        {Enabled: true, Interval: 24 * time.Hour},
			TaskIDConflictDetect: {Enabled: true, Interval: 6 * time.Hour},
			TaskIDDriftDetect:    {Enabled: false, Interval: 24 * time.Hour},
		},
	}
}
