package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Len(t, config.Tasks, len(TaskNames))
	assert.Equal(t, TaskConfig{Enabled: true, Interval: 24 * time.Hour}, config.Task(TaskIDDistill))
	assert.Equal(t, TaskConfig{Enabled: true, Interval: 6 * time.Hour}, config.Task(TaskIDConflictDetect))
	assert.False(t, config.Task(TaskIDDriftDetect).Enabled)
}

func TestSchedulerConfig_Task_Unknown(t *testing.T) {
	assert.Equal(t, TaskConfig{}, DefaultSchedulerConfig().Task("unknown-task"))
	assert.Equal(t, TaskConfig{}, SchedulerConfig{Enabled: true}.Task(TaskIDDistill))
}

func TestTaskIDs(t *testing.T) {
	assert.Equal(t, []string{TaskIDConflictDetect, TaskIDDriftDetect, TaskIDDistill}, TaskIDs())
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task ScheduledTask
		want bool
	}{
		{"never scheduled", ScheduledTask{Enabled: true}, true},
		{"next run passed", ScheduledTask{Enabled: true, NextRun: now.Add(-time.Second)}, true},
		{"next run now", ScheduledTask{Enabled: true, NextRun: now}, true},
		{"next run ahead", ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}, false},
		{"disabled", ScheduledTask{NextRun: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Due(now))
		})
	}
}

func TestScheduledTask_Record(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	task := &ScheduledTask{Interval: time.Hour, LastError: "old failure"}

	task.Record(&TaskResult{StartedAt: start, EndedAt: end, Success: true})

	assert.Equal(t, start, task.LastRun)
	assert.Equal(t, end.Add(time.Hour), task.NextRun)
	assert.Equal(t, end, task.LastOK)
	assert.Empty(t, task.LastError)

	task.Record(&TaskResult{StartedAt: end, EndedAt: end.Add(time.Second), Error: "source unavailable"})

	assert.Equal(t, "source unavailable", task.LastError)
	assert.Equal(t, end, task.LastOK, "failure keeps last success")
}

func TestTaskResult_Duration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &TaskResult{StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, 1500*time.Millisecond, r.Duration())
}
