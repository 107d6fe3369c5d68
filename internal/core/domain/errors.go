package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested document, version or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLockRejected indicates a human-originated write to a locked document.
	ErrLockRejected = errors.New("write rejected: document is locked")

	// ErrTransformer indicates the text generation call failed or
	// returned unusable output. No state is committed when it occurs.
	ErrTransformer = errors.New("text generation failed")

	// ErrTransformerUnavailable indicates no text generator is configured.
	// Distillation, detection, sync and export are disabled without one.
	ErrTransformerUnavailable = errors.New("text generator unavailable")

	// ErrContentSourceUnavailable indicates no repository content source is configured.
	ErrContentSourceUnavailable = errors.New("content source unavailable")

	// ErrIssueTrackerUnavailable indicates no issue tracker is configured.
	// Exports to work items are disabled without one.
	ErrIssueTrackerUnavailable = errors.New("issue tracker unavailable")

	// ErrConflictResolved indicates a conflict has already been resolved.
	ErrConflictResolved = errors.New("conflict already resolved")

	// ErrTaskRunning indicates a scheduled task is still running its
	// previous invocation.
	ErrTaskRunning = errors.New("task already running")
)
