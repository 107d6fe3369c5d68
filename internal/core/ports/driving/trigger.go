package driving

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// Trigger is an external occurrence routed to one document.
type Trigger struct {
	// Type classifies the occurrence.
	Type domain.EventType

	// Repo is the repository the trigger belongs to.
	Repo string

	// Path is the target document (default: the canonical path).
	Path string

	// Payload carries the event data. Recognised keys are listed below.
	Payload map[string]any
}

// Payload keys understood by trigger handling.
const (
	PayloadCommitID      = "commit_id"
	PayloadCommitMessage = "commit_message"
	PayloadNumber        = "number"
	PayloadAction        = "action"
	PayloadLabels        = "labels"
	PayloadTitle         = "title"
	PayloadChangedFiles  = "changed_files"
	PayloadBody          = "body"
	PayloadRef           = "ref"
)

// TriggerResult reports how a trigger was handled.
type TriggerResult struct {
	// Event is the recorded event.
	Event *domain.DocumentEvent

	// Version is set when the trigger produced a new version.
	Version *domain.DocumentVersion

	// Skipped is true when the trigger was recorded but caused no work.
	Skipped bool
}

// TriggerDispatcher accepts triggers for asynchronous processing.
type TriggerDispatcher interface {
	// Submit queues a trigger. It returns false if an identical trigger
	// is already pending for the same document.
	Submit(trigger Trigger) bool

	// Wait blocks until every submitted trigger has been processed
	// or the context is cancelled.
	Wait(ctx context.Context) error
}
