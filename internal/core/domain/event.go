package domain

import "time"

// EventType classifies a trigger occurrence.
type EventType string

// Available event types.
const (
	EventPush       EventType = "push"
	EventMerge      EventType = "merge"
	EventItemOpened EventType = "item-opened"
	EventItemClosed EventType = "item-closed"
	EventRelease    EventType = "release"
	EventManual     EventType = "manual"
)

// IsValid returns true if the event type is recognised.
func (t EventType) IsValid() bool {
	switch t {
	case EventPush, EventMerge, EventItemOpened, EventItemClosed, EventRelease, EventManual:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// ParseEventType converts a string into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.IsValid() {
		return "", ErrInvalidInput
	}
	return t, nil
}

// DocumentEvent is a log entry for a trigger considered for evolution,
// recorded whether or not it caused a version.
type DocumentEvent struct {
	// ID is the unique identifier for the event.
	ID string

	// StateID links to the document the trigger was routed to.
	StateID string

	// Type is the trigger type.
	Type EventType

	// Payload is the opaque trigger data.
	Payload map[string]any

	// Processed is true once handling completed (success or no-op).
	Processed bool

	// ProcessedAt is when handling completed.
	ProcessedAt *time.Time

	// Result describes what happened or why the trigger was skipped.
	Result string

	// CreatedAt is when the trigger arrived.
	CreatedAt time.Time
}

// MarkProcessed records the outcome of handling.
// It returns false if the event was already processed.
func (e *DocumentEvent) MarkProcessed(result string, at time.Time) bool {
	if e.Processed {
		return false
	}
	e.Processed = true
	e.ProcessedAt = &at
	e.Result = result
	return true
}

// PayloadString returns a string payload value, or "" if absent.
func (e *DocumentEvent) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}
