package domain

import "time"

// ExportType classifies an export operation.
type ExportType string

// Available export types.
const (
	ExportWorkItems   ExportType = "work-items"
	ExportChangelog   ExportType = "changelog"
	ExportVersionBump ExportType = "version-bump"
	ExportMilestone   ExportType = "milestone"
	ExportFull        ExportType = "full"
)

// IsValid returns true if the export type is recognised.
func (t ExportType) IsValid() bool {
	switch t {
	case ExportWorkItems, ExportChangelog, ExportVersionBump, ExportMilestone, ExportFull:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ExportType) String() string {
	return string(t)
}

// ExternalRef is an opaque reference returned by the issue tracker.
type ExternalRef struct {
	// ID identifies the created item in the tracker (e.g. an issue number).
	ID string `json:"id"`

	// URL is a display link for the item.
	URL string `json:"url,omitempty"`
}

// Details keys recorded on exports.
const (
	DetailItemsParsed = "itemsParsed"
	DetailChangelog   = "changelog"
	DetailVersion     = "version"
	DetailError       = "error"
)

// DocumentExport records the side effects of one export invocation.
type DocumentExport struct {
	// ID is the unique identifier for the export.
	ID string

	// StateID links to the owning DocumentState.
	StateID string

	// Type classifies the export.
	Type ExportType

	// ItemsCreated counts successful sink calls.
	ItemsCreated int

	// Details is a structured payload (parsed item count, changelog text, ...).
	Details map[string]any

	// ExternalRefs lists references in creation order.
	ExternalRefs []ExternalRef

	// CreatedAt is when the export ran.
	CreatedAt time.Time
}

// DetailString returns a string detail value, or "" if absent.
func (e *DocumentExport) DetailString(key string) string {
	if e.Details == nil {
		return ""
	}
	if v, ok := e.Details[key].(string); ok {
		return v
	}
	return ""
}

// DetailInt returns a numeric detail value, or 0 if absent. Values read
// back from JSON arrive as float64.
func (e *DocumentExport) DetailInt(key string) int {
	switch v := e.Details[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
