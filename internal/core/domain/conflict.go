package domain

import (
	"strings"
	"time"
)

// ConflictType classifies a detected inconsistency.
type ConflictType string

// Available conflict types.
const (
	ConflictStaleReference      ConflictType = "stale-reference"
	ConflictMissingFeature      ConflictType = "missing-feature"
	ConflictOrphanedRequirement ConflictType = "orphaned-requirement"
	ConflictMissedDeadline      ConflictType = "missed-deadline"
	ConflictVersionMismatch     ConflictType = "version-mismatch"
	ConflictMetricDrift         ConflictType = "metric-drift"
	ConflictDependencyChange    ConflictType = "dependency-change"
	ConflictOther               ConflictType = "other"
)

// conflictAliases maps the names text generators commonly emit onto known types.
var conflictAliases = map[string]ConflictType{
	"outdated-api":       ConflictStaleReference,
	"stale-api":          ConflictStaleReference,
	"orphan-requirement": ConflictOrphanedRequirement,
	"deadline-missed":    ConflictMissedDeadline,
}

// IsValid returns true if the conflict type is recognised.
func (t ConflictType) IsValid() bool {
	switch t {
	case ConflictStaleReference, ConflictMissingFeature, ConflictOrphanedRequirement,
		ConflictMissedDeadline, ConflictVersionMismatch, ConflictMetricDrift,
		ConflictDependencyChange, ConflictOther:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ConflictType) String() string {
	return string(t)
}

// ParseConflictType normalises a generated type name.
// Underscores and case are ignored; unrecognised names map to ConflictOther.
func ParseConflictType(s string) ConflictType {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	t := ConflictType(norm)
	if t.IsValid() {
		return t
	}
	if alias, ok := conflictAliases[norm]; ok {
		return alias
	}
	return ConflictOther
}

// Severity ranks a conflict's urgency.
type Severity string

// Available severities, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the severity is recognised.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Rank orders severities from 1 (low) to 4 (critical); 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsUrgent returns true for severities that are alerted automatically.
func (s Severity) IsUrgent() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity converts a generated severity name.
// Unlike conflict types, unknown severities are rejected.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", ErrInvalidInput
	}
	return sev, nil
}

// DocumentConflict is a detected inconsistency owned by one document.
type DocumentConflict struct {
	// ID is the unique identifier for the conflict.
	ID string

	// StateID links to the owning DocumentState.
	StateID string

	// Type classifies the conflict.
	Type ConflictType

	// Severity ranks its urgency.
	Severity Severity

	// SectionAffected names the document section (free text).
	SectionAffected string

	// Description explains the inconsistency.
	Description string

	// SuggestedResolution proposes a fix.
	SuggestedResolution string

	// Resolved is true once someone resolves the conflict explicitly.
	Resolved bool

	// ResolvedAt is when the conflict was resolved.
	ResolvedAt *time.Time

	// ResolvedBy names who resolved it.
	ResolvedBy string

	// Notified is true once an alert was delivered.
	Notified bool

	// CreatedAt is when the conflict was detected.
	CreatedAt time.Time
}

// Resolve marks the conflict resolved.
// It returns ErrConflictResolved if it already was.
func (c *DocumentConflict) Resolve(by string, at time.Time) error {
	if c.Resolved {
		return ErrConflictResolved
	}
	c.Resolved = true
	c.ResolvedAt = &at
	c.ResolvedBy = by
	return nil
}

// ConflictFilter narrows a conflict listing.
type ConflictFilter struct {
	// StateID restricts results to one document.
	StateID string

	// OpenOnly excludes resolved conflicts.
	OpenOnly bool

	// MinSeverity excludes conflicts ranked below it when set.
	MinSeverity Severity
}

// Matches reports whether a conflict passes the filter.
func (f ConflictFilter) Matches(c *DocumentConflict) bool {
	if f.StateID != "" && c.StateID != f.StateID {
		return false
	}
	if f.OpenOnly && c.Resolved {
		return false
	}
	if f.MinSeverity != "" && c.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	return true
}

// AlertPayload is the structured content of a conflict notification.
type AlertPayload struct {
	Repo        string
	Type        ConflictType
	Severity    Severity
	Section     string
	Description string
	Suggestion  string
}

// NewAlertPayload builds a payload from a conflict and its document's repository.
func NewAlertPayload(repo string, c *DocumentConflict) AlertPayload {
	return AlertPayload{
		Repo:        repo,
		Type:        c.Type,
		Severity:    c.Severity,
		Section:     c.SectionAffected,
		Description: c.Description,
		Suggestion:  c.SuggestedResolution,
	}
}
