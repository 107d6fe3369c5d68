package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InitialVersion is the version of a newly tracked or generated document.
const InitialVersion = "1.0.0"

// TriggerType records what caused a version to be committed.
type TriggerType string

// Available trigger types.
const (
	TriggerInitial        TriggerType = "initial"
	TriggerExternalCommit TriggerType = "external-commit"
	TriggerExternalMerge  TriggerType = "external-merge"
	TriggerIssueOpened    TriggerType = "issue-opened"
	TriggerIssueClosed    TriggerType = "issue-closed"
	TriggerManualSync     TriggerType = "manual-sync"
	TriggerScheduled      TriggerType = "scheduled"
	TriggerHumanEdit      TriggerType = "human-edit"
	TriggerRevert         TriggerType = "revert"
	TriggerExport         TriggerType = "export"
)

// IsValid returns true if the trigger type is recognised.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerInitial, TriggerExternalCommit, TriggerExternalMerge,
		TriggerIssueOpened, TriggerIssueClosed, TriggerManualSync,
		TriggerScheduled, TriggerHumanEdit, TriggerRevert, TriggerExport:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t TriggerType) String() string {
	return string(t)
}

// DocumentVersion is an immutable snapshot of a document, one per committed change.
type DocumentVersion struct {
	// ID is the unique identifier for the version.
	ID string

	// StateID links to the owning DocumentState.
	StateID string

	// Version is the document version at this snapshot.
	Version string

	// Content is the full text at this snapshot.
	Content string

	// ContentHash is the fingerprint of Content.
	ContentHash string

	// ChangeSummary describes what changed.
	ChangeSummary string

	// TriggerType records what caused the change.
	TriggerType TriggerType

	// TriggerRef points at the causing event (commit id, issue number, ...).
	TriggerRef string

	// IsHumanEdit is true when a human authored the change.
	IsHumanEdit bool

	// RevertedTo references the version this one restores, if any.
	RevertedTo *string

	// CreatedAt orders versions of one state.
	CreatedAt time.Time
}

// NewVersion snapshots the state's current content, fingerprint and version.
// The snapshot always agrees with the state it was taken from.
func NewVersion(state *DocumentState, trigger TriggerType, ref, summary string, human bool) *DocumentVersion {
	return &DocumentVersion{
		StateID:       state.ID,
		Version:       state.Version,
		Content:       state.Content(),
		ContentHash:   state.ContentHash(),
		ChangeSummary: summary,
		TriggerType:   trigger,
		TriggerRef:    ref,
		IsHumanEdit:   human,
	}
}

// BumpType selects which semantic version component to increment.
type BumpType string

// Available bump types.
const (
	BumpMajor BumpType = "major"
	BumpMinor BumpType = "minor"
	BumpPatch BumpType = "patch"
)

// IsValid returns true if the bump type is recognised.
func (b BumpType) IsValid() bool {
	return b == BumpMajor || b == BumpMinor || b == BumpPatch
}

// ParseBumpType converts a string into a BumpType.
func ParseBumpType(s string) (BumpType, error) {
	b := BumpType(strings.ToLower(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("%w: bump type %q (want major, minor or patch)", ErrInvalidInput, s)
	}
	return b, nil
}

// ParseVersion splits a version into its three numeric components.
// ok is false unless the string is exactly three dot-separated
// non-negative integers.
func ParseVersion(v string) (major, minor, patch int, ok bool) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return 0, 0, 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}

// BumpVersion increments the requested component of current.
// A malformed current version is treated as InitialVersion.
func BumpVersion(current string, bump BumpType) string {
	major, minor, patch, ok := ParseVersion(current)
	if !ok {
		major, minor, patch = 1, 0, 0
	}

	switch bump {
	case BumpMajor:
		major++
		minor, patch = 0, 0
	case BumpMinor:
		minor++
		patch = 0
	default:
		patch++
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}
