package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// DocumentType classifies a tracked document.
type DocumentType string

// Available document types.
const (
	// DocumentTypeCanonical is the source-of-truth specification (PRD.md).
	DocumentTypeCanonical DocumentType = "canonical"

	// DocumentTypeSummary is the README-style summary derived from the canonical document.
	DocumentTypeSummary DocumentType = "derived-summary"

	// DocumentTypePlan is the implementation plan derived from the canonical document.
	DocumentTypePlan DocumentType = "derived-plan"
)

// DerivedTypes lists the derived document types in alignment order.
var DerivedTypes = []DocumentType{DocumentTypeSummary, DocumentTypePlan}

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeCanonical, DocumentTypeSummary, DocumentTypePlan:
		return true
	default:
		return false
	}
}

// IsDerived returns true for types that reference a canonical parent.
func (t DocumentType) IsDerived() bool {
	return t == DocumentTypeSummary || t == DocumentTypePlan
}

// Label returns the short document label used in instructions and drift lines.
func (t DocumentType) Label() string {
	switch t {
	case DocumentTypeCanonical:
		return "PRD"
	case DocumentTypeSummary:
		return "README"
	case DocumentTypePlan:
		return "IP"
	default:
		return unknownDescription
	}
}

// Description returns a human-readable description of the type.
func (t DocumentType) Description() string {
	switch t {
	case DocumentTypeCanonical:
		return "Canonical specification"
	case DocumentTypeSummary:
		return "Derived summary (README)"
	case DocumentTypePlan:
		return "Derived implementation plan"
	default:
		return unknownDescription
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// DocumentKey identifies a document by repository and file path.
// It is unique across all tracked documents.
type DocumentKey struct {
	Repo string
	Path string
}

// String renders the key as repo:path.
func (k DocumentKey) String() string {
	return fmt.Sprintf("%s:%s", k.Repo, k.Path)
}

// DocumentState is the current, mutable head of one logical document.
//
// Content and its fingerprint are unexported so they can only change
// together through SetContent.
type DocumentState struct {
	// ID is the unique identifier for the state.
	ID string

	// Repo is the repository identifier (owner/name).
	Repo string

	// Path is the file path within the repository.
	Path string

	// Version is a three-component semantic version string.
	Version string

	// Type classifies the document.
	Type DocumentType

	// ParentID references the canonical state for derived documents.
	ParentID *string

	// IsLocked enables zero-touch mode: only the engine may change content.
	IsLocked bool

	// AutoEvolve controls whether triggers may distill this document.
	AutoEvolve bool

	// NotifyTarget is where conflict alerts are delivered (e.g. a webhook URL).
	NotifyTarget string

	// LastDistilledAt is the most recent successful distillation.
	LastDistilledAt *time.Time

	// LastSyncedAt is the most recent successful sync from the content source.
	LastSyncedAt *time.Time

	// LastAlignedAt is the most recent successful alignment to the canonical document.
	LastAlignedAt *time.Time

	// CreatedAt is when the state was first tracked.
	CreatedAt time.Time

	// UpdatedAt is when the state was last written.
	UpdatedAt time.Time

	content     string
	contentHash string
}

// NewDocumentState returns a state with the defaults used by get-or-create.
func NewDocumentState(repo, path string, defaults DocumentDefaults) *DocumentState {
	docType := defaults.Type
	if docType == "" {
		docType = DocumentTypeCanonical
	}
	s := &DocumentState{
		Repo:         repo,
		Path:         path,
		Version:      InitialVersion,
		Type:         docType,
		ParentID:     defaults.ParentID,
		AutoEvolve:   true,
		NotifyTarget: defaults.NotifyTarget,
	}
	s.SetContent("")
	return s
}

// Key returns the document's identity.
func (s *DocumentState) Key() DocumentKey {
	return DocumentKey{Repo: s.Repo, Path: s.Path}
}

// Content returns the current text.
func (s *DocumentState) Content() string {
	return s.content
}

// ContentHash returns the fingerprint of the current text.
func (s *DocumentState) ContentHash() string {
	if s.contentHash == "" {
		return HashContent(s.content)
	}
	return s.contentHash
}

// SetContent replaces the text and recomputes its fingerprint.
func (s *DocumentState) SetContent(content string) {
	s.content = content
	s.contentHash = HashContent(content)
}

// HasContent reports whether the document has any text.
func (s *DocumentState) HasContent() bool {
	return s.content != ""
}

// DocumentDefaults configures a state created by get-or-create.
type DocumentDefaults struct {
	// Type is the document type (default: canonical).
	Type DocumentType

	// ParentID references the canonical state for derived types.
	ParentID *string

	// NotifyTarget is the initial alert destination.
	NotifyTarget string
}

// StateFilter narrows a state listing.
type StateFilter struct {
	// Repo restricts results to one repository when set.
	Repo string

	// Type restricts results to one document type when set.
	Type DocumentType

	// AutoEvolveOnly excludes documents with AutoEvolve disabled.
	AutoEvolveOnly bool
}

// Matches reports whether a state passes the filter.
func (f StateFilter) Matches(s *DocumentState) bool {
	if f.Repo != "" && s.Repo != f.Repo {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.AutoEvolveOnly && !s.AutoEvolve {
		return false
	}
	return true
}
