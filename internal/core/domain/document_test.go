package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDocumentState_Defaults(t *testing.T) {
	s := NewDocumentState("acme/widgets", "PRD.md", DocumentDefaults{})

	assert.Equal(t, "acme/widgets", s.Repo)
	assert.Equal(t, "PRD.md", s.Path)
	assert.Equal(t, InitialVersion, s.Version)
	assert.Equal(t, DocumentTypeCanonical, s.Type)
	assert.True(t, s.AutoEvolve)
	assert.False(t, s.IsLocked)
	assert.Empty(t, s.Content())
	assert.Equal(t, HashContent(""), s.ContentHash())
	assert.Nil(t, s.ParentID)
}

func TestNewDocumentState_Derived(t *testing.T) {
	parent := "state-1"
	s := NewDocumentState("acme/widgets", "README.md", DocumentDefaults{
		Type:         DocumentTypeSummary,
		ParentID:     &parent,
		NotifyTarget: "https://hooks.example.com/x",
	})

	assert.Equal(t, DocumentTypeSummary, s.Type)
	assert.Equal(t, &parent, s.ParentID)
	assert.Equal(t, "https://hooks.example.com/x", s.NotifyTarget)
}

func TestDocumentState_SetContentRecomputesHash(t *testing.T) {
	s := NewDocumentState("acme/widgets", "PRD.md", DocumentDefaults{})

	s.SetContent("# PRD\n")
	assert.Equal(t, HashContent("# PRD\n"), s.ContentHash())
	assert.True(t, s.HasContent())

	s.SetContent("# PRD v2\n")
	assert.Equal(t, HashContent("# PRD v2\n"), s.ContentHash())
}

func TestDocumentState_ZeroValueHash(t *testing.T) {
	var s DocumentState
	assert.Equal(t, HashContent(""), s.ContentHash())
}

func TestDocumentState_Key(t *testing.T) {
	s := NewDocumentState("acme/widgets", "PRD.md", DocumentDefaults{})
	assert.Equal(t, DocumentKey{Repo: "acme/widgets", Path: "PRD.md"}, s.Key())
	assert.Equal(t, "acme/widgets:PRD.md", s.Key().String())
}

func TestDocumentType(t *testing.T) {
	tests := []struct {
		docType DocumentType
		valid   bool
		derived bool
		label   string
	}{
		{DocumentTypeCanonical, true, false, "PRD"},
		{DocumentTypeSummary, true, true, "README"},
		{DocumentTypePlan, true, true, "IP"},
		{DocumentType("bogus"), false, false, unknownDescription},
	}

	for _, tt := range tests {
		t.Run(string(tt.docType), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.docType.IsValid())
			assert.Equal(t, tt.derived, tt.docType.IsDerived())
			assert.Equal(t, tt.label, tt.docType.Label())
		})
	}
}

func TestStateFilter_Matches(t *testing.T) {
	s := NewDocumentState("acme/widgets", "PRD.md", DocumentDefaults{})

	assert.True(t, StateFilter{}.Matches(s))
	assert.True(t, StateFilter{Repo: "acme/widgets"}.Matches(s))
	assert.False(t, StateFilter{Repo: "acme/other"}.Matches(s))
	assert.False(t, StateFilter{Type: DocumentTypePlan}.Matches(s))

	s.AutoEvolve = false
	assert.False(t, StateFilter{AutoEvolveOnly: true}.Matches(s))
}
