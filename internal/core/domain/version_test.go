package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpVersion(t *testing.T) {
	tests := []struct {
		current string
		bump    BumpType
		want    string
	}{
		{"1.2.3", BumpMinor, "1.3.0"},
		{"1.2.3", BumpMajor, "2.0.0"},
		{"1.2.3", BumpPatch, "1.2.4"},
		{"1.0.0", BumpPatch, "1.0.1"},
		{"bogus", BumpPatch, "1.0.1"},
		{"1.2", BumpMinor, "1.1.0"},
		{"1.2.x", BumpMajor, "2.0.0"},
		{"-1.2.3", BumpPatch, "1.0.1"},
		{"", BumpPatch, "1.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.current+"/"+string(tt.bump), func(t *testing.T) {
			assert.Equal(t, tt.want, BumpVersion(tt.current, tt.bump))
		})
	}
}

func TestBumpVersion_Monotonic(t *testing.T) {
	for _, bump := range []BumpType{BumpMajor, BumpMinor, BumpPatch} {
		v := "0.9.9"
		for i := 0; i < 25; i++ {
			next := BumpVersion(v, bump)
			assert.Equal(t, 1, slices.Compare(versionParts(t, next), versionParts(t, v)), "%s -> %s", v, next)
			v = next
		}
	}
}

func versionParts(t *testing.T, v string) []int {
	t.Helper()
	major, minor, patch, ok := ParseVersion(v)
	require.True(t, ok, v)
	return []int{major, minor, patch}
}

func TestParseVersion(t *testing.T) {
	major, minor, patch, ok := ParseVersion("10.20.30")
	require.True(t, ok)
	assert.Equal(t, []int{10, 20, 30}, []int{major, minor, patch})

	for _, bad := range []string{"", "1", "1.2", "1.2.3.4", "a.b.c", "1..3", "+1.2.3"} {
		_, _, _, ok := ParseVersion(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseBumpType(t *testing.T) {
	b, err := ParseBumpType(" Minor ")
	require.NoError(t, err)
	assert.Equal(t, BumpMinor, b)

	_, err = ParseBumpType("huge")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewVersion_SnapshotsState(t *testing.T) {
	s := NewDocumentState("acme/widgets", "PRD.md", DocumentDefaults{})
	s.ID = "state-1"
	s.Version = "1.0.4"
	s.SetContent("body")

	v := NewVersion(s, TriggerManualSync, "ref", "summary", false)

	assert.Equal(t, "state-1", v.StateID)
	assert.Equal(t, "1.0.4", v.Version)
	assert.Equal(t, "body", v.Content)
	assert.Equal(t, s.ContentHash(), v.ContentHash)
	assert.Equal(t, TriggerManualSync, v.TriggerType)
	assert.False(t, v.IsHumanEdit)
	assert.Nil(t, v.RevertedTo)
}

func TestTriggerType_IsValid(t *testing.T) {
	assert.True(t, TriggerInitial.IsValid())
	assert.True(t, TriggerExport.IsValid())
	assert.False(t, TriggerType("webhook").IsValid())
}
