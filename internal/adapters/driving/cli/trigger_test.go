package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

func TestTriggerCmd_Push(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.evo.trigger = &driving.TriggerResult{
		Event:   &domain.DocumentEvent{Type: domain.EventPush},
		Version: &domain.DocumentVersion{Version: "1.0.1"},
	}

	out, err := execute("trigger", "push", "--commit", "abc123", "--message", "Add billing API endpoint",
		"--file", "api/billing.go", "--file", "api/routes.go")

	require.NoError(t, err)
	got := ts.evo.gotTrigger
	assert.Equal(t, domain.EventPush, got.Type)
	assert.Equal(t, "acme/widgets", got.Repo)
	assert.Equal(t, "PRD.md", got.Path)
	assert.Equal(t, "abc123", got.Payload[driving.PayloadCommitID])
	assert.Equal(t, "Add billing API endpoint", got.Payload[driving.PayloadCommitMessage])
	assert.Equal(t, []string{"api/billing.go", "api/routes.go"}, got.Payload[driving.PayloadChangedFiles])
	assert.NotContains(t, got.Payload, driving.PayloadNumber)
	assert.Contains(t, out, "push trigger produced acme/widgets:PRD.md version 1.0.1")
}

func TestTriggerCmd_ItemOpenedSkipped(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.evo.trigger = &driving.TriggerResult{
		Event:   &domain.DocumentEvent{Type: domain.EventItemOpened, Result: "no feature-request label"},
		Skipped: true,
	}

	out, err := execute("trigger", "item-opened", "--number", "7", "--title", "Dark mode", "--label", "bug")

	require.NoError(t, err)
	got := ts.evo.gotTrigger.Payload
	assert.Equal(t, 7, got[driving.PayloadNumber])
	assert.Equal(t, "Dark mode", got[driving.PayloadTitle])
	assert.Equal(t, []string{"bug"}, got[driving.PayloadLabels])
	assert.Contains(t, out, "item-opened trigger skipped: no feature-request label")
}

func TestTriggerCmd_Recorded(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.evo.trigger = &driving.TriggerResult{
		Event: &domain.DocumentEvent{Type: domain.EventRelease, Result: "changelog exported"},
	}

	out, err := execute("trigger", "release", "--ref", "v1.2.0")

	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", ts.evo.gotTrigger.Payload[driving.PayloadRef])
	assert.Contains(t, out, "release trigger recorded: changelog exported")
}

func TestTriggerCmd_UnknownType(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("trigger", "deploy")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown trigger type "deploy"`)
	assert.Empty(t, ts.evo.calls)
}
