package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// mockEvolutionService implements driving.EvolutionService for testing.
type mockEvolutionService struct {
	state     *domain.DocumentState
	version   *domain.DocumentVersion
	versions  []*domain.DocumentVersion
	conflicts []*domain.DocumentConflict
	conflict  *domain.DocumentConflict
	align     *driving.AlignResult
	export    *domain.DocumentExport
	trigger   *driving.TriggerResult
	events    []*domain.DocumentEvent
	delivered bool
	bumped    string
	err       error

	calls      []string
	gotRepo    string
	gotPath    string
	gotContent string
	gotBool    bool
	gotTarget  string
	gotDistill driving.DistillRequest
	gotTrigger driving.Trigger
}

func (m *mockEvolutionService) record(name, repo, path string) {
	m.calls = append(m.calls, name)
	m.gotRepo = repo
	m.gotPath = path
}

func (m *mockEvolutionService) Status(_ context.Context, repo, path string) (*driving.DocumentStatus, error) {
	m.record("Status", repo, path)
	if m.err != nil {
		return nil, m.err
	}
	return &driving.DocumentStatus{
		State:         m.state,
		VersionCount:  len(m.versions),
		OpenConflicts: len(m.conflicts),
		LatestVersion: m.version,
		RecentEvents:  m.events,
	}, nil
}

func (m *mockEvolutionService) ListDocuments(_ context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error) {
	m.record("ListDocuments", filter.Repo, "")
	if m.state == nil {
		return nil, m.err
	}
	return []*domain.DocumentState{m.state}, m.err
}

func (m *mockEvolutionService) ListVersions(_ context.Context, repo, path string, _ int) ([]*domain.DocumentVersion, error) {
	m.record("ListVersions", repo, path)
	return m.versions, m.err
}

func (m *mockEvolutionService) SyncFromSource(_ context.Context, repo, path string) (*domain.DocumentVersion, error) {
	m.record("SyncFromSource", repo, path)
	return m.version, m.err
}

func (m *mockEvolutionService) Distill(
	_ context.Context, repo, path string, req driving.DistillRequest,
) (*domain.DocumentVersion, error) {
	m.record("Distill", repo, path)
	m.gotDistill = req
	return m.version, m.err
}

func (m *mockEvolutionService) Generate(_ context.Context, repo, projectName, path string) (*domain.DocumentState, error) {
	m.record("Generate", repo, path)
	m.gotTarget = projectName
	return m.state, m.err
}

func (m *mockEvolutionService) BumpVersion(_ context.Context, repo, path string, bump domain.BumpType) (string, error) {
	m.record("BumpVersion", repo, path)
	m.gotTarget = string(bump)
	return m.bumped, m.err
}

func (m *mockEvolutionService) DetectConflicts(_ context.Context, repo, path string) ([]*domain.DocumentConflict, error) {
	m.record("DetectConflicts", repo, path)
	return m.conflicts, m.err
}

func (m *mockEvolutionService) ListConflicts(
	_ context.Context, repo, path string, openOnly bool,
) ([]*domain.DocumentConflict, error) {
	m.record("ListConflicts", repo, path)
	m.gotBool = openOnly
	return m.conflicts, m.err
}

func (m *mockEvolutionService) ResolveConflict(_ context.Context, id, by string) (*domain.DocumentConflict, error) {
	m.record("ResolveConflict", "", "")
	m.gotTarget = id
	if m.err != nil {
		return nil, m.err
	}
	c := *m.conflict
	c.Resolved = true
	c.ResolvedBy = by
	return &c, nil
}

func (m *mockEvolutionService) SendAlert(_ context.Context, id string) (bool, error) {
	m.record("SendAlert", "", "")
	m.gotTarget = id
	return m.delivered, m.err
}

func (m *mockEvolutionService) SyncDerived(_ context.Context, repo string, _ domain.DocumentType) (*domain.DocumentState, error) {
	m.record("SyncDerived", repo, "")
	return m.state, m.err
}

func (m *mockEvolutionService) AlignAll(_ context.Context, repo string) (*driving.AlignResult, error) {
	m.record("AlignAll", repo, "")
	return m.align, m.err
}

func (m *mockEvolutionService) DetectDrift(_ context.Context, repo string) ([]*domain.DocumentConflict, error) {
	m.record("DetectDrift", repo, "")
	return m.conflicts, m.err
}

func (m *mockEvolutionService) ExportItems(_ context.Context, repo, path string) (*domain.DocumentExport, error) {
	m.record("ExportItems", repo, path)
	return m.export, m.err
}

func (m *mockEvolutionService) ExportChangelog(
	_ context.Context, repo, path, target string,
) (*domain.DocumentExport, error) {
	m.record("ExportChangelog", repo, path)
	m.gotTarget = target
	return m.export, m.err
}

func (m *mockEvolutionService) SetLocked(_ context.Context, repo, path string, locked bool) error {
	m.record("SetLocked", repo, path)
	m.gotBool = locked
	return m.err
}

func (m *mockEvolutionService) SetAutoEvolve(_ context.Context, repo, path string, enabled bool) error {
	m.record("SetAutoEvolve", repo, path)
	m.gotBool = enabled
	return m.err
}

func (m *mockEvolutionService) SetNotifyTarget(_ context.Context, repo, path, target string) error {
	m.record("SetNotifyTarget", repo, path)
	m.gotTarget = target
	return m.err
}

func (m *mockEvolutionService) ApplyHumanEdit(_ context.Context, repo, path, content string) (*domain.DocumentVersion, error) {
	m.record("ApplyHumanEdit", repo, path)
	m.gotContent = content
	return m.version, m.err
}

func (m *mockEvolutionService) Revert(_ context.Context, repo, path, versionID string) (*domain.DocumentVersion, error) {
	m.record("Revert", repo, path)
	m.gotTarget = versionID
	return m.version, m.err
}

func (m *mockEvolutionService) HandleTrigger(_ context.Context, trigger driving.Trigger) (*driving.TriggerResult, error) {
	m.record("HandleTrigger", trigger.Repo, trigger.Path)
	m.gotTrigger = trigger
	return m.trigger, m.err
}

// mockSettingsService implements driving.SettingsService for testing.
type mockSettingsService struct {
	settings    domain.Settings
	validateErr error
	set         map[string]string
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultSettings(), set: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if key == "unknown.key" {
		return errors.New("unknown setting")
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}

func (m *mockSettingsService) Path() string {
	return "/home/test/.prdmachine/config.toml"
}

func (m *mockSettingsService) Keys() []string {
	return []string{"llm.api_key", "llm.provider", "repository.default"}
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	ran     []string
	history []domain.TaskResult
	err     error
}

func (m *mockScheduler) Start(_ context.Context) error { return nil }

func (m *mockScheduler) Stop() error { return nil }

func (m *mockScheduler) RunNow(_ context.Context, taskID string) error {
	m.ran = append(m.ran, taskID)
	return m.err
}

func (m *mockScheduler) History(_ context.Context, _ string, _ int) ([]domain.TaskResult, error) {
	return m.history, m.err
}

// mockRuntime implements Runtime for testing.
type mockRuntime struct {
	addr     string
	repo     string
	root     string
	patterns []string
}

func (m *mockRuntime) Serve(_ context.Context, addr string) error {
	m.addr = addr
	return nil
}

func (m *mockRuntime) Watch(_ context.Context, repo, root string, patterns []string) error {
	m.repo = repo
	m.root = root
	m.patterns = patterns
	return nil
}

type testServices struct {
	evo      *mockEvolutionService
	settings *mockSettingsService
	sched    *mockScheduler
	runtime  *mockRuntime
}

// setupTestServices installs mocks, resets flags and returns a cleanup func.
func setupTestServices() (*testServices, func()) {
	oldBootstrap := bootstrap
	bootstrap = nil

	ts := &testServices{
		evo:      &mockEvolutionService{},
		settings: newMockSettingsService(),
		sched:    &mockScheduler{},
		runtime:  &mockRuntime{},
	}
	SetServices(&Services{
		Evolution:   ts.evo,
		Settings:    ts.settings,
		Scheduler:   ts.sched,
		Runtime:     ts.runtime,
		DefaultRepo: "acme/widgets",
	})
	resetFlags()

	return ts, func() {
		SetServices(&Services{})
		bootstrap = oldBootstrap
		resetFlags()
	}
}

func resetFlags() {
	repoFlag = ""
	configPath = ""
	pathFlag = ""
	historyLimit = 10
	distillTrigger = string(domain.TriggerManualSync)
	distillRef = ""
	distillBump = string(domain.BumpPatch)
	generateName = ""
	editFile = ""
	conflictsAll = false
	resolvedBy = ""
	serveAddr = ""
	triggerCommit = ""
	triggerMessage = ""
	triggerNumber = 0
	triggerAction = ""
	triggerTitle = ""
	triggerBody = ""
	triggerRef = ""
	triggerLabels = nil
	triggerFiles = nil
	watchPatterns = nil
	mcpAddr = ""
}

// execute runs the root command with args and returns what it printed.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
