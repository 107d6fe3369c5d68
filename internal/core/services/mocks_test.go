package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// --- Fakes for the outbound collaborators ---

// promptKind names the instruction a generator call was made with.
type promptKind string

const (
	kindDistill   promptKind = "distill"
	kindSummarize promptKind = "summarize"
	kindGenerate  promptKind = "generate"
	kindConflict  promptKind = "conflict"
	kindDrift     promptKind = "drift"
	kindReadme    promptKind = "readme"
	kindPlan      promptKind = "plan"
	kindStory     promptKind = "story"
	kindChangelog promptKind = "changelog"
	kindUnknown   promptKind = "unknown"
)

var promptPrefixes = []struct {
	prefix string
	kind   promptKind
}{
	{"You maintain a product requirements document", kindDistill},
	{"Summarize the key changes", kindSummarize},
	{"You generate product requirements documents", kindGenerate},
	{"You check a PRD", kindConflict},
	{"You compare project documents", kindDrift},
	{"You keep a README", kindReadme},
	{"You keep an implementation plan", kindPlan},
	{"Extract user stories", kindStory},
	{"Generate a concise changelog", kindChangelog},
}

func classifyPrompt(system string) promptKind {
	for _, p := range promptPrefixes {
		if strings.HasPrefix(system, p.prefix) {
			return p.kind
		}
	}
	return kindUnknown
}

type genCall struct {
	kind   promptKind
	system string
	user   string
}

// fakeGenerator returns canned replies per instruction kind.
type fakeGenerator struct {
	mu      sync.Mutex
	replies map[promptKind]string
	errs    map[promptKind]error
	calls   []genCall

	// hook runs before every reply, outside the lock.
	hook func(ctx context.Context, kind promptKind)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		replies: map[promptKind]string{
			kindDistill:   completePRD("evolved"),
			kindSummarize: "Refined the MVP stories.",
			kindGenerate:  completePRD("generated"),
			kindConflict:  noConflictsSentinel,
			kindDrift:     noDriftSentinel,
			kindReadme:    "# Widgets\n\nAligned README.",
			kindPlan:      "# Plan\n\n| 1 | Ship | ana | Q1 | - | low | DONE |",
			kindChangelog: "## Changed\n- Refined stories",
		},
		errs: make(map[promptKind]error),
	}
}

func (g *fakeGenerator) reply(kind promptKind, text string) *fakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[kind] = text
	return g
}

func (g *fakeGenerator) fail(kind promptKind, err error) *fakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[kind] = err
	return g
}

func (g *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	kind := classifyPrompt(system)

	g.mu.Lock()
	g.calls = append(g.calls, genCall{kind: kind, system: system, user: user})
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		hook(ctx, kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[kind]; err != nil {
		return "", err
	}
	return g.replies[kind], nil
}

func (g *fakeGenerator) ModelName() string            { return "fake-model" }
func (g *fakeGenerator) Ping(_ context.Context) error { return nil }
func (g *fakeGenerator) Close() error                 { return nil }

func (g *fakeGenerator) count(kind promptKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (g *fakeGenerator) lastUser(kind promptKind) string {
	return g.last(kind).user
}

func (g *fakeGenerator) lastSystem(kind promptKind) string {
	return g.last(kind).system
}

func (g *fakeGenerator) last(kind promptKind) genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].kind == kind {
			return g.calls[i]
		}
	}
	return genCall{}
}

// fakeSource serves files from a map keyed by "repo:path".
type fakeSource struct {
	mu    sync.Mutex
	files map[string]string
	errs  map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{files: make(map[string]string), errs: make(map[string]error)}
}

func (s *fakeSource) put(repo, path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[repo+":"+path] = content
}

func (s *fakeSource) failOn(repo, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[repo+":"+path] = err
}

func (s *fakeSource) FetchFile(_ context.Context, repo, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repo + ":" + path
	if err := s.errs[key]; err != nil {
		return "", err
	}
	content, ok := s.files[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, domain.ErrNotFound)
	}
	return content, nil
}

// fakeTracker records created items; titles listed in failTitles fail.
type fakeTracker struct {
	mu         sync.Mutex
	created    []trackerItem
	failTitles map[string]bool
	next       int
}

type trackerItem struct {
	repo, title, body string
	labels            []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failTitles: make(map[string]bool), next: 100}
}

func (t *fakeTracker) CreateItem(_ context.Context, repo, title, body string, labels []string) (domain.ExternalRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTitles[title] {
		return domain.ExternalRef{}, errors.New("tracker rejected item")
	}
	t.next++
	t.created = append(t.created, trackerItem{repo: repo, title: title, body: body, labels: labels})
	id := fmt.Sprintf("%d", t.next)
	return domain.ExternalRef{ID: id, URL: "https://tracker.example/" + id}, nil
}

// fakeNotifier records alerts and reports the configured delivery outcome.
type fakeNotifier struct {
	mu       sync.Mutex
	sent     []domain.AlertPayload
	targets  []string
	delivers bool
}

func (n *fakeNotifier) Send(_ context.Context, target string, payload domain.AlertPayload) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	n.sent = append(n.sent, payload)
	return n.delivers
}

// Ensure fakes implement interfaces
var (
	_ driven.TextGenerator = (*fakeGenerator)(nil)
	_ driven.ContentSource = (*fakeSource)(nil)
	_ driven.IssueTracker  = (*fakeTracker)(nil)
	_ driven.Notifier      = (*fakeNotifier)(nil)
)

// --- Fixtures ---

const (
	testRepo    = "acme/widgets"
	testWebhook = "https://hooks.example/alerts"
)

// completePRD returns a document containing every required section.
func completePRD(tag string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Widgets PRD (%s)\n\n", tag)
	for _, s := range domain.RequiredSections {
		fmt.Fprintf(&b, "## %s\n\n%s content for %s.\n\n", s, s, tag)
	}
	return b.String()
}

// fixedClock returns a clock that advances by one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type harness struct {
	store    *memory.DocumentStore
	gen      *fakeGenerator
	source   *fakeSource
	tracker  *fakeTracker
	notifier *fakeNotifier
	svc      *EvolutionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    memory.NewDocumentStore(),
		gen:      newFakeGenerator(),
		source:   newFakeSource(),
		tracker:  newFakeTracker(),
		notifier: &fakeNotifier{delivers: true},
	}
	clock := fixedClock()
	h.store.SetClock(clock)
	h.svc = NewEvolutionService(EvolutionDeps{
		Store:        h.store,
		Generator:    h.gen,
		Source:       h.source,
		Tracker:      h.tracker,
		Notifier:     h.notifier,
		NotifyTarget: testWebhook,
		Workers:      4,
	})
	h.svc.setClock(clock)
	return h
}

// seed commits content to the canonical document as a machine version.
func (h *harness) seed(t *testing.T, content string) *domain.DocumentState {
	t.Helper()
	return h.seedPath(t, "PRD.md", content)
}

func (h *harness) seedPath(t *testing.T, path, content string) *domain.DocumentState {
	t.Helper()
	return h.seedOther(t, testRepo, path, content)
}

func (h *harness) seedOther(t *testing.T, repo, path, content string) *domain.DocumentState {
	t.Helper()
	ctx := context.Background()

	st, err := h.svc.getOrCreate(ctx, repo, path)
	require.NoError(t, err)
	st.SetContent(content)
	v := domain.NewVersion(st, domain.TriggerInitial, "seed", "seed", false)
	require.NoError(t, h.store.CommitVersion(ctx, st, v))
	return st
}

func (h *harness) versions(t *testing.T, path string) []*domain.DocumentVersion {
	t.Helper()
	st, err := h.store.Get(context.Background(), testRepo, path)
	require.NoError(t, err)
	vs, err := h.store.ListVersions(context.Background(), st.ID, 0)
	require.NoError(t, err)
	return vs
}
