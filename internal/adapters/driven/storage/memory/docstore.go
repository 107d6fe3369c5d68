package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/ids"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Records are copied on the way in and out.
type DocumentStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	states    map[string]domain.DocumentState
	keys      map[domain.DocumentKey]string
	versions  map[string][]domain.DocumentVersion
	events    map[string]domain.DocumentEvent
	conflicts map[string]domain.DocumentConflict
	order     []string // conflict IDs in creation order
	exports   map[string][]domain.DocumentExport
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		now:       time.Now,
		states:    make(map[string]domain.DocumentState),
		keys:      make(map[domain.DocumentKey]string),
		versions:  make(map[string][]domain.DocumentVersion),
		events:    make(map[string]domain.DocumentEvent),
		conflicts: make(map[string]domain.DocumentConflict),
		exports:   make(map[string][]domain.DocumentExport),
	}
}

// SetClock replaces the time source used for timestamps.
func (s *DocumentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// GetOrCreate returns the state for (repo, path), creating it if absent.
func (s *DocumentStore) GetOrCreate(
	_ context.Context,
	repo, path string,
	defaults domain.DocumentDefaults,
) (*domain.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.DocumentKey{Repo: repo, Path: path}
	if id, ok := s.keys[key]; ok {
		st := s.states[id]
		return &st, nil
	}

	st := domain.NewDocumentState(repo, path, defaults)
	st.ID = ids.New()
	now := s.now()
	st.CreatedAt = now
	st.UpdatedAt = now

	s.states[st.ID] = *st
	s.keys[key] = st.ID
	return st, nil
}

// Get returns the state for (repo, path).
func (s *DocumentStore) Get(_ context.Context, repo, path string) (*domain.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keys[domain.DocumentKey{Repo: repo, Path: path}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	st := s.states[id]
	return &st, nil
}

// GetByID returns the state with the given ID.
func (s *DocumentStore) GetByID(_ context.Context, id string) (*domain.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

// ListStates returns states matching the filter, ordered by repo then path.
func (s *DocumentStore) ListStates(_ context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DocumentState, 0, len(s.states))
	for _, st := range s.states {
		if filter.Matches(&st) {
			result = append(result, &st)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Repo != result[j].Repo {
			return result[i].Repo < result[j].Repo
		}
		return result[i].Path < result[j].Path
	})
	return result, nil
}

// SaveState updates flags and timestamps of an existing state. The stored
// content is kept.
func (s *DocumentStore) SaveState(_ context.Context, state *domain.DocumentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.states[state.ID]
	if !ok {
		return domain.ErrNotFound
	}

	next := *state
	next.SetContent(stored.Content())
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = s.now()
	s.states[state.ID] = next
	state.UpdatedAt = next.UpdatedAt
	return nil
}

// CommitVersion writes the state and appends the version.
func (s *DocumentStore) CommitVersion(
	_ context.Context,
	state *domain.DocumentState,
	version *domain.DocumentVersion,
) error {
	if version.ContentHash != state.ContentHash() || version.StateID != state.ID {
		return fmt.Errorf("%w: version does not match state %s", domain.ErrInvalidInput, state.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.states[state.ID]
	if !ok {
		return domain.ErrNotFound
	}

	now := s.now()
	version.ID = ids.Ordered(now)
	version.CreatedAt = now
	state.CreatedAt = stored.CreatedAt
	state.UpdatedAt = now

	s.states[state.ID] = *state
	s.versions[state.ID] = append(s.versions[state.ID], *version)
	return nil
}

// ListVersions returns versions of a state, newest first.
func (s *DocumentStore) ListVersions(_ context.Context, stateID string, limit int) ([]*domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.versions[stateID]
	result := make([]*domain.DocumentVersion, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		v := stored[i]
		result = append(result, &v)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// GetVersion returns one version.
func (s *DocumentStore) GetVersion(_ context.Context, id string) (*domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID == id {
				return &v, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// LatestMachineVersion returns the newest machine-authored version.
func (s *DocumentStore) LatestMachineVersion(_ context.Context, stateID string) (*domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.versions[stateID]
	for i := len(stored) - 1; i >= 0; i-- {
		if !stored[i].IsHumanEdit {
			v := stored[i]
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

// SaveEvent creates or updates an event.
func (s *DocumentStore) SaveEvent(_ context.Context, event *domain.DocumentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		now := s.now()
		event.ID = ids.Ordered(now)
		event.CreatedAt = now
	} else if _, ok := s.events[event.ID]; !ok {
		return domain.ErrNotFound
	}
	s.events[event.ID] = *event
	return nil
}

// ListEvents returns events of a state, newest first.
func (s *DocumentStore) ListEvents(_ context.Context, stateID string, limit int) ([]*domain.DocumentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DocumentEvent, 0)
	for _, e := range s.events {
		if e.StateID == stateID {
			result = append(result, &e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SaveConflicts creates all conflicts.
func (s *DocumentStore) SaveConflicts(_ context.Context, conflicts []*domain.DocumentConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, c := range conflicts {
		if _, ok := s.states[c.StateID]; !ok {
			return fmt.Errorf("conflict owner %s: %w", c.StateID, domain.ErrNotFound)
		}
	}
	for _, c := range conflicts {
		c.ID = ids.New()
		c.CreatedAt = now
		s.conflicts[c.ID] = *c
		s.order = append(s.order, c.ID)
	}
	return nil
}

// UpdateConflict persists resolution and notification flags.
func (s *DocumentStore) UpdateConflict(_ context.Context, conflict *domain.DocumentConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conflicts[conflict.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Resolved = conflict.Resolved
	stored.ResolvedBy = conflict.ResolvedBy
	stored.ResolvedAt = conflict.ResolvedAt
	stored.Notified = conflict.Notified
	s.conflicts[conflict.ID] = stored
	return nil
}

// GetConflict returns one conflict.
func (s *DocumentStore) GetConflict(_ context.Context, id string) (*domain.DocumentConflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conflicts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// ListConflicts returns conflicts matching the filter, newest first.
func (s *DocumentStore) ListConflicts(_ context.Context, filter domain.ConflictFilter) ([]*domain.DocumentConflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DocumentConflict, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.conflicts[s.order[i]]
		if filter.Matches(&c) {
			result = append(result, &c)
		}
	}
	return result, nil
}

// SaveExport appends an export record.
func (s *DocumentStore) SaveExport(_ context.Context, export *domain.DocumentExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[export.StateID]; !ok {
		return fmt.Errorf("export owner %s: %w", export.StateID, domain.ErrNotFound)
	}
	export.ID = ids.New()
	export.CreatedAt = s.now()
	s.exports[export.StateID] = append(s.exports[export.StateID], *export)
	return nil
}

// ListExports returns exports of a state, newest first.
func (s *DocumentStore) ListExports(_ context.Context, stateID string, limit int) ([]*domain.DocumentExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.exports[stateID]
	result := make([]*domain.DocumentExport, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		e := stored[i]
		result = append(result, &e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
