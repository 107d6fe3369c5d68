package driven

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// DocumentStore persists document states and the records they own.
//
// Implementations must never persist a state whose content and content hash
// disagree. Writes for one document are serialised by the caller.
type DocumentStore interface {
	// GetOrCreate returns the state for (repo, path), creating it with the
	// given defaults if it does not exist. Repeated calls return the same ID.
	GetOrCreate(ctx context.Context, repo, path string, defaults domain.DocumentDefaults) (*domain.DocumentState, error)

	// Get returns the state for (repo, path) or domain.ErrNotFound.
	Get(ctx context.Context, repo, path string) (*domain.DocumentState, error)

	// GetByID returns the state with the given ID or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.DocumentState, error)

	// ListStates returns states matching the filter, ordered by repo then path.
	ListStates(ctx context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error)

	// SaveState updates flags and timestamps of an existing state.
	// Content changes must go through CommitVersion.
	SaveState(ctx context.Context, state *domain.DocumentState) error

	// CommitVersion atomically writes the state and appends the version.
	// The version's hash must equal the state's hash, otherwise
	// domain.ErrInvalidInput is returned and nothing is written.
	// The version's ID and CreatedAt are assigned in place.
	CommitVersion(ctx context.Context, state *domain.DocumentState, version *domain.DocumentVersion) error

	// ListVersions returns versions of a state, newest first.
	// A limit of zero or less returns all versions.
	ListVersions(ctx context.Context, stateID string, limit int) ([]*domain.DocumentVersion, error)

	// GetVersion returns one version or domain.ErrNotFound.
	GetVersion(ctx context.Context, id string) (*domain.DocumentVersion, error)

	// LatestMachineVersion returns the newest version with IsHumanEdit false,
	// or domain.ErrNotFound if there is none.
	LatestMachineVersion(ctx context.Context, stateID string) (*domain.DocumentVersion, error)

	// SaveEvent creates or updates an event. The ID is assigned on create.
	SaveEvent(ctx context.Context, event *domain.DocumentEvent) error

	// ListEvents returns events of a state, newest first.
	ListEvents(ctx context.Context, stateID string, limit int) ([]*domain.DocumentEvent, error)

	// SaveConflicts atomically creates all conflicts. IDs are assigned in place.
	SaveConflicts(ctx context.Context, conflicts []*domain.DocumentConflict) error

	// UpdateConflict persists resolution and notification flags.
	UpdateConflict(ctx context.Context, conflict *domain.DocumentConflict) error

	// GetConflict returns one conflict or domain.ErrNotFound.
	GetConflict(ctx context.Context, id string) (*domain.DocumentConflict, error)

	// ListConflicts returns conflicts matching the filter, newest first.
	ListConflicts(ctx context.Context, filter domain.ConflictFilter) ([]*domain.DocumentConflict, error)

	// SaveExport appends an export record. The ID is assigned in place.
	SaveExport(ctx context.Context, export *domain.DocumentExport) error

	// ListExports returns exports of a state, newest first.
	ListExports(ctx context.Context, stateID string, limit int) ([]*domain.DocumentExport, error)
}
