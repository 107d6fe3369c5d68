package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/storage/ids"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const stateColumns = `id, repo, path, content, content_hash, version, doc_type, parent_id,
	is_locked, auto_evolve, notify_target, last_distilled_at, last_synced_at, last_aligned_at,
	created_at, updated_at`

// ==================== States ====================

// GetOrCreate returns the state for (repo, path), creating it if absent.
// Concurrent callers converge on the same row through the unique key.
func (s *documentStore) GetOrCreate(
	ctx context.Context,
	repo, path string,
	defaults domain.DocumentDefaults,
) (*domain.DocumentState, error) {
	st := domain.NewDocumentState(repo, path, defaults)
	now := formatTime(s.store.now())

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO document_states (id, repo, path, content, content_hash, version, doc_type, parent_id,
			is_locked, auto_evolve, notify_target, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?, ?, ?, 0, 1, ?, ?, ?)
		ON CONFLICT(repo, path) DO NOTHING
	`, ids.New(), repo, path, st.ContentHash(), st.Version, string(st.Type),
		nullStringPtr(st.ParentID), nullString(st.NotifyTarget), now, now)
	if err != nil {
		return nil, fmt.Errorf("creating document state: %w", err)
	}

	return s.Get(ctx, repo, path)
}

// Get returns the state for (repo, path).
func (s *documentStore) Get(ctx context.Context, repo, path string) (*domain.DocumentState, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM document_states WHERE repo = ? AND path = ?`, repo, path)
	return scanState(row)
}

// GetByID returns the state with the given ID.
func (s *documentStore) GetByID(ctx context.Context, id string) (*domain.DocumentState, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM document_states WHERE id = ?`, id)
	return scanState(row)
}

// ListStates returns states matching the filter, ordered by repo then path.
func (s *documentStore) ListStates(ctx context.Context, filter domain.StateFilter) ([]*domain.DocumentState, error) {
	query := `SELECT ` + stateColumns + ` FROM document_states WHERE 1 = 1`
	var args []any
	if filter.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filter.Repo)
	}
	if filter.Type != "" {
		query += " AND doc_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.AutoEvolveOnly {
		query += " AND auto_evolve = 1"
	}
	query += " ORDER BY repo, path"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying document states: %w", err)
	}
	defer rows.Close()

	states := make([]*domain.DocumentState, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document states: %w", err)
	}
	return states, nil
}

// SaveState updates flags and timestamps of an existing state.
func (s *documentStore) SaveState(ctx context.Context, state *domain.DocumentState) error {
	now := s.store.now()
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE document_states SET
			version = ?, doc_type = ?, parent_id = ?, is_locked = ?, auto_evolve = ?,
			notify_target = ?, last_distilled_at = ?, last_synced_at = ?, last_aligned_at = ?,
			updated_at = ?
		WHERE id = ?
	`, state.Version, string(state.Type), nullStringPtr(state.ParentID),
		boolToInt(state.IsLocked), boolToInt(state.AutoEvolve), nullString(state.NotifyTarget),
		formatTimePtr(state.LastDistilledAt), formatTimePtr(state.LastSyncedAt), formatTimePtr(state.LastAlignedAt),
		formatTime(now), state.ID)
	if err != nil {
		return fmt.Errorf("saving document state: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	state.UpdatedAt = now
	return nil
}

// ==================== Versions ====================

// CommitVersion writes the state's content and flags and appends the
// version in one transaction.
func (s *documentStore) CommitVersion(
	ctx context.Context,
	state *domain.DocumentState,
	version *domain.DocumentVersion,
) error {
	if version.ContentHash != state.ContentHash() || version.StateID != state.ID {
		return fmt.Errorf("%w: version does not match state %s", domain.ErrInvalidInput, state.ID)
	}

	now := s.store.now()
	versionID := ids.Ordered(now)

	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE document_states SET
				content = ?, content_hash = ?, version = ?, doc_type = ?, parent_id = ?,
				is_locked = ?, auto_evolve = ?, notify_target = ?,
				last_distilled_at = ?, last_synced_at = ?, last_aligned_at = ?, updated_at = ?
			WHERE id = ?
		`, state.Content(), state.ContentHash(), state.Version, string(state.Type), nullStringPtr(state.ParentID),
			boolToInt(state.IsLocked), boolToInt(state.AutoEvolve), nullString(state.NotifyTarget),
			formatTimePtr(state.LastDistilledAt), formatTimePtr(state.LastSyncedAt), formatTimePtr(state.LastAlignedAt),
			formatTime(now), state.ID)
		if err != nil {
			return fmt.Errorf("updating document state: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_versions (id, state_id, version, content, content_hash, change_summary,
				trigger_type, trigger_ref, is_human_edit, reverted_to, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, versionID, version.StateID, version.Version, version.Content, version.ContentHash,
			nullString(version.ChangeSummary), string(version.TriggerType), nullString(version.TriggerRef),
			boolToInt(version.IsHumanEdit), nullStringPtr(version.RevertedTo), formatTime(now))
		if err != nil {
			return fmt.Errorf("inserting document version: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	version.ID = versionID
	version.CreatedAt = now
	state.UpdatedAt = now
	return nil
}

const versionColumns = `id, state_id, version, content, content_hash, change_summary,
	trigger_type, trigger_ref, is_human_edit, reverted_to, created_at`

// ListVersions returns versions of a state, newest first.
func (s *documentStore) ListVersions(ctx context.Context, stateID string, limit int) ([]*domain.DocumentVersion, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM document_versions
		WHERE state_id = ? ORDER BY id DESC LIMIT ?
	`, stateID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying document versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*domain.DocumentVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document versions: %w", err)
	}
	return versions, nil
}

// GetVersion returns one version.
func (s *documentStore) GetVersion(ctx context.Context, id string) (*domain.DocumentVersion, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE id = ?`, id)
	return scanVersion(row)
}

// LatestMachineVersion returns the newest machine-authored version.
func (s *documentStore) LatestMachineVersion(ctx context.Context, stateID string) (*domain.DocumentVersion, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM document_versions
		WHERE state_id = ? AND is_human_edit = 0
		ORDER BY id DESC LIMIT 1
	`, stateID)
	return scanVersion(row)
}

// ==================== Events ====================

// SaveEvent creates or updates an event.
func (s *documentStore) SaveEvent(ctx context.Context, event *domain.DocumentEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}
	if string(payload) == jsonNull {
		payload = []byte("{}")
	}

	if event.ID != "" {
		res, err := s.store.db.ExecContext(ctx, `
			UPDATE document_events SET payload = ?, processed = ?, processed_at = ?, result = ?
			WHERE id = ?
		`, string(payload), boolToInt(event.Processed), formatTimePtr(event.ProcessedAt),
			nullString(event.Result), event.ID)
		if err != nil {
			return fmt.Errorf("updating event: %w", err)
		}
		return requireAffected(res)
	}

	now := s.store.now()
	id := ids.Ordered(now)
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO document_events (id, state_id, event_type, payload, processed, processed_at, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, event.StateID, string(event.Type), string(payload), boolToInt(event.Processed),
		formatTimePtr(event.ProcessedAt), nullString(event.Result), formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	event.ID = id
	event.CreatedAt = now
	return nil
}

// ListEvents returns events of a state, newest first.
func (s *documentStore) ListEvents(ctx context.Context, stateID string, limit int) ([]*domain.DocumentEvent, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, state_id, event_type, payload, processed, processed_at, result, created_at
		FROM document_events WHERE state_id = ? ORDER BY id DESC LIMIT ?
	`, stateID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.DocumentEvent, 0)
	for rows.Next() {
		var (
			e           domain.DocumentEvent
			eventType   string
			payload     string
			processed   int
			processedAt sql.NullString
			result      sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.StateID, &eventType, &payload, &processed,
			&processedAt, &result, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling event payload: %w", err)
		}
		e.Type = domain.EventType(eventType)
		e.Processed = processed == 1
		e.ProcessedAt = parseTimePtr(processedAt)
		e.Result = result.String
		e.CreatedAt = parseTime(createdAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// ==================== Conflicts ====================

// SaveConflicts creates all conflicts in one transaction.
func (s *documentStore) SaveConflicts(ctx context.Context, conflicts []*domain.DocumentConflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	now := s.store.now()
	assigned := make([]string, len(conflicts))
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_conflicts (id, state_id, conflict_type, severity, section_affected,
				description, suggested_resolution, resolved, resolved_at, resolved_by, notified, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing conflict insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range conflicts {
			assigned[i] = ids.New()
			_, err := stmt.ExecContext(ctx, assigned[i], c.StateID, string(c.Type), string(c.Severity),
				nullString(c.SectionAffected), c.Description, nullString(c.SuggestedResolution),
				boolToInt(c.Resolved), formatTimePtr(c.ResolvedAt), nullString(c.ResolvedBy),
				boolToInt(c.Notified), formatTime(now))
			if err != nil {
				return fmt.Errorf("inserting conflict: %w", translateConstraint(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, c := range conflicts {
		c.ID = assigned[i]
		c.CreatedAt = now
	}
	return nil
}

// UpdateConflict persists resolution and notification flags.
func (s *documentStore) UpdateConflict(ctx context.Context, c *domain.DocumentConflict) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE document_conflicts SET resolved = ?, resolved_at = ?, resolved_by = ?, notified = ?
		WHERE id = ?
	`, boolToInt(c.Resolved), formatTimePtr(c.ResolvedAt), nullString(c.ResolvedBy), boolToInt(c.Notified), c.ID)
	if err != nil {
		return fmt.Errorf("updating conflict: %w", err)
	}
	return requireAffected(res)
}

const conflictColumns = `id, state_id, conflict_type, severity, section_affected, description,
	suggested_resolution, resolved, resolved_at, resolved_by, notified, created_at`

// GetConflict returns one conflict.
func (s *documentStore) GetConflict(ctx context.Context, id string) (*domain.DocumentConflict, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM document_conflicts WHERE id = ?`, id)
	return scanConflict(row)
}

// ListConflicts returns conflicts matching the filter, newest first.
// Conflicts from one batch are returned in reverse insertion order.
func (s *documentStore) ListConflicts(ctx context.Context, filter domain.ConflictFilter) ([]*domain.DocumentConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM document_conflicts WHERE 1 = 1`
	var args []any
	if filter.StateID != "" {
		query += " AND state_id = ?"
		args = append(args, filter.StateID)
	}
	if filter.OpenOnly {
		query += " AND resolved = 0"
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]*domain.DocumentConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		// Severity ranking is a domain rule; filter after the scan
		if filter.Matches(c) {
			conflicts = append(conflicts, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conflicts: %w", err)
	}
	return conflicts, nil
}

// ==================== Exports ====================

// SaveExport appends an export record.
func (s *documentStore) SaveExport(ctx context.Context, export *domain.DocumentExport) error {
	details, err := json.Marshal(export.Details)
	if err != nil {
		return fmt.Errorf("marshalling export details: %w", err)
	}
	if string(details) == jsonNull {
		details = []byte("{}")
	}
	refs := export.ExternalRefs
	if refs == nil {
		refs = []domain.ExternalRef{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshalling external refs: %w", err)
	}

	now := s.store.now()
	id := ids.New()
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO document_exports (id, state_id, export_type, items_created, details, external_refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, export.StateID, string(export.Type), export.ItemsCreated, string(details), string(refsJSON), formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting export: %w", translateConstraint(err))
	}
	export.ID = id
	export.CreatedAt = now
	return nil
}

// ListExports returns exports of a state, newest first.
func (s *documentStore) ListExports(ctx context.Context, stateID string, limit int) ([]*domain.DocumentExport, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, state_id, export_type, items_created, details, external_refs, created_at
		FROM document_exports WHERE state_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, stateID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	defer rows.Close()

	exports := make([]*domain.DocumentExport, 0)
	for rows.Next() {
		var (
			e          domain.DocumentExport
			exportType string
			details    string
			refs       string
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.StateID, &exportType, &e.ItemsCreated, &details, &refs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshalling export details: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &e.ExternalRefs); err != nil {
			return nil, fmt.Errorf("unmarshalling external refs: %w", err)
		}
		e.Type = domain.ExportType(exportType)
		e.CreatedAt = parseTime(createdAt)
		exports = append(exports, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exports: %w", err)
	}
	return exports, nil
}

// ==================== Helper Functions ====================

// scanState scans a state and checks the stored fingerprint.
func scanState(row scanner) (*domain.DocumentState, error) {
	var (
		st                         domain.DocumentState
		content, hash, docType     string
		parentID, notifyTarget     sql.NullString
		distilled, synced, aligned sql.NullString
		locked, autoEvolve         int
		createdAt, updatedAt       string
	)
	err := row.Scan(&st.ID, &st.Repo, &st.Path, &content, &hash, &st.Version, &docType, &parentID,
		&locked, &autoEvolve, &notifyTarget, &distilled, &synced, &aligned, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document state: %w", err)
	}

	st.SetContent(content)
	if st.ContentHash() != hash {
		return nil, fmt.Errorf("document state %s: stored content hash does not match content", st.ID)
	}
	st.Type = domain.DocumentType(docType)
	st.ParentID = stringPtr(parentID)
	st.IsLocked = locked == 1
	st.AutoEvolve = autoEvolve == 1
	st.NotifyTarget = notifyTarget.String
	st.LastDistilledAt = parseTimePtr(distilled)
	st.LastSyncedAt = parseTimePtr(synced)
	st.LastAlignedAt = parseTimePtr(aligned)
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

func scanVersion(row scanner) (*domain.DocumentVersion, error) {
	var (
		v            domain.DocumentVersion
		summary, ref sql.NullString
		revertedTo   sql.NullString
		triggerType  string
		human        int
		createdAt    string
	)
	err := row.Scan(&v.ID, &v.StateID, &v.Version, &v.Content, &v.ContentHash, &summary,
		&triggerType, &ref, &human, &revertedTo, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document version: %w", err)
	}
	v.ChangeSummary = summary.String
	v.TriggerType = domain.TriggerType(triggerType)
	v.TriggerRef = ref.String
	v.IsHumanEdit = human == 1
	v.RevertedTo = stringPtr(revertedTo)
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func scanConflict(row scanner) (*domain.DocumentConflict, error) {
	var (
		c                      domain.DocumentConflict
		conflictType, severity string
		section, suggestion    sql.NullString
		resolvedAt, resolvedBy sql.NullString
		resolved, notified     int
		createdAt              string
	)
	err := row.Scan(&c.ID, &c.StateID, &conflictType, &severity, &section, &c.Description,
		&suggestion, &resolved, &resolvedAt, &resolvedBy, &notified, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conflict: %w", err)
	}
	c.Type = domain.ConflictType(conflictType)
	c.Severity = domain.Severity(severity)
	c.SectionAffected = section.String
	c.SuggestedResolution = suggestion.String
	c.Resolved = resolved == 1
	c.ResolvedAt = parseTimePtr(resolvedAt)
	c.ResolvedBy = resolvedBy.String
	c.Notified = notified == 1
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// requireAffected maps an update that touched no rows to domain.ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
