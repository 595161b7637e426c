package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLite is a Store backed by a SQLite database file. The hook CLI and the
// daemon open the same file; busy_timeout serializes them.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One connection keeps pragmas in effect and transactions serialized.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Features returns the feature repository.
func (s *SQLite) Features() feature.Repository { return sqlFeatures{s.db} }

// Events returns the event repository.
func (s *SQLite) Events() event.Repository { return sqlEvents{s.db} }

// Sessions returns the session repository.
func (s *SQLite) Sessions() session.Repository { return sqlSessions{s.db} }

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS features (
			id                  TEXT PRIMARY KEY,
			project_dir         TEXT    NOT NULL,
			position            INTEGER NOT NULL DEFAULT 0,
			description         TEXT    NOT NULL,
			category            TEXT    NOT NULL DEFAULT 'functional',
			status              TEXT    NOT NULL DEFAULT 'pending',
			completion_criteria TEXT,
			work_count          INTEGER NOT NULL DEFAULT 0,
			steps               TEXT,
			is_session_work     INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT    NOT NULL,
			updated_at          TEXT    NOT NULL,
			completed_at        TEXT,
			version             INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_features_project ON features(project_dir, position);
		CREATE INDEX IF NOT EXISTS idx_features_status ON features(status);

		CREATE TABLE IF NOT EXISTS feature_transitions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			feature_id  TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status   TEXT NOT NULL,
			at          TEXT NOT NULL,
			by          TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS events (
			id           TEXT PRIMARY KEY,
			event_type   TEXT NOT NULL,
			source_agent TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			project_dir  TEXT NOT NULL,
			tool_name    TEXT,
			summary      TEXT,
			payload      TEXT,
			timestamp    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
		CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_dir);

		CREATE TABLE IF NOT EXISTS event_links (
			event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			feature_id TEXT NOT NULL,
			linked_at  TEXT NOT NULL,
			PRIMARY KEY (event_id, feature_id)
		);
		CREATE INDEX IF NOT EXISTS idx_event_links_feature ON event_links(feature_id);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id    TEXT PRIMARY KEY,
			source_agent  TEXT NOT NULL,
			project_dir   TEXT NOT NULL,
			started_at    TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'active'
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ----- features -----

type sqlFeatures struct{ db *sql.DB }

const featureColumns = `id, project_dir, position, description, category, status,
	completion_criteria, work_count, steps, is_session_work, created_at, updated_at,
	completed_at, version`

func scanFeature(row rowScanner) (*feature.Feature, error) {
	var (
		f                            feature.Feature
		status                       string
		criteria, steps, completedAt sql.NullString
		createdAt, updatedAt         string
		sessionWork                  int
	)
	if err := row.Scan(&f.ID, &f.ProjectDir, &f.Position, &f.Description, &f.Category, &status,
		&criteria, &f.WorkCount, &steps, &sessionWork, &createdAt, &updatedAt,
		&completedAt, &f.Version); err != nil {
		return nil, err
	}
	f.Status = feature.Status(status)
	f.IsSessionWork = sessionWork != 0

	if err := f.Criteria.UnmarshalJSON([]byte(criteria.String)); err != nil {
		f.Criteria = feature.Manual()
	}
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &f.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps of %s: %w", f.ID, err)
		}
	}

	var err error
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("decoding created_at of %s: %w", f.ID, err)
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decoding updated_at of %s: %w", f.ID, err)
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decoding completed_at of %s: %w", f.ID, err)
		}
		f.CompletedAt = &t
	}
	return &f, nil
}

func featureArgs(f *feature.Feature) ([]any, error) {
	criteria, err := json.Marshal(f.Criteria)
	if err != nil {
		return nil, fmt.Errorf("encoding criteria: %w", err)
	}
	var steps sql.NullString
	if len(f.Steps) > 0 {
		data, err := json.Marshal(f.Steps)
		if err != nil {
			return nil, fmt.Errorf("encoding steps: %w", err)
		}
		steps = sql.NullString{String: string(data), Valid: true}
	}
	var completedAt sql.NullString
	if f.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*f.CompletedAt), Valid: true}
	}
	sessionWork := 0
	if f.IsSessionWork {
		sessionWork = 1
	}
	return []any{
		f.ProjectDir, f.Position, f.Description, f.Category, string(f.Status),
		string(criteria), f.WorkCount, steps, sessionWork,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt), completedAt,
	}, nil
}

func (r sqlFeatures) query(ctx context.Context, q string, args ...any) ([]*feature.Feature, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying features: %w", err)
	}
	defer rows.Close()

	var out []*feature.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning feature: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r sqlFeatures) List(ctx context.Context, projectDir string) ([]*feature.Feature, error) {
	return r.query(ctx,
		`SELECT `+featureColumns+` FROM features WHERE project_dir = ? ORDER BY position, id`,
		projectDir)
}

func (r sqlFeatures) Get(ctx context.Context, id string) (*feature.Feature, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+featureColumns+` FROM features WHERE id = ?`, id)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", feature.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting feature %s: %w", id, err)
	}
	return f, nil
}

func (r sqlFeatures) FindByStatus(ctx context.Context, projectDir string, status feature.Status) ([]*feature.Feature, error) {
	if projectDir == "" {
		return r.query(ctx,
			`SELECT `+featureColumns+` FROM features WHERE status = ? ORDER BY project_dir, position, id`,
			string(status))
	}
	return r.query(ctx,
		`SELECT `+featureColumns+` FROM features WHERE status = ? AND project_dir = ? ORDER BY position, id`,
		string(status), projectDir)
}

func (r sqlFeatures) FindWithZeroEvents(ctx context.Context, status feature.Status) ([]*feature.Feature, error) {
	return r.query(ctx, `
		SELECT `+featureColumns+` FROM features f
		WHERE f.status = ?
		  AND f.completed_at IS NOT NULL
		  AND f.created_at > ?
		  AND NOT EXISTS (SELECT 1 FROM event_links l WHERE l.feature_id = f.id)
		ORDER BY f.completed_at DESC, f.id`,
		string(status), formatTime(time.Time{}))
}

func (r sqlFeatures) Create(ctx context.Context, f *feature.Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}
	args, err := featureArgs(f)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO features (id, project_dir, position, description, category, status,
			completion_criteria, work_count, steps, is_session_work, created_at, updated_at,
			completed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		append([]any{f.ID}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", feature.ErrDuplicate, f.ID)
		}
		return fmt.Errorf("creating feature: %w", err)
	}
	f.Version = 1
	return nil
}

func (r sqlFeatures) Update(ctx context.Context, features []*feature.Feature, transitions ...feature.Transition) error {
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range features {
		args, err := featureArgs(f)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE features SET project_dir = ?, position = ?, description = ?, category = ?,
				status = ?, completion_criteria = ?, work_count = ?, steps = ?, is_session_work = ?,
				created_at = ?, updated_at = ?, completed_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			append(args, f.ID, f.Version)...)
		if err != nil {
			return fmt.Errorf("updating feature %s: %w", f.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating feature %s: %w", f.ID, err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM features WHERE id = ?`, f.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", feature.ErrNotFound, f.ID)
			}
			return fmt.Errorf("%w: %s", feature.ErrVersionConflict, f.ID)
		}
	}

	if err := insertTransitions(ctx, tx, transitions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, f := range features {
		f.Version++
	}
	return nil
}

func insertTransitions(ctx context.Context, tx execer, transitions []feature.Transition) error {
	for _, t := range transitions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feature_transitions (feature_id, from_status, to_status, at, by) VALUES (?, ?, ?, ?, ?)`,
			t.FeatureID, string(t.From), string(t.To), formatTime(t.At), t.By); err != nil {
			return fmt.Errorf("recording transition: %w", err)
		}
	}
	return nil
}

func (r sqlFeatures) ReplaceProject(ctx context.Context, projectDir string, features []*feature.Feature) error {
	for _, f := range features {
		if f.ProjectDir != projectDir {
			return fmt.Errorf("%w: feature %s belongs to %s", feature.ErrInvalidFeature, f.ID, f.ProjectDir)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	previous := make(map[string]int64)
	rows, err := tx.QueryContext(ctx, `SELECT id, version FROM features WHERE project_dir = ?`, projectDir)
	if err != nil {
		return fmt.Errorf("reading project features: %w", err)
	}
	for rows.Next() {
		var id string
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			rows.Close()
			return fmt.Errorf("scanning project features: %w", err)
		}
		previous[id] = version
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading project features: %w", err)
	}

	for _, f := range features {
		if f.Version != 0 && previous[f.ID] != f.Version {
			return fmt.Errorf("%w: %s", feature.ErrVersionConflict, f.ID)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE project_dir = ?`, projectDir); err != nil {
		return fmt.Errorf("clearing project features: %w", err)
	}
	for _, f := range features {
		args, err := featureArgs(f)
		if err != nil {
			return err
		}
		version := previous[f.ID] + 1
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO features (id, project_dir, position, description, category, status,
				completion_criteria, work_count, steps, is_session_work, created_at, updated_at,
				completed_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(append([]any{f.ID}, args...), version)...); err != nil {
			return fmt.Errorf("inserting feature %s: %w", f.ID, err)
		}
		f.Version = version
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r sqlFeatures) Projects(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT project_dir FROM features ORDER BY project_dir`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r sqlFeatures) Transitions(ctx context.Context, limit int) ([]feature.Transition, error) {
	q := `SELECT feature_id, from_status, to_status, at, by FROM feature_transitions ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	defer rows.Close()

	var out []feature.Transition
	for rows.Next() {
		var t feature.Transition
		var from, to, at string
		if err := rows.Scan(&t.FeatureID, &from, &to, &at, &t.By); err != nil {
			return nil, err
		}
		t.From, t.To = feature.Status(from), feature.Status(to)
		if t.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("decoding transition time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----- events -----

type sqlEvents struct{ db *sql.DB }

const eventSelect = `
	SELECT e.id, e.event_type, e.source_agent, e.session_id, e.project_dir, e.tool_name,
		e.summary, e.payload, e.timestamp,
		(SELECT MIN(l.feature_id) FROM event_links l WHERE l.event_id = e.id)
	FROM events e`

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		e                                   event.Event
		eventType, ts                       string
		toolName, summary, payload, linkID sql.NullString
	)
	if err := row.Scan(&e.ID, &eventType, &e.SourceAgent, &e.SessionID, &e.ProjectDir,
		&toolName, &summary, &payload, &ts, &linkID); err != nil {
		return nil, err
	}
	e.Type = event.Type(eventType)
	e.ToolName = toolName.String
	e.Summary = summary.String
	e.FeatureID = linkID.String
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of %s: %w", e.ID, err)
		}
	}
	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("decoding timestamp of %s: %w", e.ID, err)
	}
	return &e, nil
}

func (r sqlEvents) Insert(ctx context.Context, e *event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", event.ErrInvalidEvent)
	}

	var payload sql.NullString
	if len(e.Payload) > 0 {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, event_type, source_agent, session_id, project_dir, tool_name, summary, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.SourceAgent, e.SessionID, e.ProjectDir,
		nullableString(e.ToolName), nullableString(e.Summary), payload, formatTime(e.Timestamp)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate id %s", event.ErrInvalidEvent, e.ID)
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	if e.FeatureID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_links (event_id, feature_id, linked_at) VALUES (?, ?, ?)`,
			e.ID, e.FeatureID, formatTime(e.Timestamp)); err != nil {
			return fmt.Errorf("linking event: %w", err)
		}
	}
	return tx.Commit()
}

func (r sqlEvents) Get(ctx context.Context, id string) (*event.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, eventSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", event.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}
	return e, nil
}

func (r sqlEvents) FindInWindow(ctx context.Context, start, end time.Time) ([]*event.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		eventSelect+` WHERE e.timestamp >= ? AND e.timestamp <= ? ORDER BY e.timestamp, e.rowid`,
		formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r sqlEvents) Link(ctx context.Context, eventID, featureID string) (bool, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", event.ErrNotFound, eventID)
		}
		return false, fmt.Errorf("checking event: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM features WHERE id = ?`, featureID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", feature.ErrNotFound, featureID)
		}
		return false, fmt.Errorf("checking feature: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_links (event_id, feature_id, linked_at) VALUES (?, ?, ?)`,
		eventID, featureID, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("linking event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("linking event: %w", err)
	}
	return n > 0, nil
}

func (r sqlEvents) Unlink(ctx context.Context, eventID, featureID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM event_links WHERE event_id = ? AND feature_id = ?`, eventID, featureID); err != nil {
		return fmt.Errorf("unlinking event: %w", err)
	}
	return nil
}

func (r sqlEvents) CountByFeature(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT feature_id, COUNT(*) FROM event_links GROUP BY feature_id`)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var fid string
		var n int
		if err := rows.Scan(&fid, &n); err != nil {
			return nil, err
		}
		out[fid] = n
	}
	return out, rows.Err()
}

func (r sqlEvents) ReassignProject(ctx context.Context, from, to string) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE events SET project_dir = ? WHERE project_dir = ?`, to, from)
	if err != nil {
		return 0, fmt.Errorf("reassigning events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ----- sessions -----

type sqlSessions struct{ db *sql.DB }

func (r sqlSessions) Start(ctx context.Context, s *session.Session) error {
	last := s.LastActivity
	if last.IsZero() {
		last = s.StartedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, source_agent, project_dir, started_at, last_activity, status)
		VALUES (?, ?, ?, ?, ?, 'active')
		ON CONFLICT(session_id) DO UPDATE SET
			source_agent = excluded.source_agent,
			project_dir = excluded.project_dir,
			last_activity = excluded.last_activity,
			status = 'active'`,
		s.ID, s.SourceAgent, s.ProjectDir, formatTime(s.StartedAt), formatTime(last))
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	return nil
}

func (r sqlSessions) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE session_id = ? AND last_activity < ?`,
		formatTime(at), id, formatTime(at))
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

func (r sqlSessions) End(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'ended',
			last_activity = CASE WHEN last_activity < ? THEN ? ELSE last_activity END
		WHERE session_id = ?`,
		formatTime(at), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return nil
}

func (r sqlSessions) EndStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'ended' WHERE status = 'active' AND last_activity < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("ending stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r sqlSessions) Sessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, source_agent, project_dir, started_at, last_activity, status
		FROM sessions ORDER BY last_activity DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var s session.Session
		var started, last, status string
		if err := rows.Scan(&s.ID, &s.SourceAgent, &s.ProjectDir, &started, &last, &status); err != nil {
			return nil, err
		}
		s.Status = session.Status(status)
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("decoding started_at: %w", err)
		}
		if s.LastActivity, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("decoding last_activity: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r sqlSessions) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func (r sqlSessions) ReassignProject(ctx context.Context, from, to string) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET project_dir = ? WHERE project_dir = ?`, to, from)
	if err != nil {
		return 0, fmt.Errorf("reassigning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
