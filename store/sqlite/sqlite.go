/*
Package sqlite provides the SQLite-backed persistence for the sprint engine.

PURPOSE:
  Stores sprints, saved compensation plans and daily updates. The calculator
  itself never touches the database: it hands a compensation.Snapshot across
  and gets back success or failure.

KEY TABLES:
  sprints:            Client engagements and their schedule window
  compensation_plans: Saved calculator snapshots (inputs + outputs JSON)
  daily_updates:      Per-day progress notes with links and attachments

QUERIES:
  Parameterised only. Saved plans are append-only: saving again adds a new
  row, and the latest row is the current plan.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single writer.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the writer.

USAGE:
  store, err := sqlite.New("./data/sprints.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - compensation/snapshot.go: Stored plan shape
  - sprint/sprint.go, sprint/update.go: Stored record types
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/generic"
	"github.com/warp/sprint-engine/sprint"
)

// Store implements persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each new connection to ":memory:" is a fresh database.
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Sprints
	CREATE TABLE IF NOT EXISTS sprints (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		weeks INTEGER NOT NULL DEFAULT 2,
		created_at TEXT NOT NULL
	);

	-- Saved compensation plans (append-only; latest wins)
	CREATE TABLE IF NOT EXISTS compensation_plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
		label TEXT,
		inputs_json TEXT NOT NULL,
		outputs_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_compensation_plans_sprint
		ON compensation_plans(sprint_id, id DESC);

	-- Daily updates
	CREATE TABLE IF NOT EXISTS daily_updates (
		id TEXT PRIMARY KEY,
		sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
		sprint_day INTEGER NOT NULL CHECK (sprint_day >= 1),
		frame TEXT,
		body TEXT NOT NULL,
		links_json TEXT NOT NULL DEFAULT '[]',
		attachments_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_daily_updates_sprint_day
		ON daily_updates(sprint_id, sprint_day);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row. Used by tests and local demos.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM daily_updates;
		DELETE FROM compensation_plans;
		DELETE FROM sprints;
	`)
	return err
}

// =============================================================================
// SPRINT STORE
// =============================================================================

// SaveSprint inserts or updates a sprint.
func (s *Store) SaveSprint(ctx context.Context, sp sprint.Sprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sprints (id, title, client_name, start_date, weeks, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			client_name = excluded.client_name,
			start_date = excluded.start_date,
			weeks = excluded.weeks
	`

	var startDate sql.NullString
	if sp.StartDate != nil {
		startDate = nullString(sp.StartDate.Format(generic.DateLayout))
	}
	createdAt := sp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		string(sp.ID), sp.Title, sp.ClientName, startDate, sp.Weeks,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetSprint retrieves a sprint by ID. It returns generic.ErrSprintNotFound
// when there is no such sprint.
func (s *Store) GetSprint(ctx context.Context, id generic.SprintID) (*sprint.Sprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, client_name, start_date, weeks, created_at FROM sprints WHERE id = ?",
		string(id),
	)
	sp, err := scanSprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrSprintNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListSprints returns all sprints, newest first.
func (s *Store) ListSprints(ctx context.Context) ([]sprint.Sprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, client_name, start_date, weeks, created_at FROM sprints ORDER BY created_at DESC, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sprints []sprint.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// DeleteSprint removes a sprint and, by cascade, its plans and updates.
func (s *Store) DeleteSprint(ctx context.Context, id generic.SprintID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM sprints WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrSprintNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSprint(row scanner) (sprint.Sprint, error) {
	var sp sprint.Sprint
	var id, createdAt string
	var startDate sql.NullString

	if err := row.Scan(&id, &sp.Title, &sp.ClientName, &startDate, &sp.Weeks, &createdAt); err != nil {
		return sprint.Sprint{}, err
	}
	sp.ID = generic.SprintID(id)
	if startDate.Valid {
		if t, err := time.Parse(generic.DateLayout, startDate.String); err == nil {
			sp.StartDate = &t
		}
	}
	sp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return sp, nil
}

// =============================================================================
// COMPENSATION PLAN STORE
// =============================================================================

// PlanRecord is a saved snapshot with its row metadata.
type PlanRecord struct {
	ID        int64
	Snapshot  compensation.Snapshot
	CreatedAt time.Time
}

// SaveCompensationPlan appends a snapshot for its sprint.
func (s *Store) SaveCompensationPlan(ctx context.Context, snap compensation.Snapshot) (int64, error) {
	inputs, err := json.Marshal(snap.Inputs)
	if err != nil {
		return 0, fmt.Errorf("encode inputs: %w", err)
	}
	outputs, err := json.Marshal(snap.Outputs)
	if err != nil {
		return 0, fmt.Errorf("encode outputs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var label sql.NullString
	if snap.Label != nil {
		label = nullString(*snap.Label)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO compensation_plans (sprint_id, label, inputs_json, outputs_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.SprintID, label, string(inputs), string(outputs), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isForeignKeyError(err) {
			return 0, generic.ErrSprintNotFound
		}
		return 0, err
	}
	return res.LastInsertId()
}

// ListCompensationPlans returns a sprint's saved plans, newest first.
func (s *Store) ListCompensationPlans(ctx context.Context, sprintID generic.SprintID) ([]PlanRecord, error) {
	return s.queryPlans(ctx, `
		SELECT id, sprint_id, label, inputs_json, outputs_json, created_at
		FROM compensation_plans WHERE sprint_id = ? ORDER BY id DESC
	`, string(sprintID))
}

// LatestCompensationPlan returns the most recent plan, or nil if none.
func (s *Store) LatestCompensationPlan(ctx context.Context, sprintID generic.SprintID) (*PlanRecord, error) {
	records, err := s.queryPlans(ctx, `
		SELECT id, sprint_id, label, inputs_json, outputs_json, created_at
		FROM compensation_plans WHERE sprint_id = ? ORDER BY id DESC LIMIT 1
	`, string(sprintID))
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (s *Store) queryPlans(ctx context.Context, query string, args ...any) ([]PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		var r PlanRecord
		var label sql.NullString
		var inputs, outputs, createdAt string
		if err := rows.Scan(&r.ID, &r.Snapshot.SprintID, &label, &inputs, &outputs, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputs), &r.Snapshot.Inputs); err != nil {
			return nil, fmt.Errorf("decode plan %d inputs: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(outputs), &r.Snapshot.Outputs); err != nil {
			return nil, fmt.Errorf("decode plan %d outputs: %w", r.ID, err)
		}
		if label.Valid {
			l := label.String
			r.Snapshot.Label = &l
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// DAILY UPDATE STORE
// =============================================================================

// SaveDailyUpdate inserts a daily update.
func (s *Store) SaveDailyUpdate(ctx context.Context, u sprint.DailyUpdate) error {
	links, err := json.Marshal(nonNil(u.Links))
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	attachments, err := json.Marshal(nonNil(u.Attachments))
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var frame sql.NullString
	if u.Frame != nil {
		frame = nullString(*u.Frame)
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_updates (id, sprint_id, sprint_day, frame, body, links_json, attachments_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, string(u.SprintID), u.SprintDay, frame, u.Body, string(links), string(attachments),
		createdAt.UTC().Format(time.RFC3339Nano))
	if isForeignKeyError(err) {
		return generic.ErrSprintNotFound
	}
	return err
}

// ListDailyUpdates returns a sprint's updates ordered by sprint day, then
// creation time.
func (s *Store) ListDailyUpdates(ctx context.Context, sprintID generic.SprintID) ([]sprint.DailyUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sprint_id, sprint_day, frame, body, links_json, attachments_json, created_at
		FROM daily_updates WHERE sprint_id = ? ORDER BY sprint_day, created_at
	`, string(sprintID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []sprint.DailyUpdate
	for rows.Next() {
		var u sprint.DailyUpdate
		var sid, links, attachments, createdAt string
		var frame sql.NullString
		if err := rows.Scan(&u.ID, &sid, &u.SprintDay, &frame, &u.Body, &links, &attachments, &createdAt); err != nil {
			return nil, err
		}
		u.SprintID = generic.SprintID(sid)
		if frame.Valid {
			f := frame.String
			u.Frame = &f
		}
		if err := json.Unmarshal([]byte(links), &u.Links); err != nil {
			return nil, fmt.Errorf("decode update %s links: %w", u.ID, err)
		}
		if err := json.Unmarshal([]byte(attachments), &u.Attachments); err != nil {
			return nil, fmt.Errorf("decode update %s attachments: %w", u.ID, err)
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
