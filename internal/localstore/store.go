// Package localstore provides the embedded SQLite store for task records.
//
// The store is the always-available local side of the sync pair. It offers:
//
//   - idempotent Open/Close with transparent re-open on reuse
//   - serialized write transactions with commit-or-rollback on all exit paths
//   - primary-key lookup and filtered listing
//   - live queries: subscriptions whose listeners fire once immediately and
//     again after every committed write transaction
//
// The database runs in embedded mode with WAL so readers never block the
// single logical writer.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskwell/tasksync/internal/task"
)

// ErrStorageUnavailable wraps any failure to initialize the underlying
// database. It is fatal to the current session's sync capability and is not
// retried automatically.
var ErrStorageUnavailable = errors.New("local store unavailable")

// ErrNotFound is returned by lookups for ids with no record.
var ErrNotFound = errors.New("task not found")

// schemaVersion is the current persisted layout version (PRAGMA user_version).
// Version 2 added the priority and due_at columns.
const schemaVersion = 2

// Store wraps the embedded SQLite database holding task records.
//
// A Store handle stays valid across Close: any operation after Close
// re-opens the database transparently.
type Store struct {
	path   string
	logger *log.Logger

	mu   sync.Mutex // held across open/close and every write transaction
	conn *sql.DB

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

// New creates a Store for the database file at path. The database is not
// touched until Open (or the first operation). If logger is nil, a default
// logger writing to stderr is used.
func New(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		path:   path,
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Open initializes the database, creating the file and schema if needed.
// Open is idempotent: calling it on an already-open store is a no-op.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Store) openLocked() error {
	if s.conn != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create database directory: %v", ErrStorageUnavailable, err)
	}

	conn, err := sql.Open("sqlite3", "file:"+s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: ping failed: %v", ErrStorageUnavailable, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, pragma, err)
		}
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.conn = conn
	return nil
}

// Close closes the database connection after a WAL checkpoint.
// The Store remains usable; the next operation re-opens it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// migrate brings the schema to the current version, backfilling defaults for
// fields added after a record was written. Pre-version-2 databases gain the
// priority ("none") and due_at (NULL) columns.
func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == 0 {
		schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			updated_at_millis INTEGER NOT NULL DEFAULT 0,
			dirty INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			priority TEXT NOT NULL DEFAULT 'none',
			due_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_dirty ON tasks(owner_id, dirty);
		CREATE INDEX IF NOT EXISTS idx_tasks_deleted ON tasks(owner_id, deleted);
		`
		if _, err := conn.Exec(schema); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else if version == 1 {
		// v1 -> v2: richer task metadata. Every pre-existing record gets the
		// documented defaults.
		stmts := []string{
			`ALTER TABLE tasks ADD COLUMN priority TEXT NOT NULL DEFAULT 'none'`,
			`ALTER TABLE tasks ADD COLUMN due_at TEXT`,
			`UPDATE tasks SET priority = 'none' WHERE priority IS NULL OR priority = ''`,
		}
		for _, stmt := range stmts {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("migration to v2 failed: %w", err)
			}
		}
	} else if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// Update runs fn inside a single write transaction. Write transactions are
// serialized: no two run concurrently against the same handle. If fn returns
// an error or panics the transaction is rolled back; otherwise it commits
// and all live-query subscriptions are notified.
func (s *Store) Update(fn func(tx *Tx) error) error {
	if err := s.update(fn); err != nil {
		return err
	}
	s.notifySubscribers()
	return nil
}

func (s *Store) update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}

	sqlTx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Get retrieves a single task by id. Returns ErrNotFound if absent.
func (s *Store) Get(id string) (*task.Task, error) {
	conn, err := s.handle()
	if err != nil {
		return nil, err
	}
	return getTask(conn, id)
}

// List returns the tasks matching q, ordered by creation time.
func (s *Store) List(q Query) ([]*task.Task, error) {
	conn, err := s.handle()
	if err != nil {
		return nil, err
	}
	where, args := q.build()
	rows, err := conn.Query(selectColumns+` FROM tasks `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// handle returns the open connection, re-opening the store if needed.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

// Query selects a filtered subset of records. The zero value matches every
// live (non-tombstone) record; tombstones are visible only to callers that
// set IncludeDeleted, which is how the sync engine sees pending deletions
// that user-facing queries must exclude.
type Query struct {
	// OwnerID scopes the query to one user's records (empty = all).
	OwnerID string
	// DirtyOnly restricts to records with unsynced local changes.
	DirtyOnly bool
	// IncludeDeleted includes soft-deleted tombstones.
	IncludeDeleted bool
}

func (q Query) build() (string, []any) {
	var conditions []string
	var args []any

	if q.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.DirtyOnly {
		conditions = append(conditions, "dirty = 1")
	}
	if !q.IncludeDeleted {
		conditions = append(conditions, "deleted = 0")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// Tx is the handle passed to Update callbacks. All mutations go through it,
// so they are covered by the enclosing transaction.
type Tx struct {
	tx *sql.Tx
}

// Put inserts or updates a task. On update every mutable field is replaced;
// created_at is deliberately absent from the update set so it can never be
// overwritten after creation.
func (t *Tx) Put(tk *task.Task) error {
	if err := tk.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, owner_id, title, completed, created_at, updated_at,
		updated_at_millis, dirty, deleted, priority, due_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		title = excluded.title,
		completed = excluded.completed,
		updated_at = excluded.updated_at,
		updated_at_millis = excluded.updated_at_millis,
		dirty = excluded.dirty,
		deleted = excluded.deleted,
		priority = excluded.priority,
		due_at = excluded.due_at
	`

	_, err := t.tx.Exec(query,
		tk.ID,
		tk.OwnerID,
		tk.Title,
		boolToInt(tk.Completed),
		tk.CreatedAt.Format(time.RFC3339Nano),
		tk.UpdatedAt.Format(time.RFC3339Nano),
		tk.UpdatedAtMillis,
		boolToInt(tk.Dirty),
		boolToInt(tk.Deleted),
		string(tk.Priority),
		timeToNullString(tk.DueAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", tk.ID, err)
	}
	return nil
}

// Get retrieves a task by id within the transaction.
func (t *Tx) Get(id string) (*task.Task, error) {
	return getTask(t.tx, id)
}

// Delete physically removes a task. Idempotent: deleting an absent id is
// a no-op. Soft deletion is a Put with Deleted=true; this is the physical
// removal performed once a deletion is confirmed synced.
func (t *Tx) Delete(id string) error {
	if _, err := t.tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// List returns tasks matching q within the transaction.
func (t *Tx) List(q Query) ([]*task.Task, error) {
	where, args := q.build()
	rows, err := t.tx.Query(selectColumns+` FROM tasks `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const selectColumns = `SELECT id, owner_id, title, completed, created_at, updated_at,
	updated_at_millis, dirty, deleted, priority, due_at`

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getTask(q queryer, id string) (*task.Task, error) {
	row := q.QueryRow(selectColumns+` FROM tasks WHERE id = ?`, id)
	tk, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return tk, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var tk task.Task
	var completed, dirty, deleted int
	var createdAt, updatedAt, priority string
	var dueAt sql.NullString

	err := row.Scan(
		&tk.ID,
		&tk.OwnerID,
		&tk.Title,
		&completed,
		&createdAt,
		&updatedAt,
		&tk.UpdatedAtMillis,
		&dirty,
		&deleted,
		&priority,
		&dueAt,
	)
	if err != nil {
		return nil, err
	}

	tk.Completed = completed != 0
	tk.Dirty = dirty != 0
	tk.Deleted = deleted != 0
	tk.Priority = task.Priority(priority)
	tk.SetDefaults()

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		tk.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		tk.UpdatedAt = t
	}
	tk.DueAt = nullStringToTime(dueAt)

	return &tk, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, tk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
