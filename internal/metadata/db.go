// Package metadata provides calm's relational metadata store: GHAP
// records, gate passes, session journal entries, and per-session
// counters. It exclusively owns these relational records; the vector
// store exclusively owns vectors and their payloads (see
// internal/vectorstore). Backed by modernc.org/sqlite, the pure-Go
// SQLite driver, so calm never requires cgo.
package metadata

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"calm/internal/logging"
)

// DB wraps the relational metadata store. Every write is a single short
// transaction bounded to one logical operation: no transaction spans a
// cooperative suspension point.
type DB struct {
	sqldb *sql.DB
	mu    sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path and runs
// migrations. Tolerates cold start: an absent file is created with an
// empty schema.
func Open(path string) (*DB, error) {
	timer := logging.StartTimer(logging.CategoryMetadataStore, "Open")
	defer timer.Stop()

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	sqldb.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := sqldb.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := sqldb.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{sqldb: sqldb}
	if err := db.migrate(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to migrate metadata store: %w", err)
	}

	logging.MetadataStore("metadata store opened: %s", path)
	return db, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error {
	return db.sqldb.Close()
}

// migrate creates every table calm needs if absent. Hand-rolled,
// idempotent (IF NOT EXISTS) rather than a migration library.
func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ghap_entries (
			id               TEXT PRIMARY KEY,
			session_id       TEXT NOT NULL,
			domain           TEXT NOT NULL,
			strategy         TEXT NOT NULL,
			goal             TEXT NOT NULL,
			hypothesis       TEXT NOT NULL,
			action           TEXT NOT NULL,
			prediction       TEXT NOT NULL,
			status           TEXT NOT NULL,
			iteration_count  INTEGER NOT NULL DEFAULT 0,
			outcome_status   TEXT,
			outcome_result   TEXT,
			outcome_captured_at REAL,
			surprise         TEXT,
			root_cause_category TEXT,
			root_cause_description TEXT,
			lesson_what_worked TEXT,
			lesson_takeaway  TEXT,
			confidence_tier  TEXT,
			created_at       REAL NOT NULL,
			updated_at       REAL NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ghap_active_per_session
			ON ghap_entries(session_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_ghap_session ON ghap_entries(session_id)`,

		`CREATE TABLE IF NOT EXISTS session_counters (
			session_id   TEXT PRIMARY KEY,
			tool_count   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS gate_passes (
			task_id     TEXT NOT NULL,
			transition  TEXT NOT NULL,
			commit_sha  TEXT NOT NULL,
			passed_at   REAL NOT NULL,
			PRIMARY KEY (task_id, transition, commit_sha)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_passes_lookup ON gate_passes(task_id, transition, passed_at DESC)`,

		`CREATE TABLE IF NOT EXISTS journal_entries (
			id                 TEXT PRIMARY KEY,
			created_at         REAL NOT NULL,
			working_directory  TEXT NOT NULL,
			session_log_path   TEXT NOT NULL,
			summary            TEXT,
			friction_points    TEXT,
			next_steps         TEXT,
			reflected_at       REAL,
			memories_created   INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.sqldb.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed (%s): %w", stmt, err)
		}
	}
	return nil
}
