// Package store provides the durable local database for the QR Conquest
// client.
//
// The store holds three kinds of state in a single SQLite file:
//   - pending_captures: the offline capture queue
//   - cached_games / cached_teams / cached_bases: the read-through cache
//     of last-known game state
//   - sync_log: the flush journal recording delivered and purged entries
//
// The database runs in embedded mode with WAL for concurrency support.
// Both the foreground CLI and the background sync daemon open their own
// handle to the same file; conflicting operations are serialized by
// SQLite, so no application-level locking is needed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotInitialized is returned by every operation on a store that was
// never opened or has already been closed. Callers hitting a first-run
// race can retry after initialization instead of failing opaquely.
var ErrNotInitialized = errors.New("store: not initialized")

// ErrNotFound is returned when a requested record does not exist.
// For cache reads this means "no data available", not a retryable error.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database connection.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	// wake is the best-effort background-sync registration hook,
	// invoked after every successful enqueue. Failure is logged, never
	// surfaced: the record is queued regardless.
	wake func() error
}

// Open creates a new database connection at the specified path.
//
// The database is created along with its schema if it doesn't exist.
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".conquest/conquest.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn:   conn,
		path:   path,
		logger: log.New(os.Stderr, "[store] ", log.LstdFlags),
	}

	// WAL mode for concurrent readers during writes
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := st.initSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// SetLogger replaces the store's logger. A nil logger restores the
// default stderr logger.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	s.logger = logger
}

// SetWakeFunc installs the background-sync registration hook invoked
// after each successful enqueue. Passing nil disables it.
func (s *Store) SetWakeFunc(f func() error) {
	s.wake = f
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	-- Offline capture queue. Rows are insert-only until deleted by the
	-- flush routine; there are no updates.
	CREATE TABLE IF NOT EXISTS pending_captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		base_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Read-through cache: wholesale-replaced per game on every
	-- successful live fetch.
	CREATE TABLE IF NOT EXISTS cached_games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		host_name TEXT,
		last_updated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cached_teams (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		qr_code TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT NOT NULL,
		FOREIGN KEY (game_id) REFERENCES cached_games(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS cached_bases (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		name TEXT NOT NULL,
		qr_code TEXT NOT NULL UNIQUE,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		owner_team_id TEXT,
		points INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT NOT NULL,
		FOREIGN KEY (game_id) REFERENCES cached_games(id) ON DELETE CASCADE
	);

	-- Flush journal: records each delivered or purged queue entry so
	-- terminal rejections remain observable after the entry is gone.
	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		capture_id INTEGER NOT NULL,
		base_id TEXT NOT NULL,
		outcome TEXT NOT NULL,  -- delivered, purged
		detail TEXT,
		flushed_at TEXT NOT NULL
	);

	-- Indexes for offline lookups
	CREATE INDEX IF NOT EXISTS idx_cached_teams_game ON cached_teams(game_id);
	CREATE INDEX IF NOT EXISTS idx_cached_bases_game ON cached_bases(game_id);
	CREATE INDEX IF NOT EXISTS idx_cached_bases_qr ON cached_bases(qr_code);
	CREATE INDEX IF NOT EXISTS idx_cached_teams_qr ON cached_teams(qr_code);
	CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_captures(created_at);
	CREATE INDEX IF NOT EXISTS idx_sync_log_flushed ON sync_log(flushed_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ready reports whether the store is usable, returning ErrNotInitialized
// otherwise.
func (s *Store) ready() error {
	if s == nil || s.conn == nil {
		return ErrNotInitialized
	}
	return nil
}
