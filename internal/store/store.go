// Package store is the single durable authority for the automaton's state:
// an ordered log of turns and tool calls, a key-value side table, the inbox,
// memory entries, and the audit tables. One process, one file, WAL mode.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"automa/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// TimeLayout is the canonical timestamp format for every persisted row.
// Fixed-width UTC so lexicographic order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// NewID returns a sortable, per-process monotone identifier (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Store wraps the SQLite database. All access is serialized through a single
// connection; readers elsewhere (the observability server) open their own
// read path through the same handle and rely on WAL snapshots.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the database at path, creating it when absent, and brings
// the schema up to date. A corrupt or future-versioned database is fatal.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening state store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if err := restrictPermissions(path); err != nil {
			logging.StoreWarn("Could not restrict database permissions: %v", err)
		}
	}

	logging.Store("State store ready (schema v%d)", CurrentSchemaVersion)
	return s, nil
}

// restrictPermissions chmods the database and its WAL/SHM sidecars to 0600.
func restrictPermissions(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Chmod(p, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	logging.StoreDebug("Closing state store")
	return s.db.Close()
}

// DB exposes the raw handle for read-only consumers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the on-disk database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Stats returns row counts per table, keyed by table name.
func (s *Store) Stats() (map[string]int, error) {
	tables := []string{
		"turns", "tool_calls", "kv", "inbox",
		"episodic_memory", "semantic_memory", "relationship_memory", "working_memory",
		"modifications", "children", "skills", "distress_signals",
	}
	stats := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
