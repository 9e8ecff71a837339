package store

import (
	"fmt"
	"time"

	"automa/internal/logging"
)

// Schema history:
// v1: core log (turns, tool_calls, kv)
// v2: inbox
// v3: memory tables (episodic, semantic, relationship, working)
// v4: audit tables (modifications, distress_signals)
// v5: lineage (children, skills)
// v6: pending inputs (scheduler-to-loop queue)
const CurrentSchemaVersion = 6

// ErrMigrationMissing means the database was written by a newer build.
var ErrMigrationMissing = fmt.Errorf("database schema is newer than this build")

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "core log",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS turns (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				state TEXT NOT NULL,
				input TEXT,
				input_source TEXT,
				thinking TEXT NOT NULL DEFAULT '',
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				cost_cents INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_ts_id ON turns(timestamp DESC, id DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_state ON turns(state)`,
			`CREATE TABLE IF NOT EXISTS tool_calls (
				id TEXT PRIMARY KEY,
				turn_id TEXT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
				seq INTEGER NOT NULL,
				name TEXT NOT NULL,
				arguments TEXT NOT NULL DEFAULT '{}',
				result TEXT NOT NULL DEFAULT '',
				duration_ms INTEGER NOT NULL DEFAULT 0,
				error TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_calls_turn ON tool_calls(turn_id, seq)`,
			`CREATE TABLE IF NOT EXISTS kv (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "inbox",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS inbox (
				id TEXT PRIMARY KEY,
				from_address TEXT NOT NULL,
				to_address TEXT NOT NULL,
				content TEXT NOT NULL,
				signed_at TEXT,
				created_at TEXT NOT NULL,
				reply_to TEXT,
				processed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_inbox_unprocessed ON inbox(processed_at, created_at)`,
		},
	},
	{
		version: 3,
		name:    "memory",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS episodic_memory (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				summary TEXT NOT NULL,
				detail TEXT,
				outcome TEXT NOT NULL DEFAULT 'neutral',
				importance REAL NOT NULL DEFAULT 0.5,
				classification TEXT NOT NULL DEFAULT 'productive',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_episodic_session ON episodic_memory(session_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_episodic_class ON episodic_memory(classification)`,
			`CREATE TABLE IF NOT EXISTS semantic_memory (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS relationship_memory (
				agent_id TEXT PRIMARY KEY,
				relation TEXT NOT NULL,
				contacted_count INTEGER NOT NULL DEFAULT 0,
				messaged_us_count INTEGER NOT NULL DEFAULT 0,
				last_interaction TEXT NOT NULL,
				notes TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS working_memory (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				content TEXT NOT NULL,
				entry_type TEXT NOT NULL,
				priority REAL NOT NULL DEFAULT 0.5,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_working_session ON working_memory(session_id, priority)`,
		},
	},
	{
		version: 4,
		name:    "audit",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS modifications (
				id TEXT PRIMARY KEY,
				path TEXT NOT NULL,
				operation TEXT NOT NULL,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_modifications_created ON modifications(created_at)`,
			`CREATE TABLE IF NOT EXISTS distress_signals (
				id TEXT PRIMARY KEY,
				reason TEXT NOT NULL,
				tier TEXT NOT NULL,
				credits_cents INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 5,
		name:    "lineage",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS children (
				address TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				role TEXT,
				status TEXT NOT NULL DEFAULT 'spawned',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS skills (
				name TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 6,
		name:    "pending inputs",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS pending_inputs (
				id TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				source TEXT NOT NULL,
				created_at TEXT NOT NULL,
				consumed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_unconsumed ON pending_inputs(consumed_at, created_at)`,
		},
	},
}

// migrate applies all pending migrations in order, inside one transaction
// per migration. A database whose recorded version exceeds what this build
// knows is refused.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current > CurrentSchemaVersion {
		return fmt.Errorf("%w: database at v%d, build supports v%d", ErrMigrationMissing, current, CurrentSchemaVersion)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		logging.Store("Applying migration v%d (%s)", m.version, m.name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration v%d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d (%s) failed: %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.version, m.name, FormatTime(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", m.version, err)
		}
		applied++
	}

	if applied > 0 {
		logging.Store("Schema migrations complete: applied=%d, now at v%d", applied, CurrentSchemaVersion)
	} else {
		logging.StoreDebug("Schema up to date at v%d", current)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
