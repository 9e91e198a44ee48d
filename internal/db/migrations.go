package db

import (
	"database/sql"
	"fmt"
)

// memoryKinds lists every memory kind that gets its own vec0 table.
// Kept in sync with the Kind constants in internal/memory.
var memoryKinds = []string{"factual", "episodic", "semantic", "procedural", "working", "session"}

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migration 0: initial schema
	`CREATE TABLE IF NOT EXISTS memories (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		kind            TEXT NOT NULL,
		content         TEXT NOT NULL,
		importance      REAL NOT NULL DEFAULT 0.5,
		embedding_model TEXT NOT NULL DEFAULT '',
		metadata        TEXT NOT NULL DEFAULT '{}',
		attrs           TEXT NOT NULL DEFAULT '{}',
		session_id      TEXT,
		expires_at      DATETIME,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'active',
		message_count INTEGER NOT NULL DEFAULT 0,
		total_tokens  INTEGER NOT NULL DEFAULT 0,
		total_cost    REAL NOT NULL DEFAULT 0,
		summary       TEXT NOT NULL DEFAULT '',
		topics        TEXT NOT NULL DEFAULT '[]',
		metadata      TEXT NOT NULL DEFAULT '{}',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS session_messages (
		id                   TEXT PRIMARY KEY,
		session_id           TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id              TEXT NOT NULL,
		seq                  INTEGER NOT NULL,
		role                 TEXT NOT NULL,
		message_type         TEXT NOT NULL DEFAULT 'text',
		content              TEXT NOT NULL,
		tokens_used          INTEGER NOT NULL DEFAULT 0,
		cost_usd             REAL NOT NULL DEFAULT 0,
		is_summary_candidate INTEGER NOT NULL DEFAULT 0,
		importance           REAL NOT NULL DEFAULT 0.5,
		embedding_model      TEXT NOT NULL DEFAULT '',
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_memories_user_kind ON memories(user_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_session   ON memories(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_expires   ON memories(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user      ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session   ON session_messages(session_id, seq)`,

	// Migration 1: migration tracking table
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}

// applyVectorTables creates one sqlite-vec virtual table per memory kind.
// Called separately after the vec extension is confirmed loaded.
func applyVectorTables(conn *sql.DB, dimension int) error {
	for _, kind := range memoryKinds {
		stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_%s USING vec0(
			id TEXT PRIMARY KEY,
			embedding float[%d]
		)`, kind, dimension)
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("create vector table vec_%s: %w", kind, err)
		}
	}
	return nil
}
