// Package db opens the Mnemo SQLite database and applies schema migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultEmbeddingDimension is used when creating vec0 virtual tables and no
// dimension is configured. nomic-embed-text (the default Ollama embed model)
// produces 768-dim vectors; text-embedding-3-small produces 1536.
const DefaultEmbeddingDimension = 768

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn       *sql.DB
	vecEnabled bool
}

// Open opens (or creates) the SQLite database at path, applies migrations,
// and creates the per-kind vec0 virtual tables with the given embedding
// dimension (0 means DefaultEmbeddingDimension).
func Open(path string, dimension int) (*DB, error) {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer, multiple readers.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	// Non-fatal: sqlite-vec may not be available in all build
	// configurations. Semantic search degrades to field lookup, and the
	// vector store checks this flag so later query errors are real ones.
	vecEnabled := applyVectorTables(conn, dimension) == nil

	return &DB{conn: conn, vecEnabled: vecEnabled}, nil
}

// Conn returns the underlying *sql.DB for use by store layers.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// VecEnabled reports whether the vec0 module was available and the per-kind
// vector tables exist.
func (d *DB) VecEnabled() bool {
	return d.vecEnabled
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}
