package db

import (
	"path/filepath"
	"testing"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.db")
	database, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	for _, table := range []string{"memories", "sessions", "session_messages", "schema_migrations"} {
		var name string
		err := database.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.db")

	first, err := Open(path, 768)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first.Close()

	second, err := Open(path, 768)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	var applied int
	if err := second.Conn().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), applied)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "mnemo.db")
	database, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	database.Close()
}
