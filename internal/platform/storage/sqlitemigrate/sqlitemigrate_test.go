package sqlitemigrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrationsRunsOnce(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_events.sql": &fstest.MapFile{Data: []byte(`
-- +migrate Up
CREATE TABLE things (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE things;
`)},
	}

	if err := ApplyMigrations(db, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// A second run must be a no-op.
	if err := ApplyMigrations(db, fsys); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	if _, err := db.Exec("INSERT INTO things (id) VALUES ('a')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", count)
	}
}

func TestApplyMigrationsLexicalOrder(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0002_add_column.sql": &fstest.MapFile{Data: []byte(`
-- +migrate Up
ALTER TABLE events ADD COLUMN note TEXT;
`)},
		"0001_events.sql": &fstest.MapFile{Data: []byte(`
-- +migrate Up
CREATE TABLE events (id TEXT PRIMARY KEY);
`)},
	}

	if err := ApplyMigrations(db, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec("INSERT INTO events (id, note) VALUES ('a', 'b')"); err != nil {
		t.Fatalf("insert with migrated column: %v", err)
	}
}

func TestApplyMigrationsNilDB(t *testing.T) {
	if err := ApplyMigrations(nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestExtractUpWithoutMarkers(t *testing.T) {
	content := "CREATE TABLE plain (id TEXT);"
	if got := extractUp(content); got != content {
		t.Fatalf("expected unmarked content unchanged, got %q", got)
	}
}
