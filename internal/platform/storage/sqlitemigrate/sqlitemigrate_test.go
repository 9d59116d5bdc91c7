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

func countRows(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func TestApplyMigrationsCreatesAndRecords(t *testing.T) {
	db := openTestDB(t)

	files := fstest.MapFS{
		"0001_init.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE vault_records(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE vault_records;"),
		},
	}

	if err := ApplyMigrations(db, files, ""); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("recorded migrations = %d, want 1", n)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM vault_records"); n != 0 {
		t.Fatalf("vault_records rows = %d, want empty table", n)
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	files := fstest.MapFS{
		"0001_init.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE vault_records(id TEXT PRIMARY KEY);"),
		},
	}

	if err := ApplyMigrations(db, files, ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrations(db, files, ""); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("recorded migrations after replay = %d, want 1", n)
	}
}

func TestApplyMigrationsRunsInLexicalOrder(t *testing.T) {
	db := openTestDB(t)

	// The second file alters a table the first one creates, so any other
	// ordering would fail.
	files := fstest.MapFS{
		"0002_add_column.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nALTER TABLE vault_records ADD COLUMN name TEXT NOT NULL DEFAULT '';"),
		},
		"0001_init.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE vault_records(id TEXT PRIMARY KEY);"),
		},
	}

	if err := ApplyMigrations(db, files, ""); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 2 {
		t.Fatalf("recorded migrations = %d, want 2", n)
	}
}

func TestApplyMigrationsLeavesFailuresUnrecorded(t *testing.T) {
	db := openTestDB(t)

	bad := fstest.MapFS{
		"0001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREAT TABLE broken(id TEXT);"),
		},
	}
	if err := ApplyMigrations(db, bad, ""); err == nil {
		t.Fatal("expected error for invalid SQL")
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 0 {
		t.Fatalf("recorded migrations = %d, want 0 after failure", n)
	}
}

func TestUpSectionWithoutMarkers(t *testing.T) {
	content := "CREATE TABLE plain(id TEXT);"
	if got := upSection(content); got != content {
		t.Fatalf("upSection() = %q, want full content", got)
	}
}
