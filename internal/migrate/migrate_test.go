package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

var testFS = fstest.MapFS{
	"historian/001_tags.sql": &fstest.MapFile{
		Data: []byte("CREATE TABLE tag_defs (id INTEGER PRIMARY KEY, tagpath TEXT NOT NULL);"),
	},
	"historian/002_samples.sql": &fstest.MapFile{
		Data: []byte("CREATE TABLE tag_samples (tagid INTEGER NOT NULL, t_stamp INTEGER NOT NULL);"),
	},
	"historian/notes.txt": &fstest.MapFile{
		Data: []byte("not a migration"),
	},
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
	return err == nil
}

func TestApplyCreatesMigrationsTable(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, "sqlite", testFS, "historian")

	if tableExists(t, db, "schema_migrations") {
		t.Fatal("schema_migrations should not exist yet")
	}

	if _, err := m.Apply(context.Background()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !tableExists(t, db, "schema_migrations") {
		t.Fatal("schema_migrations should exist after Apply")
	}
}

func TestApplyRunsMigrationsInOrder(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, "sqlite", testFS, "historian")

	applied, err := m.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", applied)
	}

	for _, table := range []string{"tag_defs", "tag_samples"} {
		if !tableExists(t, db, table) {
			t.Fatalf("table %s should exist after migration", table)
		}
	}

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("failed to scan version: %v", err)
		}
		versions = append(versions, v)
	}
	if len(versions) != 2 || versions[0] != "001_tags.sql" || versions[1] != "002_samples.sql" {
		t.Fatalf("unexpected recorded versions: %v", versions)
	}
}

func TestApplySkipsAlreadyApplied(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, "sqlite", testFS, "historian")

	if _, err := m.Apply(context.Background()); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}

	applied, err := m.Apply(context.Background())
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected 0 migrations on second run, got %d", applied)
	}
}

func TestPendingListsUnapplied(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, "sqlite", testFS, "historian")

	pending, err := m.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending migrations, got %v", pending)
	}

	if _, err := m.Apply(context.Background()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pending, err = m.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending migrations, got %v", pending)
	}
}

func TestNoTransactionMarkerDetection(t *testing.T) {
	withMarker := migration{
		name:    "004_hourly_aggregate.sql",
		content: "-- histops:no-transaction\nCREATE MATERIALIZED VIEW x AS SELECT 1;",
	}
	if !withMarker.requiresOwnConnection() {
		t.Fatal("marker in first lines should be detected")
	}

	without := migration{
		name:    "001_tags.sql",
		content: "CREATE TABLE t (id INT);",
	}
	if without.requiresOwnConnection() {
		t.Fatal("migration without marker should run in a transaction")
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sqlth_1_data", "sqlth_1_data"},
		{"bad-name", "bad_name"},
		{"drop table;--", "drop_table___"},
	}

	for _, tt := range tests {
		if got := SanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
