// Package migrate applies the embedded historian schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// noTxMarker flags migrations that must run outside a transaction, such as
// continuous aggregate creation, which Postgres rejects inside one.
const noTxMarker = "-- histops:no-transaction"

// Migrator applies SQL migration files in filename order and tracks them
// in a schema_migrations table.
type Migrator struct {
	db      *sql.DB
	dialect string // "postgres" or "sqlite"
	fs      fs.FS
	dir     string
}

// New creates a Migrator reading *.sql files from dir inside fsys.
func New(db *sql.DB, dialect string, fsys fs.FS, dir string) *Migrator {
	return &Migrator{
		db:      db,
		dialect: dialect,
		fs:      fsys,
		dir:     dir,
	}
}

// Apply runs all pending migrations and returns how many were applied.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	if len(migrations) == 0 {
		return 0, nil
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	count := 0
	for _, mig := range migrations {
		if applied[mig.name] {
			continue
		}
		if err := m.applyMigration(ctx, mig); err != nil {
			return count, fmt.Errorf("failed to apply migration %s: %w", mig.name, err)
		}
		count++
	}

	return count, nil
}

// Pending returns the names of migrations that have not been applied yet.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var pending []string
	for _, mig := range migrations {
		if !applied[mig.name] {
			pending = append(pending, mig.name)
		}
	}
	return pending, nil
}

// migration is a single migration file.
type migration struct {
	name    string
	content string
}

// requiresOwnConnection reports whether the migration opted out of the
// wrapping transaction via the no-transaction marker.
func (mig migration) requiresOwnConnection() bool {
	for _, line := range strings.SplitN(mig.content, "\n", 5) {
		if strings.TrimSpace(line) == noTxMarker {
			return true
		}
	}
	return false
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	var createSQL string
	if m.dialect == "postgres" {
		createSQL = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at BIGINT NOT NULL
			);
		`
	} else {
		createSQL = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at INTEGER NOT NULL
			);
		`
	}

	_, err := m.db.ExecContext(ctx, createSQL)
	return err
}

func (m *Migrator) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(m.fs, m.dir)
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(m.fs, m.dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			name:    entry.Name(),
			content: string(content),
		})
	}

	// Filenames are prefixed 001_, 002_, ... so name order is apply order.
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].name < migrations[j].name
	})

	return migrations, nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) applyMigration(ctx context.Context, mig migration) error {
	if mig.requiresOwnConnection() {
		if _, err := m.db.ExecContext(ctx, mig.content); err != nil {
			return err
		}
		return m.recordMigration(ctx, m.db, mig.name)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.content); err != nil {
		return err
	}
	if err := m.recordMigration(ctx, tx, mig.name); err != nil {
		return err
	}

	return tx.Commit()
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *Migrator) recordMigration(ctx context.Context, ex execer, name string) error {
	var insertSQL string
	if m.dialect == "sqlite" {
		insertSQL = "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"
	} else {
		insertSQL = "INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)"
	}

	_, err := ex.ExecContext(ctx, insertSQL, name, time.Now().Unix())
	return err
}

// SanitizeIdentifier keeps only characters safe for a SQL identifier.
func SanitizeIdentifier(name string) string {
	var result strings.Builder
	for _, ch := range name {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' {
			result.WriteRune(ch)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
