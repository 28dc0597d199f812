package backup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Catalog keeps a local history of backup runs in a SQLite database so
// operators can audit past runs without digging through manifests.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS backup_runs (
	run_id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	file_count INTEGER NOT NULL,
	total_bytes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_files (
	run_id TEXT NOT NULL REFERENCES backup_runs(run_id),
	db_name TEXT NOT NULL,
	file_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS backup_files_run_idx ON backup_files(run_id);
`

// OpenCatalog opens (and if needed initializes) the catalog database.
func OpenCatalog(path string) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordRun stores a completed run and its artifacts.
func (c *Catalog) RecordRun(ctx context.Context, m *Manifest) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backup_runs (run_id, started_at, finished_at, status, file_count, total_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.RunID, m.StartedAt.Unix(), m.FinishedAt.Unix(), m.Status, len(m.Entries), m.TotalBytes())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, e := range m.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO backup_files (run_id, db_name, file_name, kind, size_bytes, duration_ms, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.RunID, e.Database, e.File, e.Kind, e.SizeBytes, e.DurationMS, e.Status, e.Error)
		if err != nil {
			return fmt.Errorf("failed to insert file record: %w", err)
		}
	}

	return tx.Commit()
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	FileCount  int
	TotalBytes int64
}

// ListRuns returns the most recent runs, newest first.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, status, file_count, total_bytes
		FROM backup_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished int64
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Status, &r.FileCount, &r.TotalBytes); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
