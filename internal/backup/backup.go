// Package backup orchestrates pg_dump/pg_dumpall runs for the historian
// databases, writes a JSON manifest per run, applies the retention window
// to the backup directory, and records runs in a local catalog.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"

	"github.com/ignition-tsdb/histops/internal/logger"
)

// json is the jsoniter instance configured to be compatible with standard library
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// FormatCustom produces pg_dump custom-format .dump files.
	FormatCustom = "custom"
	// FormatPlain produces gzipped plain SQL dumps.
	FormatPlain = "plain"

	timestampLayout = "20060102_150405"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Options configures a backup run.
type Options struct {
	// ConnURL is the postgres:// URL used to reach the server. The database
	// path component is swapped per entry in Databases.
	ConnURL       string
	Databases     []string
	Dir           string
	Format        string
	RetentionDays int
	Globals       bool

	// Metadata is an open connection to the first entry in Databases. When
	// set, the run exports the historian tag list from it as a CSV entry.
	Metadata *sql.DB

	// Binary overrides, mainly for tests.
	PgDump    string
	PgDumpall string
}

// Manifest describes one completed backup run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Entries    []Entry   `json:"entries"`
	Removed    []string  `json:"removed,omitempty"`
}

// Entry is a single produced artifact within a run.
type Entry struct {
	Database   string `json:"database"`
	File       string `json:"file"`
	Kind       string `json:"kind"` // "dump", "globals" or "metadata"
	SizeBytes  int64  `json:"size_bytes"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// TotalBytes sums the sizes of all artifacts in the run.
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.SizeBytes
	}
	return total
}

// Runner executes backup runs.
type Runner struct {
	opts    Options
	catalog *Catalog
}

// New creates a Runner. The catalog may be nil to skip run recording.
func New(opts Options, catalog *Catalog) *Runner {
	if opts.PgDump == "" {
		opts.PgDump = "pg_dump"
	}
	if opts.PgDumpall == "" {
		opts.PgDumpall = "pg_dumpall"
	}
	if opts.Format == "" {
		opts.Format = FormatCustom
	}
	return &Runner{opts: opts, catalog: catalog}
}

// Run dumps every configured database, sweeps expired files and writes the
// manifest. A failing dump marks the run failed but does not stop the
// remaining databases from being dumped.
func (r *Runner) Run(ctx context.Context) (*Manifest, error) {
	if len(r.opts.Databases) == 0 {
		return nil, fmt.Errorf("no databases configured for backup")
	}
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	m := &Manifest{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    StatusOK,
	}
	stamp := m.StartedAt.Format(timestampLayout)

	for _, dbName := range r.opts.Databases {
		entry := r.dumpDatabase(ctx, dbName, stamp)
		if entry.Status != StatusOK {
			m.Status = StatusFailed
		}
		m.Entries = append(m.Entries, entry)
	}

	if r.opts.Globals {
		entry := r.dumpGlobals(ctx, stamp)
		if entry.Status != StatusOK {
			m.Status = StatusFailed
		}
		m.Entries = append(m.Entries, entry)
	}

	if r.opts.Metadata != nil {
		entry, _ := r.ExportTagMetadata(ctx, r.opts.Metadata, r.opts.Databases[0])
		if entry.Status != StatusOK {
			m.Status = StatusFailed
		}
		m.Entries = append(m.Entries, entry)
	}

	if r.opts.RetentionDays > 0 {
		removed, err := SweepExpired(r.opts.Dir, time.Duration(r.opts.RetentionDays)*24*time.Hour, time.Now())
		if err != nil {
			return nil, fmt.Errorf("retention sweep failed: %w", err)
		}
		m.Removed = removed
	}

	m.FinishedAt = time.Now().UTC()

	if err := r.writeManifest(m, stamp); err != nil {
		return nil, err
	}

	if r.catalog != nil {
		if err := r.catalog.RecordRun(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to record run in catalog: %w", err)
		}
	}

	return m, nil
}

// dumpDatabase produces one dump file for a database and verifies it is
// nonzero in size.
func (r *Runner) dumpDatabase(ctx context.Context, dbName, stamp string) Entry {
	entry := Entry{Database: dbName, Kind: "dump", Status: StatusOK}
	start := time.Now()

	connURL, err := URLForDatabase(r.opts.ConnURL, dbName)
	if err != nil {
		return entry.failed(err, start)
	}

	var dest string
	switch r.opts.Format {
	case FormatPlain:
		dest = filepath.Join(r.opts.Dir, fmt.Sprintf("%s_%s.sql.gz", dbName, stamp))
		err = r.runGzipped(ctx, dest, r.opts.PgDump, "--no-password", "--dbname", connURL)
	default:
		dest = filepath.Join(r.opts.Dir, fmt.Sprintf("%s_%s.dump", dbName, stamp))
		err = r.runToFile(ctx, r.opts.PgDump, "--format=custom", "--no-password", "--file", dest, "--dbname", connURL)
	}
	if err != nil {
		return entry.failed(err, start)
	}

	entry.File = filepath.Base(dest)
	entry.SizeBytes, err = nonzeroSize(dest)
	if err != nil {
		return entry.failed(err, start)
	}

	entry.DurationMS = time.Since(start).Milliseconds()
	logger.Get().Info().
		Str("database", dbName).
		Str("file", entry.File).
		Int64("size_bytes", entry.SizeBytes).
		Msg("Database dump complete")
	return entry
}

// dumpGlobals captures cluster-wide roles and tablespaces.
func (r *Runner) dumpGlobals(ctx context.Context, stamp string) Entry {
	entry := Entry{Database: "*", Kind: "globals", Status: StatusOK}
	start := time.Now()

	dest := filepath.Join(r.opts.Dir, fmt.Sprintf("globals_%s.sql.gz", stamp))
	if err := r.runGzipped(ctx, dest, r.opts.PgDumpall, "--globals-only", "--no-password", "--dbname", r.opts.ConnURL); err != nil {
		return entry.failed(err, start)
	}

	entry.File = filepath.Base(dest)
	size, err := nonzeroSize(dest)
	if err != nil {
		return entry.failed(err, start)
	}
	entry.SizeBytes = size
	entry.DurationMS = time.Since(start).Milliseconds()

	logger.Get().Info().Str("file", entry.File).Msg("Globals dump complete")
	return entry
}

// ExportTagMetadata writes the historian tag definitions to a CSV file and
// returns the manifest entry for it. It needs a live connection because tag
// metadata lives in sqlth_te, not in the dump pipeline.
func (r *Runner) ExportTagMetadata(ctx context.Context, db *sql.DB, dbName string) (Entry, error) {
	entry := Entry{Database: dbName, Kind: "metadata", Status: StatusOK}
	start := time.Now()

	dest := filepath.Join(r.opts.Dir, fmt.Sprintf("%s_tags_%s.csv", dbName, time.Now().UTC().Format(timestampLayout)))
	f, err := os.Create(dest)
	if err != nil {
		return entry.failed(fmt.Errorf("failed to create metadata file: %w", err), start), err
	}
	defer f.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(tagpath, ''), COALESCE(scanclass, 0), COALESCE(datatype, 0),
		       COALESCE(created, 0), COALESCE(retired, 0)
		FROM sqlth_te
		ORDER BY id
	`)
	if err != nil {
		err = fmt.Errorf("failed to query tag metadata: %w", err)
		return entry.failed(err, start), err
	}
	defer rows.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "tagpath", "scanclass", "datatype", "created", "retired"}); err != nil {
		return entry.failed(err, start), err
	}

	count := 0
	for rows.Next() {
		var id, scanclass, datatype int64
		var created, retired int64
		var tagpath string
		if err := rows.Scan(&id, &tagpath, &scanclass, &datatype, &created, &retired); err != nil {
			err = fmt.Errorf("failed to scan tag row: %w", err)
			return entry.failed(err, start), err
		}
		record := []string{
			strconv.FormatInt(id, 10),
			tagpath,
			strconv.FormatInt(scanclass, 10),
			strconv.FormatInt(datatype, 10),
			strconv.FormatInt(created, 10),
			strconv.FormatInt(retired, 10),
		}
		if err := w.Write(record); err != nil {
			return entry.failed(err, start), err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return entry.failed(err, start), err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return entry.failed(err, start), err
	}
	if err := f.Close(); err != nil {
		return entry.failed(err, start), err
	}

	entry.File = filepath.Base(dest)
	if entry.SizeBytes, err = nonzeroSize(dest); err != nil {
		return entry.failed(err, start), err
	}
	entry.DurationMS = time.Since(start).Milliseconds()

	logger.Get().Info().Int("tags", count).Str("file", entry.File).Msg("Tag metadata export complete")
	return entry, nil
}

func (e Entry) failed(err error, start time.Time) Entry {
	e.Status = StatusFailed
	e.Error = err.Error()
	e.DurationMS = time.Since(start).Milliseconds()
	logger.Get().Error().Err(err).Str("database", e.Database).Str("kind", e.Kind).Msg("Backup step failed")
	return e
}

// runToFile runs a dump command that writes its own output file.
func (r *Runner) runToFile(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %s: %w", name, bytes.TrimSpace(output), err)
	}
	return nil
}

// runGzipped runs a dump command and gzips its stdout into dest.
func (r *Runner) runGzipped(ctx context.Context, dest, name string, args ...string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = gz
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		gz.Close()
		return fmt.Errorf("%s failed: %s: %w", name, bytes.TrimSpace(stderr.Bytes()), err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return f.Close()
}

func (r *Runner) writeManifest(m *Manifest, stamp string) error {
	dest := filepath.Join(r.opts.Dir, fmt.Sprintf("backup_%s.manifest.json", stamp))
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return f.Close()
}

// WriteManifestJSON encodes a manifest to a writer, for --format json output.
func WriteManifestJSON(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// nonzeroSize stats a produced file and rejects empty dumps.
func nonzeroSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return 0, fmt.Errorf("dump file %s is empty", filepath.Base(path))
	}
	return fi.Size(), nil
}

// URLForDatabase swaps the database path component of a postgres URL.
func URLForDatabase(base, dbName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid connection URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
