// Package transfer copies Ignition tag historian data from legacy historian
// tables into TimescaleDB hypertables. It works in daily t_stamp windows so
// a run can be interrupted and resumed, and inserts with ON CONFLICT DO
// NOTHING so re-running a window never duplicates rows.
package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignition-tsdb/histops/internal/logger"
	"github.com/ignition-tsdb/histops/internal/migrate"
)

// dayWindowMS is the default batch window: 24 hours of millisecond epoch.
const dayWindowMS = int64(86400000)

// ErrEmptySource is returned when the source table has no rows to copy.
var ErrEmptySource = errors.New("transfer: source table is empty")

// Options configures a historian data transfer.
type Options struct {
	SourceTable string
	TargetTable string

	// NoBackup skips the pre-transfer snapshot of the target table.
	NoBackup bool

	// WindowMS is the batch window in milliseconds. Zero means one day.
	WindowMS int64
}

func (o Options) windowMS() int64 {
	if o.WindowMS <= 0 {
		return dayWindowMS
	}
	return o.WindowMS
}

// SourceStats describes the source table before a transfer.
type SourceStats struct {
	Rows       int64  `json:"rows"`
	Tags       int64  `json:"tags"`
	EarliestMS int64  `json:"earliest_ms"`
	LatestMS   int64  `json:"latest_ms"`
	SizePretty string `json:"size"`
}

// RunStats summarizes a completed transfer.
type RunStats struct {
	Batches     int    `json:"batches"`
	CopiedRows  int64  `json:"copied_rows"`
	BackupTable string `json:"backup_table,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// ValidationReport compares source and target after a transfer.
type ValidationReport struct {
	SourceRows int64 `json:"source_rows"`
	TargetRows int64 `json:"target_rows"`
	SourceTags int64 `json:"source_tags"`
	TargetTags int64 `json:"target_tags"`

	SourceEarliestMS int64 `json:"source_earliest_ms"`
	SourceLatestMS   int64 `json:"source_latest_ms"`
	TargetEarliestMS int64 `json:"target_earliest_ms"`
	TargetLatestMS   int64 `json:"target_latest_ms"`
}

// RowsMatch reports whether the target holds at least every source row.
// The target may legitimately hold more when it already had data.
func (v *ValidationReport) RowsMatch() bool { return v.TargetRows >= v.SourceRows }

// RangeMatch reports whether the source t_stamp range is covered by the target.
func (v *ValidationReport) RangeMatch() bool {
	return v.TargetEarliestMS <= v.SourceEarliestMS && v.TargetLatestMS >= v.SourceLatestMS
}

// TagsMatch reports whether every source tag appears in the target.
func (v *ValidationReport) TagsMatch() bool { return v.TargetTags >= v.SourceTags }

// OK reports whether all validation checks passed.
func (v *ValidationReport) OK() bool {
	return v.RowsMatch() && v.RangeMatch() && v.TagsMatch()
}

// Transfer copies rows between two historian tables, possibly across
// databases.
type Transfer struct {
	source *sql.DB
	target *sql.DB
	opts   Options
}

// New creates a Transfer. source and target may be the same handle for
// in-place migrations.
func New(source, target *sql.DB, opts Options) *Transfer {
	if opts.SourceTable == "" {
		opts.SourceTable = "sqlth_1_data"
	}
	if opts.TargetTable == "" {
		opts.TargetTable = "sqlth_1_data"
	}
	return &Transfer{source: source, target: target, opts: opts}
}

// AnalyzeSource gathers row, tag and time-range statistics for the source
// table before anything is copied.
func (t *Transfer) AnalyzeSource(ctx context.Context) (*SourceStats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(DISTINCT tagid),
		       COALESCE(MIN(t_stamp), 0),
		       COALESCE(MAX(t_stamp), 0),
		       pg_size_pretty(pg_total_relation_size('%s'))
		FROM %s
	`, ident(t.opts.SourceTable), ident(t.opts.SourceTable))

	stats := &SourceStats{}
	err := t.source.QueryRowContext(ctx, query).Scan(
		&stats.Rows, &stats.Tags, &stats.EarliestMS, &stats.LatestMS, &stats.SizePretty)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", t.opts.SourceTable, err)
	}

	logger.Get().Info().
		Int64("rows", stats.Rows).
		Int64("tags", stats.Tags).
		Int64("earliest_ms", stats.EarliestMS).
		Int64("latest_ms", stats.LatestMS).
		Str("size", stats.SizePretty).
		Msg("Analyzed source table")
	return stats, nil
}

// CreateBackupTable snapshots the target table into a timestamped copy and
// returns the new table name.
func (t *Transfer) CreateBackupTable(ctx context.Context, now time.Time) (string, error) {
	name := backupTableName(t.opts.TargetTable, now)

	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", ident(name), ident(t.opts.TargetTable))
	if _, err := t.target.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to create backup table %s: %w", name, err)
	}

	logger.Get().Info().Str("table", name).Msg("Created backup table")
	return name, nil
}

// Run copies all source rows to the target in time windows. The returned
// stats include the backup table name when a backup was taken.
func (t *Transfer) Run(ctx context.Context) (*RunStats, error) {
	started := time.Now()
	stats := &RunStats{}

	src, err := t.AnalyzeSource(ctx)
	if err != nil {
		return nil, err
	}
	if src.Rows == 0 {
		return nil, ErrEmptySource
	}

	if !t.opts.NoBackup {
		name, err := t.CreateBackupTable(ctx, started)
		if err != nil {
			return nil, err
		}
		stats.BackupTable = name
	}

	windows := batchWindows(src.EarliestMS, src.LatestMS, t.opts.windowMS())
	for i, w := range windows {
		copied, err := t.copyWindow(ctx, w)
		if err != nil {
			return stats, fmt.Errorf("window %d [%d, %d) failed: %w", i+1, w.start, w.end, err)
		}
		stats.Batches++
		stats.CopiedRows += copied

		if copied > 0 {
			logger.Get().Info().
				Int("batch", i+1).
				Int("batches", len(windows)).
				Int64("rows", copied).
				Time("window_start", time.UnixMilli(w.start).UTC()).
				Msg("Copied batch")
		}
	}

	stats.DurationMS = time.Since(started).Milliseconds()
	logger.Get().Info().
		Int64("rows", stats.CopiedRows).
		Int("batches", stats.Batches).
		Int64("duration_ms", stats.DurationMS).
		Msg("Transfer complete")
	return stats, nil
}

// window is a half-open [start, end) t_stamp range in milliseconds.
type window struct {
	start int64
	end   int64
}

// batchWindows splits [minTS, maxTS] into half-open windows of windowMS.
// The final window is extended by one so maxTS itself is included.
func batchWindows(minTS, maxTS, windowMS int64) []window {
	if maxTS < minTS || windowMS <= 0 {
		return nil
	}

	var windows []window
	for start := minTS; start <= maxTS; start += windowMS {
		end := start + windowMS
		if end > maxTS {
			end = maxTS + 1
		}
		windows = append(windows, window{start: start, end: end})
	}
	return windows
}

// historianRow holds one sqlth_1_data sample. All value columns are
// nullable; exactly one is set per row depending on the tag's data type.
type historianRow struct {
	TagID         int64
	IntValue      sql.NullInt64
	FloatValue    sql.NullFloat64
	StringValue   sql.NullString
	DateValue     sql.NullTime
	DataIntegrity sql.NullInt64
	TStamp        int64
}

func (t *Transfer) copyWindow(ctx context.Context, w window) (int64, error) {
	query := fmt.Sprintf(`
		SELECT tagid, intvalue, floatvalue, stringvalue, datevalue, dataintegrity, t_stamp
		FROM %s
		WHERE t_stamp >= $1 AND t_stamp < $2
		ORDER BY t_stamp
	`, ident(t.opts.SourceTable))

	rows, err := t.source.QueryContext(ctx, query, w.start, w.end)
	if err != nil {
		return 0, fmt.Errorf("failed to read source window: %w", err)
	}
	defer rows.Close()

	var batch []historianRow
	for rows.Next() {
		var r historianRow
		if err := rows.Scan(&r.TagID, &r.IntValue, &r.FloatValue, &r.StringValue,
			&r.DateValue, &r.DataIntegrity, &r.TStamp); err != nil {
			return 0, fmt.Errorf("failed to scan source row: %w", err)
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate source window: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	return int64(len(batch)), t.insertBatch(ctx, batch)
}

func (t *Transfer) insertBatch(ctx context.Context, batch []historianRow) error {
	tx, err := t.target.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (tagid, intvalue, floatvalue, stringvalue, datevalue, dataintegrity, t_stamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`, ident(t.opts.TargetTable)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.TagID, r.IntValue, r.FloatValue,
			r.StringValue, r.DateValue, r.DataIntegrity, r.TStamp); err != nil {
			return fmt.Errorf("failed to insert row tagid=%d t_stamp=%d: %w", r.TagID, r.TStamp, err)
		}
	}

	return tx.Commit()
}

// Validate compares row counts, t_stamp ranges and distinct tag counts
// between source and target.
func (t *Transfer) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{}

	if err := t.tableFacts(ctx, t.source, t.opts.SourceTable,
		&report.SourceRows, &report.SourceTags, &report.SourceEarliestMS, &report.SourceLatestMS); err != nil {
		return nil, err
	}
	if err := t.tableFacts(ctx, t.target, t.opts.TargetTable,
		&report.TargetRows, &report.TargetTags, &report.TargetEarliestMS, &report.TargetLatestMS); err != nil {
		return nil, err
	}

	log := logger.Get().Info().
		Int64("source_rows", report.SourceRows).
		Int64("target_rows", report.TargetRows).
		Int64("source_tags", report.SourceTags).
		Int64("target_tags", report.TargetTags)
	if report.OK() {
		log.Msg("Validation passed")
	} else {
		log.Msg("Validation found mismatches")
	}
	return report, nil
}

func (t *Transfer) tableFacts(ctx context.Context, db *sql.DB, table string,
	rows, tags, earliest, latest *int64) error {

	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(DISTINCT tagid),
		       COALESCE(MIN(t_stamp), 0),
		       COALESCE(MAX(t_stamp), 0)
		FROM %s
	`, ident(table))

	if err := db.QueryRowContext(ctx, query).Scan(rows, tags, earliest, latest); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	return nil
}

func backupTableName(table string, now time.Time) string {
	return fmt.Sprintf("%s_backup_%s", migrate.SanitizeIdentifier(table), now.Format("20060102_150405"))
}

func ident(name string) string {
	return migrate.SanitizeIdentifier(name)
}
