// Package cleanup performs the routine maintenance the historian database
// needs: VACUUM/ANALYZE on the historian tables, chunk compression and
// retention on the sample hypertables, continuous aggregate refreshes, and
// pruning of old log files.
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignition-tsdb/histops/internal/logger"
	"github.com/ignition-tsdb/histops/internal/migrate"
)

// Options configures a cleanup run.
type Options struct {
	// AnalyzeOnly skips VACUUM and runs plain ANALYZE instead.
	AnalyzeOnly bool
	Verbose     bool

	Tables     []string
	Aggregates []string

	// CompressAfter/DropAfter are chunk age cutoffs; zero disables the step.
	CompressAfter time.Duration
	DropAfter     time.Duration

	LogDir       string
	LogRetention time.Duration
}

// Summary reports what a cleanup run did.
type Summary struct {
	Vacuumed            []string `json:"vacuumed,omitempty"`
	Analyzed            []string `json:"analyzed,omitempty"`
	SkippedTables       []string `json:"skipped_tables,omitempty"`
	CompressedChunks    []string `json:"compressed_chunks,omitempty"`
	DroppedChunks       []string `json:"dropped_chunks,omitempty"`
	RefreshedAggregates []string `json:"refreshed_aggregates,omitempty"`
	RemovedLogs         []string `json:"removed_logs,omitempty"`
}

// Runner executes cleanup runs against one database.
type Runner struct {
	db   *sql.DB
	opts Options
}

// New creates a cleanup Runner.
func New(database *sql.DB, opts Options) *Runner {
	return &Runner{db: database, opts: opts}
}

// Run performs all configured maintenance steps in order.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	if err := r.maintainTables(ctx, summary); err != nil {
		return summary, err
	}

	if r.opts.CompressAfter > 0 {
		if err := r.compressChunks(ctx, summary); err != nil {
			return summary, err
		}
	}

	if r.opts.DropAfter > 0 {
		if err := r.dropChunks(ctx, summary); err != nil {
			return summary, err
		}
	}

	if err := r.refreshAggregates(ctx, summary); err != nil {
		return summary, err
	}

	if r.opts.LogDir != "" && r.opts.LogRetention > 0 {
		removed, err := SweepLogs(r.opts.LogDir, r.opts.LogRetention, time.Now())
		if err != nil {
			return summary, err
		}
		summary.RemovedLogs = removed
	}

	return summary, nil
}

// maintenanceStatement builds the per-table maintenance SQL. With
// analyzeOnly set it must never emit VACUUM.
func maintenanceStatement(table string, analyzeOnly bool) string {
	ident := quoteIdent(table)
	if analyzeOnly {
		return "ANALYZE " + ident
	}
	return "VACUUM ANALYZE " + ident
}

func (r *Runner) maintainTables(ctx context.Context, summary *Summary) error {
	for _, table := range r.opts.Tables {
		exists, err := r.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			logger.Get().Warn().Str("table", table).Msg("Table not found, skipping maintenance")
			summary.SkippedTables = append(summary.SkippedTables, table)
			continue
		}

		stmt := maintenanceStatement(table, r.opts.AnalyzeOnly)
		r.logStatement(stmt)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("maintenance on %s failed: %w", table, err)
		}

		if r.opts.AnalyzeOnly {
			summary.Analyzed = append(summary.Analyzed, table)
		} else {
			summary.Vacuumed = append(summary.Vacuumed, table)
		}
	}
	return nil
}

func (r *Runner) compressChunks(ctx context.Context, summary *Summary) error {
	hypertables, err := r.hypertablesAmong(ctx, r.opts.Tables)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-r.opts.CompressAfter).UnixMilli()
	for _, table := range hypertables {
		r.logStatement(fmt.Sprintf("compress_chunk on %s chunks older than %s", table, r.opts.CompressAfter))

		rows, err := r.db.QueryContext(ctx, `
			SELECT compress_chunk(c, if_not_compressed => TRUE)::text
			FROM show_chunks($1::regclass, older_than => $2::bigint) c
		`, table, cutoff)
		if err != nil {
			return fmt.Errorf("failed to compress chunks of %s: %w", table, err)
		}

		compressed, err := scanStrings(rows)
		if err != nil {
			return fmt.Errorf("failed to scan compressed chunks of %s: %w", table, err)
		}
		summary.CompressedChunks = append(summary.CompressedChunks, compressed...)
	}
	return nil
}

// dropChunks permanently deletes data past the retention window.
func (r *Runner) dropChunks(ctx context.Context, summary *Summary) error {
	hypertables, err := r.hypertablesAmong(ctx, r.opts.Tables)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-r.opts.DropAfter).UnixMilli()
	for _, table := range hypertables {
		r.logStatement(fmt.Sprintf("drop_chunks on %s older than %s", table, r.opts.DropAfter))

		rows, err := r.db.QueryContext(ctx,
			`SELECT drop_chunks($1::regclass, older_than => $2::bigint)`, table, cutoff)
		if err != nil {
			return fmt.Errorf("failed to drop chunks of %s: %w", table, err)
		}

		dropped, err := scanStrings(rows)
		if err != nil {
			return fmt.Errorf("failed to scan dropped chunks of %s: %w", table, err)
		}
		summary.DroppedChunks = append(summary.DroppedChunks, dropped...)
	}
	return nil
}

func (r *Runner) refreshAggregates(ctx context.Context, summary *Summary) error {
	for _, agg := range r.opts.Aggregates {
		exists, err := r.tableExists(ctx, agg)
		if err != nil {
			return err
		}
		if !exists {
			logger.Get().Warn().Str("aggregate", agg).Msg("Continuous aggregate not found, skipping refresh")
			continue
		}

		stmt := fmt.Sprintf("CALL refresh_continuous_aggregate('%s', NULL::bigint, NULL::bigint)", quoteIdent(agg))
		r.logStatement(stmt)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to refresh aggregate %s: %w", agg, err)
		}
		summary.RefreshedAggregates = append(summary.RefreshedAggregates, agg)
	}
	return nil
}

// hypertablesAmong filters the table list down to actual hypertables, so
// chunk operations never hit plain tables.
func (r *Runner) hypertablesAmong(ctx context.Context, tables []string) ([]string, error) {
	var result []string
	for _, table := range tables {
		var isHypertable bool
		err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM timescaledb_information.hypertables
				WHERE hypertable_name = $1
			)
		`, table).Scan(&isHypertable)
		if err != nil {
			return nil, fmt.Errorf("failed to check hypertable %s: %w", table, err)
		}
		if isHypertable {
			result = append(result, table)
		}
	}
	return result, nil
}

func (r *Runner) tableExists(ctx context.Context, table string) (bool, error) {
	var regclass sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("failed to check relation %s: %w", table, err)
	}
	return regclass.Valid, nil
}

func (r *Runner) logStatement(stmt string) {
	if r.opts.Verbose {
		logger.Get().Info().Str("statement", stmt).Msg("Running maintenance step")
	} else {
		logger.Get().Debug().Str("statement", stmt).Msg("Running maintenance step")
	}
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// quoteIdent sanitizes and quotes a relation name for interpolation into
// maintenance statements that cannot take bind parameters.
func quoteIdent(name string) string {
	return `"` + migrate.SanitizeIdentifier(name) + `"`
}
