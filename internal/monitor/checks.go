package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignition-tsdb/histops/internal/db"
)

func (c *Checker) checkServer(_ context.Context, info *db.ServerInfo) (Result, error) {
	return Result{
		Name:   "server",
		Status: StatusOK,
		Value:  "PostgreSQL " + info.Version,
		Detail: "up " + formatUptime(info.UptimeSeconds),
	}, nil
}

func (c *Checker) checkConnections(ctx context.Context) (Result, error) {
	result := Result{Name: "connections"}

	var active, max int
	err := c.db.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM pg_stat_activity),
		       current_setting('max_connections')::int
	`).Scan(&active, &max)
	if err != nil {
		return result, err
	}

	pct := float64(active) / float64(max) * 100
	result.Status = connectionStatus(pct)
	result.Value = fmt.Sprintf("%d/%d (%.1f%%)", active, max, pct)
	if result.Status != StatusOK {
		result.Detail = "connection usage above threshold"
	}
	return result, nil
}

func (c *Checker) checkCacheHit(ctx context.Context) (Result, error) {
	result := Result{Name: "cache_hit_ratio"}

	var ratio sql.NullFloat64
	err := c.db.QueryRowContext(ctx, `
		SELECT round((100.0 * sum(blks_hit)) / NULLIF(sum(blks_hit) + sum(blks_read), 0), 2)
		FROM pg_stat_database
	`).Scan(&ratio)
	if err != nil {
		return result, err
	}

	if !ratio.Valid {
		result.Status = StatusOK
		result.Value = "n/a"
		result.Detail = "no block reads recorded yet"
		return result, nil
	}

	result.Status = cacheHitStatus(ratio.Float64)
	result.Value = fmt.Sprintf("%.2f%%", ratio.Float64)
	if result.Status != StatusOK {
		result.Detail = "consider increasing shared_buffers"
	}
	return result, nil
}

func (c *Checker) checkDatabaseSize(ctx context.Context) (Result, error) {
	result := Result{Name: "database_size", Status: StatusOK}

	var bytes int64
	var pretty string
	err := c.db.QueryRowContext(ctx, `
		SELECT pg_database_size(current_database()),
		       pg_size_pretty(pg_database_size(current_database()))
	`).Scan(&bytes, &pretty)
	if err != nil {
		return result, err
	}

	result.Value = pretty
	return result, nil
}

func (c *Checker) checkHypertables(ctx context.Context) (Result, error) {
	result := Result{Name: "hypertables"}

	rows, err := c.db.QueryContext(ctx, `
		SELECT h.hypertable_name,
		       (SELECT count(*) FROM timescaledb_information.chunks c
		         WHERE c.hypertable_schema = h.hypertable_schema
		           AND c.hypertable_name = h.hypertable_name),
		       COALESCE(pg_size_pretty(hypertable_size(format('%I.%I', h.hypertable_schema, h.hypertable_name)::regclass)), '0 bytes')
		FROM timescaledb_information.hypertables h
		ORDER BY h.hypertable_name
	`)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	var details []string
	count := 0
	for rows.Next() {
		var name, size string
		var chunks int
		if err := rows.Scan(&name, &chunks, &size); err != nil {
			return result, err
		}
		details = append(details, fmt.Sprintf("%s: %d chunks, %s", name, chunks, size))
		count++
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	if count == 0 {
		result.Status = StatusWarn
		result.Value = "none"
		result.Detail = "no hypertables found; run histops init"
		return result, nil
	}

	result.Status = StatusOK
	result.Value = fmt.Sprintf("%d", count)
	result.Detail = strings.Join(details, "; ")
	return result, nil
}

func (c *Checker) checkCompression(ctx context.Context) (Result, error) {
	result := Result{Name: "compression", Status: StatusOK}

	var compressed, total int
	err := c.db.QueryRowContext(ctx, `
		SELECT count(*) FILTER (WHERE is_compressed), count(*)
		FROM timescaledb_information.chunks
	`).Scan(&compressed, &total)
	if err != nil {
		return result, err
	}

	if total == 0 {
		result.Value = "no chunks"
		return result, nil
	}
	result.Value = fmt.Sprintf("%d/%d chunks compressed", compressed, total)

	if compressed > 0 {
		var before, after int64
		err := c.db.QueryRowContext(ctx, `
			SELECT COALESCE(sum(s.before_compression_total_bytes), 0),
			       COALESCE(sum(s.after_compression_total_bytes), 0)
			FROM timescaledb_information.hypertables h,
			     LATERAL hypertable_compression_stats(format('%I.%I', h.hypertable_schema, h.hypertable_name)::regclass) s
		`).Scan(&before, &after)
		if err != nil {
			return result, err
		}
		if after > 0 {
			result.Detail = fmt.Sprintf("%s before, %s after (%.1fx)",
				prettyBytes(before), prettyBytes(after), float64(before)/float64(after))
		}
	}
	return result, nil
}

func prettyBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (c *Checker) checkBackgroundJobs(ctx context.Context) (Result, error) {
	result := Result{Name: "background_jobs"}

	var totalFailures, totalRuns, lastFailed int64
	err := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(total_failures), 0),
		       COALESCE(sum(total_runs), 0),
		       count(*) FILTER (WHERE last_run_status = 'Failed')
		FROM timescaledb_information.job_stats
	`).Scan(&totalFailures, &totalRuns, &lastFailed)
	if err != nil {
		return result, err
	}

	result.Value = fmt.Sprintf("%d runs, %d failures", totalRuns, totalFailures)
	switch {
	case lastFailed > 0:
		result.Status = StatusAlert
		result.Detail = fmt.Sprintf("%d job(s) failed on their last run", lastFailed)
	case totalFailures > 0:
		result.Status = StatusWarn
		result.Detail = "jobs have failed before; check timescaledb_information.job_errors"
	default:
		result.Status = StatusOK
	}
	return result, nil
}

func (c *Checker) checkLongQueries(ctx context.Context) (Result, error) {
	result := Result{Name: "long_running_queries"}

	interval := fmt.Sprintf("%d seconds", int(c.longQuery.Seconds()))
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM pg_stat_activity
		WHERE state = 'active'
		  AND pid <> pg_backend_pid()
		  AND now() - query_start > $1::interval
	`, interval).Scan(&count)
	if err != nil {
		return result, err
	}

	result.Value = fmt.Sprintf("%d", count)
	if count > 0 {
		result.Status = StatusWarn
		result.Detail = fmt.Sprintf("queries running longer than %s", interval)
	} else {
		result.Status = StatusOK
	}
	return result, nil
}

func (c *Checker) checkReplication(ctx context.Context) (Result, error) {
	result := Result{Name: "replication"}

	rows, err := c.db.QueryContext(ctx, `
		SELECT slot_name, active,
		       COALESCE(pg_size_pretty(pg_wal_lsn_diff(pg_current_wal_lsn(), restart_lsn)), 'unknown')
		FROM pg_replication_slots
	`)
	if err != nil {
		// Replication introspection is unavailable on some setups (e.g. a
		// standby without WAL access). Treat as not configured.
		result.Status = StatusOK
		result.Value = "unavailable"
		result.Detail = "replication status could not be queried"
		return result, nil
	}
	defer rows.Close()

	var details []string
	inactive := 0
	count := 0
	for rows.Next() {
		var slot, lag string
		var active bool
		if err := rows.Scan(&slot, &active, &lag); err != nil {
			return result, err
		}
		state := "active"
		if !active {
			state = "inactive"
			inactive++
		}
		details = append(details, fmt.Sprintf("%s: %s, lag %s", slot, state, lag))
		count++
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	if count == 0 {
		result.Status = StatusOK
		result.Value = "none"
		result.Detail = "no replication slots configured"
		return result, nil
	}

	result.Value = fmt.Sprintf("%d slot(s)", count)
	result.Detail = strings.Join(details, "; ")
	if inactive > 0 {
		result.Status = StatusWarn
	} else {
		result.Status = StatusOK
	}
	return result, nil
}

// deadTupleQuery covers the Ignition historian tables only (sqlth_* plus
// legacy sqlt_data_* partitions), not every user table in the database.
const deadTupleQuery = `
	SELECT COALESCE(sum(n_dead_tup), 0), COALESCE(sum(n_live_tup), 0)
	FROM pg_stat_user_tables
	WHERE relname LIKE 'sqlth%' OR relname LIKE 'sqlt_data%'
`

func (c *Checker) checkDeadTuples(ctx context.Context) (Result, error) {
	result := Result{Name: "dead_tuples"}

	var dead, live int64
	err := c.db.QueryRowContext(ctx, deadTupleQuery).Scan(&dead, &live)
	if err != nil {
		return result, err
	}

	if dead+live == 0 {
		result.Status = StatusOK
		result.Value = "n/a"
		return result, nil
	}

	pct := float64(dead) / float64(dead+live) * 100
	result.Status = deadTupleStatus(pct)
	result.Value = fmt.Sprintf("%.1f%% (%d dead)", pct, dead)
	if result.Status != StatusOK {
		result.Detail = "run histops cleanup to vacuum historian tables"
	}
	return result, nil
}

func (c *Checker) checkStatStatements(ctx context.Context) (Result, error) {
	result := Result{Name: "top_statements"}

	installed, err := db.HasExtension(ctx, c.db, "pg_stat_statements")
	if err != nil {
		return result, err
	}
	if !installed {
		result.Status = StatusOK
		result.Value = "n/a"
		result.Detail = "pg_stat_statements not installed"
		return result, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT left(regexp_replace(query, '\s+', ' ', 'g'), 60),
		       calls,
		       round(total_exec_time::numeric, 1)
		FROM pg_stat_statements
		ORDER BY total_exec_time DESC
		LIMIT 3
	`)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var query string
		var calls int64
		var totalMS float64
		if err := rows.Scan(&query, &calls, &totalMS); err != nil {
			return result, err
		}
		details = append(details, fmt.Sprintf("%s (%d calls, %.1fms total)", query, calls, totalMS))
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	result.Status = StatusOK
	result.Value = fmt.Sprintf("%d", len(details))
	result.Detail = strings.Join(details, "; ")
	return result, nil
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
