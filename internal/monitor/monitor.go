// Package monitor runs the historian health checks: a fixed list of
// read-only queries against system catalogs, TimescaleDB views and the
// historian tables, each compared against static thresholds.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignition-tsdb/histops/internal/db"
)

// Result is the outcome of a single health check.
type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Value  string `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// Report is a full health check run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Database    string    `json:"database"`
	Status      string    `json:"status"`
	Results     []Result  `json:"results"`
}

// Checker runs the health checks against one database.
type Checker struct {
	db        *sql.DB
	longQuery time.Duration
}

// NewChecker creates a Checker. longQuery is the runtime above which an
// active query counts as long-running.
func NewChecker(database *sql.DB, longQuery time.Duration) *Checker {
	if longQuery <= 0 {
		longQuery = 5 * time.Minute
	}
	return &Checker{db: database, longQuery: longQuery}
}

// Run executes every check in order. Optional features (replication,
// pg_stat_statements) degrade to informational results; any other query
// failure aborts the run.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	info, err := db.Info(ctx, c.db)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Database:    info.Database,
	}

	checks := []func(context.Context) (Result, error){
		func(ctx context.Context) (Result, error) { return c.checkServer(ctx, info) },
		c.checkConnections,
		c.checkCacheHit,
		c.checkDatabaseSize,
		c.checkHypertables,
		c.checkCompression,
		c.checkBackgroundJobs,
		c.checkLongQueries,
		c.checkReplication,
		c.checkDeadTuples,
		c.checkStatStatements,
	}

	for _, check := range checks {
		result, err := check(ctx)
		if err != nil {
			return nil, fmt.Errorf("health check %q failed: %w", result.Name, err)
		}
		report.Results = append(report.Results, result)
	}

	report.Status = worst(report.Results)
	return report, nil
}
