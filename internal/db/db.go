// Package db opens connections to the historian database and probes the
// server for the facts the commands need before doing any real work.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Connect opens a pooled connection to a postgres:// URL and verifies it.
func Connect(ctx context.Context, dbURL string) (*sql.DB, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("unsupported database scheme: %s (use postgres://)", u.Scheme)
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	// A maintenance CLI never needs more than a handful of connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// HasExtension reports whether a Postgres extension is installed.
func HasExtension(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check extension %s: %w", name, err)
	}
	return exists, nil
}

// RequireTimescaleDB fails when the TimescaleDB extension is missing.
func RequireTimescaleDB(ctx context.Context, db *sql.DB) error {
	ok, err := HasExtension(ctx, db, "timescaledb")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("TimescaleDB extension is not installed. Run: CREATE EXTENSION IF NOT EXISTS timescaledb")
	}
	return nil
}

// ServerInfo describes the connected server.
type ServerInfo struct {
	Version       string
	Database      string
	UptimeSeconds int64
}

// Info fetches server version, current database and uptime.
func Info(ctx context.Context, db *sql.DB) (*ServerInfo, error) {
	var info ServerInfo
	err := db.QueryRowContext(ctx, `
		SELECT current_setting('server_version'),
		       current_database(),
		       extract(epoch FROM now() - pg_postmaster_start_time())::bigint
	`).Scan(&info.Version, &info.Database, &info.UptimeSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query server info: %w", err)
	}
	return &info, nil
}

// DatabaseName extracts the database name from a postgres:// URL.
func DatabaseName(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}
	if len(u.Path) > 1 {
		return u.Path[1:]
	}
	return ""
}
