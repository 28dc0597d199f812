// Package main provides the histops command-line tool for operating an
// Ignition tag historian running on TimescaleDB: backups, health
// monitoring, maintenance and data migration.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ignition-tsdb/histops/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const helpText = `histops - Ignition historian operations for TimescaleDB

USAGE:
    histops <command> [OPTIONS]

COMMANDS:
    backup        Dump historian databases, sweep expired backups
    monitor       Run health checks and print a color-coded report
    cleanup       VACUUM/ANALYZE, compress and drop old chunks, prune logs
    migrate       Copy legacy historian data into TimescaleDB hypertables
    init          Provision the historian schema on a TimescaleDB database
    version       Show version information
    help          Show this help message

COMMON OPTIONS:
    -db-url <url>             postgres:// connection URL for the historian
                              Env: HISTOPS_DB_URL
    -config <path>            Optional YAML config file; flags override it
                              Env: HISTOPS_CONFIG
    -log-level <level>        debug, info, warn, error (default: info)
                              Env: HISTOPS_LOG_LEVEL
    -log-format <format>      json, console (default: console)
                              Env: HISTOPS_LOG_FORMAT

EXAMPLES:
    # Nightly backup with a 14 day retention window
    histops backup --db-url postgres://ignition@db:5432/historian \
        --dir /var/backups/historian --retention-days 14

    # List recorded backup runs
    histops backup --list --catalog /var/backups/historian/catalog.db

    # One-shot health report
    histops monitor --db-url postgres://ignition@db:5432/historian

    # Continuous monitoring with an HTTP endpoint
    histops monitor --db-url ... --listen :9090 --interval 60

    # Weekly maintenance, statistics only
    histops cleanup --db-url ... --analyze-only

    # Migrate legacy historian rows into the hypertable
    histops migrate --source-url ... --target-url ... --source-table sqlth_1_data

Run 'histops <command> --help' for command-specific options.
`

func printHelp() {
	fmt.Print(helpText)
}

func printVersion() {
	fmt.Printf("histops %s (commit %s, built %s)\n", version, commit, date)
}

func main() {
	if len(os.Args) == 1 {
		printHelp()
		return
	}

	var err error
	switch os.Args[1] {
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printHelp()
		return
	case "backup":
		err = runBackup(os.Args[2:])
	case "monitor":
		err = runMonitor(os.Args[2:])
	case "cleanup":
		err = runCleanup(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}

	if err != nil {
		logger.Get().Fatal().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
}

// Environment variable helpers
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
