package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignition-tsdb/histops/internal/cleanup"
	"github.com/ignition-tsdb/histops/internal/db"
)

func runCleanup(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	fs.String("config", "", "path to YAML config file")
	dbURL := fs.String("db-url", getEnv("HISTOPS_DB_URL", cfg.Database.URL), "postgres:// connection URL")
	tables := fs.String("tables", strings.Join(cfg.Cleanup.Tables, ","), "comma-separated tables to maintain")
	compressDays := fs.Int("compress-after-days", cfg.Cleanup.CompressAfterDays, "compress chunks older than this many days (0 disables)")
	dropDays := fs.Int("drop-after-days", cfg.Cleanup.DropAfterDays, "drop chunks older than this many days (0 disables)")
	aggregates := fs.String("aggregates", strings.Join(cfg.Cleanup.Aggregates, ","), "comma-separated continuous aggregates to refresh")
	logDir := fs.String("log-dir", cfg.Cleanup.LogDir, "directory holding .log files to prune (empty disables)")
	logRetentionDays := fs.Int("log-retention-days", cfg.Cleanup.LogRetentionDays, "delete log files older than this many days")

	var analyzeOnly, verbose bool
	fs.BoolVar(&analyzeOnly, "analyze-only", false, "run ANALYZE only, skip VACUUM")
	fs.BoolVar(&analyzeOnly, "a", false, "shorthand for -analyze-only")
	fs.BoolVar(&verbose, "verbose", false, "log each maintenance statement")
	fs.BoolVar(&verbose, "v", false, "shorthand for -verbose")

	level, logFormat := logFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	initLogging(*level, *logFormat)

	if *dbURL == "" {
		return errors.New("-db-url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	runner := cleanup.New(conn, cleanup.Options{
		AnalyzeOnly:   analyzeOnly,
		Verbose:       verbose,
		Tables:        splitList(*tables),
		Aggregates:    splitList(*aggregates),
		CompressAfter: time.Duration(*compressDays) * 24 * time.Hour,
		DropAfter:     time.Duration(*dropDays) * 24 * time.Hour,
		LogDir:        *logDir,
		LogRetention:  time.Duration(*logRetentionDays) * 24 * time.Hour,
	})

	summary, err := runner.Run(ctx)
	printCleanupSummary(summary)
	return err
}

func printCleanupSummary(s *cleanup.Summary) {
	fmt.Println("Cleanup summary:")
	printCount("vacuumed tables", s.Vacuumed)
	printCount("analyzed tables", s.Analyzed)
	printCount("skipped tables", s.SkippedTables)
	printCount("compressed chunks", s.CompressedChunks)
	printCount("dropped chunks", s.DroppedChunks)
	printCount("refreshed aggregates", s.RefreshedAggregates)
	printCount("removed log files", s.RemovedLogs)
}

func printCount(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("  %-22s %d (%s)\n", label+":", len(items), strings.Join(items, ", "))
}
