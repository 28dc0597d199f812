package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignition-tsdb/histops/internal/db"
	"github.com/ignition-tsdb/histops/internal/transfer"
)

func runMigrate(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.String("config", "", "path to YAML config file")
	sourceURL := fs.String("source-url", getEnv("HISTOPS_SOURCE_URL", cfg.Database.URL), "postgres:// URL of the legacy historian database")
	targetURL := fs.String("target-url", getEnv("HISTOPS_TARGET_URL", ""), "postgres:// URL of the TimescaleDB database (default: same as source)")
	sourceTable := fs.String("source-table", "sqlth_1_data", "table to copy from")
	targetTable := fs.String("target-table", "sqlth_1_data", "hypertable to copy into")
	noBackup := fs.Bool("no-backup", false, "skip the pre-migration snapshot of the target table")
	validateOnly := fs.Bool("validate-only", false, "compare source and target without copying")
	windowHours := fs.Int("window-hours", 24, "batch window size in hours")
	level, logFormat := logFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	initLogging(*level, *logFormat)

	if *sourceURL == "" {
		return errors.New("-source-url is required")
	}
	if *targetURL == "" {
		*targetURL = *sourceURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := db.Connect(ctx, *sourceURL)
	if err != nil {
		return fmt.Errorf("source connection failed: %w", err)
	}
	defer source.Close()

	target := source
	if *targetURL != *sourceURL {
		target, err = db.Connect(ctx, *targetURL)
		if err != nil {
			return fmt.Errorf("target connection failed: %w", err)
		}
		defer target.Close()
	}

	tr := transfer.New(source, target, transfer.Options{
		SourceTable: *sourceTable,
		TargetTable: *targetTable,
		NoBackup:    *noBackup,
		WindowMS:    int64(*windowHours) * 3600 * 1000,
	})

	if *validateOnly {
		report, err := tr.Validate(ctx)
		if err != nil {
			return err
		}
		printValidation(report)
		if !report.OK() {
			return errors.New("validation found mismatches")
		}
		return nil
	}

	stats, err := tr.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Copied %d rows in %d batches (%.1fs)\n",
		stats.CopiedRows, stats.Batches, float64(stats.DurationMS)/1000)
	if stats.BackupTable != "" {
		fmt.Printf("Target snapshot saved as %s\n", stats.BackupTable)
	}

	report, err := tr.Validate(ctx)
	if err != nil {
		return err
	}
	printValidation(report)
	if !report.OK() {
		return errors.New("post-migration validation found mismatches")
	}
	return nil
}

func printValidation(r *transfer.ValidationReport) {
	check := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "MISMATCH"
	}
	fmt.Println("Validation:")
	fmt.Printf("  rows:   source=%d target=%d  %s\n", r.SourceRows, r.TargetRows, check(r.RowsMatch()))
	fmt.Printf("  tags:   source=%d target=%d  %s\n", r.SourceTags, r.TargetTags, check(r.TagsMatch()))
	fmt.Printf("  range:  source=[%d, %d] target=[%d, %d]  %s\n",
		r.SourceEarliestMS, r.SourceLatestMS, r.TargetEarliestMS, r.TargetLatestMS, check(r.RangeMatch()))
}
