package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ignition-tsdb/histops/internal/backup"
	"github.com/ignition-tsdb/histops/internal/db"
	"github.com/ignition-tsdb/histops/internal/logger"
)

func runBackup(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	fs.String("config", "", "path to YAML config file")
	dbURL := fs.String("db-url", getEnv("HISTOPS_DB_URL", cfg.Database.URL), "postgres:// connection URL")
	databases := fs.String("databases", strings.Join(cfg.Database.Databases, ","), "comma-separated databases to dump (default: the one in -db-url)")
	dir := fs.String("dir", getEnv("HISTOPS_BACKUP_DIR", cfg.Backup.Dir), "backup directory")
	retentionDays := fs.Int("retention-days", getEnvInt("HISTOPS_RETENTION_DAYS", cfg.Backup.RetentionDays), "delete backups older than this many days (0 disables)")
	format := fs.String("format", cfg.Backup.Format, "dump format: custom or plain")
	globals := fs.Bool("globals", cfg.Backup.Globals, "also dump cluster globals with pg_dumpall")
	skipMetadata := fs.Bool("skip-metadata", false, "skip the tag metadata CSV export")
	catalogPath := fs.String("catalog", cfg.Backup.Catalog, "path to the SQLite run catalog (empty disables)")
	list := fs.Bool("list", false, "list recorded backup runs and exit")
	limit := fs.Int("limit", 20, "number of runs to list with -list")
	asJSON := fs.Bool("json", false, "print the run manifest as JSON")
	level, logFormat := logFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	initLogging(*level, *logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *list {
		return listBackupRuns(ctx, *catalogPath, *limit)
	}

	if *dbURL == "" {
		return errors.New("-db-url is required")
	}

	dbNames := splitList(*databases)
	if len(dbNames) == 0 {
		name := db.DatabaseName(*dbURL)
		if name == "" {
			return errors.New("cannot determine database name from -db-url; use -databases")
		}
		dbNames = []string{name}
	}

	var catalog *backup.Catalog
	if *catalogPath != "" {
		catalog, err = backup.OpenCatalog(*catalogPath)
		if err != nil {
			return err
		}
		defer catalog.Close()
	}

	// Tag metadata lives in sqlth_te of the first database, which may differ
	// from the one named in -db-url.
	var metaConn *sql.DB
	if !*skipMetadata {
		metaURL, err := backup.URLForDatabase(*dbURL, dbNames[0])
		if err != nil {
			return err
		}
		metaConn, err = db.Connect(ctx, metaURL)
		if err != nil {
			logger.Get().Warn().Err(err).Str("database", dbNames[0]).Msg("Skipping tag metadata export")
		} else {
			defer metaConn.Close()
		}
	}

	runner := backup.New(backup.Options{
		ConnURL:       *dbURL,
		Databases:     dbNames,
		Dir:           *dir,
		Format:        *format,
		RetentionDays: *retentionDays,
		Globals:       *globals,
		Metadata:      metaConn,
	}, catalog)

	manifest, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		if err := backup.WriteManifestJSON(os.Stdout, manifest); err != nil {
			return err
		}
	} else {
		printManifest(manifest)
	}
	if manifest.Status != backup.StatusOK {
		return errors.New("one or more dumps failed")
	}
	return nil
}

func listBackupRuns(ctx context.Context, catalogPath string, limit int) error {
	if catalogPath == "" {
		return errors.New("-catalog is required with -list")
	}

	catalog, err := backup.OpenCatalog(catalogPath)
	if err != nil {
		return err
	}
	defer catalog.Close()

	runs, err := catalog.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no backup runs recorded")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-6s  %5s  %12s\n", "RUN ID", "STARTED", "STATUS", "FILES", "BYTES")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-6s  %5d  %12d\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.FileCount, r.TotalBytes)
	}
	return nil
}

func printManifest(m *backup.Manifest) {
	fmt.Printf("Backup run %s: %s\n", m.RunID, m.Status)
	for _, e := range m.Entries {
		if e.Status == backup.StatusOK {
			fmt.Printf("  %-8s %-40s %d bytes\n", e.Kind, e.File, e.SizeBytes)
		} else {
			fmt.Printf("  %-8s %-40s FAILED: %s\n", e.Kind, e.Database, e.Error)
		}
	}
	for _, name := range m.Removed {
		fmt.Printf("  removed  %s\n", filepath.Base(name))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
