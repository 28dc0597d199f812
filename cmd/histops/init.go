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
	"github.com/ignition-tsdb/histops/internal/migrate"
	"github.com/ignition-tsdb/histops/migrations"
)

func runInit(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.String("config", "", "path to YAML config file")
	dbURL := fs.String("db-url", getEnv("HISTOPS_DB_URL", cfg.Database.URL), "postgres:// connection URL")
	dryRun := fs.Bool("dry-run", false, "list pending schema migrations without applying them")
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

	if err := db.RequireTimescaleDB(ctx, conn); err != nil {
		return err
	}

	migrator := migrate.New(conn, "postgres", migrations.HistorianFS, migrations.HistorianDir)

	if *dryRun {
		pending, err := migrator.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("schema is up to date")
			return nil
		}
		fmt.Println("pending migrations:")
		for _, name := range pending {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	applied, err := migrator.Apply(ctx)
	if err != nil {
		return err
	}
	if applied == 0 {
		fmt.Println("schema is up to date")
	} else {
		fmt.Printf("applied %d migrations\n", applied)
	}
	return nil
}
