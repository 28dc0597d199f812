package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignition-tsdb/histops/internal/db"
	"github.com/ignition-tsdb/histops/internal/monitor"
)

func runMonitor(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	fs.String("config", "", "path to YAML config file")
	dbURL := fs.String("db-url", getEnv("HISTOPS_DB_URL", cfg.Database.URL), "postgres:// connection URL")
	format := fs.String("format", "text", "report format: text or json")
	noColor := fs.Bool("no-color", getEnvBool("HISTOPS_NO_COLOR", false), "disable ANSI colors in text output")
	longQuery := fs.Int("long-query", getEnvInt("HISTOPS_LONG_QUERY_SECONDS", cfg.Monitor.LongQuerySeconds), "flag queries running longer than this many seconds")
	listen := fs.String("listen", getEnv("HISTOPS_LISTEN", cfg.Monitor.Listen), "serve /health and /report on this address instead of exiting")
	interval := fs.Int("interval", getEnvInt("HISTOPS_INTERVAL_SECONDS", cfg.Monitor.IntervalSeconds), "seconds between check runs in -listen mode")
	level, logFormat := logFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	initLogging(*level, *logFormat)

	if *dbURL == "" {
		return errors.New("-db-url is required")
	}
	switch *format {
	case "text", "json":
	default:
		return errors.New("-format must be text or json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	checker := monitor.NewChecker(conn, time.Duration(*longQuery)*time.Second)

	if *listen != "" {
		server := monitor.NewServer(checker, time.Duration(*interval)*time.Second)
		return server.ListenAndServe(ctx, *listen)
	}

	report, err := checker.Run(ctx)
	if err != nil {
		return err
	}

	// Alerts are reported in the output, not the exit code, so cron
	// wrappers only fail on real errors.
	if *format == "json" {
		return monitor.WriteJSON(os.Stdout, report)
	}
	return monitor.WriteText(os.Stdout, report, !*noColor)
}
