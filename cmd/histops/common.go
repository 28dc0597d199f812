package main

import (
	"flag"

	"github.com/ignition-tsdb/histops/internal/config"
	"github.com/ignition-tsdb/histops/internal/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// loadConfig pre-scans args for -config/--config so flag defaults can come
// from the file; flags parsed afterwards override it. --help must work
// without a readable config, so a missing default path is not an error.
func loadConfig(args []string) (*config.Config, error) {
	path := getEnv("HISTOPS_CONFIG", "")
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		}
	}

	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

// logFlags registers the shared logging flags on a subcommand flag set.
func logFlags(fs *flag.FlagSet) (level, format *string) {
	level = fs.String("log-level", getEnv("HISTOPS_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	format = fs.String("log-format", getEnv("HISTOPS_LOG_FORMAT", "console"), "log format: json, console")
	return level, format
}

func initLogging(level, format string) {
	logger.Initialize(level, format)
}
