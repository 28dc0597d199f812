// Package config loads the optional histops YAML configuration file.
//
// Every value here can also be supplied (and overridden) by command-line
// flags or HISTOPS_* environment variables; the file exists so that cron
// entries don't have to repeat a dozen flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Backup   BackupConfig   `yaml:"backup"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
}

type DatabaseConfig struct {
	// URL is a postgres:// connection URL for the historian database.
	URL string `yaml:"url"`
	// Databases lists the databases to dump. Empty means just the one
	// named in URL.
	Databases []string `yaml:"databases"`
}

type BackupConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retentionDays"`
	Format        string `yaml:"format"` // "custom" (pg_dump -F c) or "plain" (.sql.gz)
	Globals       bool   `yaml:"globals"`
	Catalog       string `yaml:"catalog"`
}

type MonitorConfig struct {
	LongQuerySeconds int    `yaml:"longQuerySeconds"`
	Listen           string `yaml:"listen"`
	IntervalSeconds  int    `yaml:"intervalSeconds"`
}

type CleanupConfig struct {
	Tables            []string `yaml:"tables"`
	CompressAfterDays int      `yaml:"compressAfterDays"`
	DropAfterDays     int      `yaml:"dropAfterDays"` // 0 disables chunk dropping
	Aggregates        []string `yaml:"aggregates"`
	LogDir            string   `yaml:"logDir"`
	LogRetentionDays  int      `yaml:"logRetentionDays"`
}

// HistorianTables are the Ignition tag historian tables maintained by the
// cleanup command when no explicit table list is configured.
var HistorianTables = []string{
	"sqlth_1_data",
	"sqlth_te",
	"sqlth_scinfo",
	"sqlth_drv",
	"sqlth_partitions",
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		Backup: BackupConfig{
			Dir:           "/var/backups/historian",
			RetentionDays: 14,
			Format:        "custom",
			Globals:       true,
		},
		Monitor: MonitorConfig{
			LongQuerySeconds: 300,
			IntervalSeconds:  60,
		},
		Cleanup: CleanupConfig{
			Tables:            HistorianTables,
			CompressAfterDays: 7,
			Aggregates:        []string{"sqlth_1_data_hourly"},
			LogRetentionDays:  30,
		},
	}
}

// Load reads and validates a config file, layered over Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Backup.RetentionDays < 0 {
		return errors.New("backup.retentionDays must not be negative")
	}
	switch c.Backup.Format {
	case "", "custom", "plain":
	default:
		return fmt.Errorf("backup.format must be custom or plain, got %q", c.Backup.Format)
	}
	if c.Monitor.LongQuerySeconds < 0 {
		return errors.New("monitor.longQuerySeconds must not be negative")
	}
	if c.Monitor.IntervalSeconds < 0 {
		return errors.New("monitor.intervalSeconds must not be negative")
	}
	if c.Cleanup.LogRetentionDays < 0 {
		return errors.New("cleanup.logRetentionDays must not be negative")
	}
	if c.Cleanup.CompressAfterDays < 0 || c.Cleanup.DropAfterDays < 0 {
		return errors.New("cleanup chunk windows must not be negative")
	}
	for _, t := range c.Cleanup.Tables {
		if t == "" {
			return errors.New("cleanup.tables must not contain empty names")
		}
	}
	return nil
}

// MonitorInterval returns the monitor loop interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}
