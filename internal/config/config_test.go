package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "histops.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://ignition@localhost:5432/historian
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://ignition@localhost:5432/historian", cfg.Database.URL)
	assert.Equal(t, 14, cfg.Backup.RetentionDays)
	assert.Equal(t, "custom", cfg.Backup.Format)
	assert.Equal(t, 300, cfg.Monitor.LongQuerySeconds)
	assert.Equal(t, HistorianTables, cfg.Cleanup.Tables)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backup:
  dir: /srv/backups
  retentionDays: 7
  format: plain
cleanup:
  tables: [sqlth_1_data]
  dropAfterDays: 365
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/backups", cfg.Backup.Dir)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, "plain", cfg.Backup.Format)
	assert.Equal(t, []string{"sqlth_1_data"}, cfg.Cleanup.Tables)
	assert.Equal(t, 365, cfg.Cleanup.DropAfterDays)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative retention", "backup:\n  retentionDays: -1\n"},
		{"bad format", "backup:\n  format: tar\n"},
		{"negative long query", "monitor:\n  longQuerySeconds: -5\n"},
		{"empty table name", "cleanup:\n  tables: ['']\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
