package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchFile(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("log line\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweepLogsRemovesOnlyExpiredLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	retention := 30 * 24 * time.Hour

	touchFile(t, dir, "cleanup-20260601.log", now.Add(-80*24*time.Hour))
	touchFile(t, dir, "backup-20260715.log", now.Add(-36*24*time.Hour))
	touchFile(t, dir, "cleanup-20260818.log", now.Add(-2*24*time.Hour))
	touchFile(t, dir, "notes.txt", now.Add(-90*24*time.Hour))

	removed, err := SweepLogs(dir, retention, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup-20260715.log", "cleanup-20260601.log"}, removed)

	_, err = os.Stat(filepath.Join(dir, "cleanup-20260818.log"))
	assert.NoError(t, err, "recent log must survive the sweep")
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err, "non-log files must never be removed")
}

func TestSweepLogsKeepsFileExactlyAtCutoff(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	retention := 7 * 24 * time.Hour

	touchFile(t, dir, "boundary.log", now.Add(-retention))

	removed, err := SweepLogs(dir, retention, now)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSweepLogsMissingDir(t *testing.T) {
	_, err := SweepLogs(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now())
	assert.Error(t, err)
}
