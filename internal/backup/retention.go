package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignition-tsdb/histops/internal/logger"
)

// backupSuffixes are the artifact types the sweep is allowed to delete.
// Anything else in the backup directory is left alone.
var backupSuffixes = []string{".dump", ".sql.gz", ".csv", ".manifest.json"}

// SweepExpired deletes backup artifacts in dir whose modification time is
// older than now-retention and returns the removed file names.
func SweepExpired(dir string, retention time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := now.Add(-retention)
	var removed []string

	for _, entry := range entries {
		if entry.IsDir() || !isBackupArtifact(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		logger.Get().Info().Str("file", entry.Name()).Msg("Removed expired backup")
		removed = append(removed, entry.Name())
	}

	sort.Strings(removed)
	return removed, nil
}

func isBackupArtifact(name string) bool {
	for _, suffix := range backupSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
