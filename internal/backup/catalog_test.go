package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestCatalogRecordAndList(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	first := &Manifest{
		RunID:      "run-1",
		StartedAt:  time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 1, 2, 5, 0, 0, time.UTC),
		Status:     StatusOK,
		Entries: []Entry{
			{Database: "historian", File: "historian_20260801_020000.dump", Kind: "dump", SizeBytes: 1024, DurationMS: 900, Status: StatusOK},
			{Database: "*", File: "globals_20260801_020000.sql.gz", Kind: "globals", SizeBytes: 64, DurationMS: 50, Status: StatusOK},
		},
	}
	require.NoError(t, cat.RecordRun(ctx, first))

	second := &Manifest{
		RunID:      "run-2",
		StartedAt:  time.Date(2026, 8, 2, 2, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 2, 2, 4, 0, 0, time.UTC),
		Status:     StatusFailed,
		Entries: []Entry{
			{Database: "historian", Kind: "dump", Status: StatusFailed, Error: "connection refused"},
		},
	}
	require.NoError(t, cat.RecordRun(ctx, second))

	runs, err := cat.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, 2, runs[1].FileCount)
	assert.Equal(t, int64(1088), runs[1].TotalBytes)
	assert.Equal(t, first.StartedAt, runs[1].StartedAt)
}

func TestCatalogListLimit(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := &Manifest{
			RunID:      string(rune('a' + i)),
			StartedAt:  time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, 8, 1+i, 0, 1, 0, 0, time.UTC),
			Status:     StatusOK,
		}
		require.NoError(t, cat.RecordRun(ctx, m))
	}

	runs, err := cat.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
	assert.Equal(t, "e", runs[0].RunID)
}

func TestCatalogRejectsDuplicateRun(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	m := &Manifest{RunID: "dup", StartedAt: time.Now(), FinishedAt: time.Now(), Status: StatusOK}
	require.NoError(t, cat.RecordRun(ctx, m))
	assert.Error(t, cat.RecordRun(ctx, m))
}

func TestOpenCatalogRequiresPath(t *testing.T) {
	_, err := OpenCatalog("")
	assert.Error(t, err)
}
