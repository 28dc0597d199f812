package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchWindowsCoverWholeRange(t *testing.T) {
	// Three full days plus a partial fourth.
	minTS := int64(1_700_000_000_000)
	maxTS := minTS + 3*dayWindowMS + 500

	windows := batchWindows(minTS, maxTS, dayWindowMS)
	assert.Len(t, windows, 4)

	assert.Equal(t, minTS, windows[0].start)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].end, windows[i].start, "windows must be contiguous")
	}
	assert.Equal(t, maxTS+1, windows[len(windows)-1].end, "final window must include maxTS")
}

func TestBatchWindowsSingleSample(t *testing.T) {
	windows := batchWindows(42, 42, dayWindowMS)
	assert.Equal(t, []window{{start: 42, end: 43}}, windows)
}

func TestBatchWindowsDegenerateInputs(t *testing.T) {
	assert.Nil(t, batchWindows(100, 50, dayWindowMS))
	assert.Nil(t, batchWindows(0, 100, 0))
	assert.Nil(t, batchWindows(0, 100, -1))
}

func TestBatchWindowsExactMultiple(t *testing.T) {
	minTS := int64(0)
	maxTS := 2*dayWindowMS - 1

	windows := batchWindows(minTS, maxTS, dayWindowMS)
	assert.Len(t, windows, 2)
	assert.Equal(t, window{start: 0, end: dayWindowMS}, windows[0])
	assert.Equal(t, window{start: dayWindowMS, end: maxTS + 1}, windows[1])
}

func TestBackupTableName(t *testing.T) {
	at := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "sqlth_1_data_backup_20260820_143005", backupTableName("sqlth_1_data", at))
}

func TestOptionsDefaults(t *testing.T) {
	tr := New(nil, nil, Options{})
	assert.Equal(t, "sqlth_1_data", tr.opts.SourceTable)
	assert.Equal(t, "sqlth_1_data", tr.opts.TargetTable)
	assert.Equal(t, dayWindowMS, tr.opts.windowMS())

	tr = New(nil, nil, Options{WindowMS: 3600000})
	assert.Equal(t, int64(3600000), tr.opts.windowMS())
}

func TestValidationReportChecks(t *testing.T) {
	ok := &ValidationReport{
		SourceRows: 100, TargetRows: 100,
		SourceTags: 5, TargetTags: 5,
		SourceEarliestMS: 10, SourceLatestMS: 90,
		TargetEarliestMS: 10, TargetLatestMS: 90,
	}
	assert.True(t, ok.OK())

	// Target with pre-existing rows still validates.
	superset := *ok
	superset.TargetRows = 150
	superset.TargetEarliestMS = 5
	assert.True(t, superset.OK())

	missing := *ok
	missing.TargetRows = 90
	assert.False(t, missing.RowsMatch())
	assert.False(t, missing.OK())

	truncated := *ok
	truncated.TargetLatestMS = 80
	assert.False(t, truncated.RangeMatch())
	assert.False(t, truncated.OK())
}
