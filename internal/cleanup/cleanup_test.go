package cleanup

import (
	"strings"
	"testing"
)

func TestMaintenanceStatement(t *testing.T) {
	tests := []struct {
		table       string
		analyzeOnly bool
		want        string
	}{
		{"sqlth_1_data", false, `VACUUM ANALYZE "sqlth_1_data"`},
		{"sqlth_1_data", true, `ANALYZE "sqlth_1_data"`},
		{"sqlth_te", false, `VACUUM ANALYZE "sqlth_te"`},
		{"sqlth_te", true, `ANALYZE "sqlth_te"`},
	}

	for _, tt := range tests {
		got := maintenanceStatement(tt.table, tt.analyzeOnly)
		if got != tt.want {
			t.Errorf("maintenanceStatement(%q, %v) = %q, want %q", tt.table, tt.analyzeOnly, got, tt.want)
		}
	}
}

func TestMaintenanceStatementAnalyzeOnlyNeverVacuums(t *testing.T) {
	for _, table := range []string{"sqlth_1_data", "sqlth_te", "sqlth_scinfo", "sqlth_drv", "sqlth_partitions"} {
		stmt := maintenanceStatement(table, true)
		if strings.Contains(stmt, "VACUUM") {
			t.Errorf("analyze-only statement for %s contains VACUUM: %q", table, stmt)
		}
		if !strings.HasPrefix(stmt, "ANALYZE ") {
			t.Errorf("analyze-only statement for %s does not run ANALYZE: %q", table, stmt)
		}
	}
}

func TestQuoteIdentNeutralizesUnsafeCharacters(t *testing.T) {
	if got := quoteIdent("sqlth_1_data"); got != `"sqlth_1_data"` {
		t.Errorf("quoteIdent(sqlth_1_data) = %q", got)
	}

	got := quoteIdent(`sqlth_te"; DROP TABLE x`)
	for _, forbidden := range []string{`"`, ";", " "} {
		if strings.Contains(strings.Trim(got, `"`), forbidden) {
			t.Errorf("quoteIdent left %q in %q", forbidden, got)
		}
	}
}
