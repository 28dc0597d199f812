package monitor

// Health statuses, ordered by severity.
const (
	StatusOK    = "OK"
	StatusWarn  = "WARN"
	StatusAlert = "ALERT"
)

// Alert thresholds for the historian health checks. The connection and
// cache-hit values match the limits the Ignition driver documentation
// recommends for historian databases.
const (
	connWarnPct  = 60.0
	connAlertPct = 80.0

	cacheWarnPct  = 95.0
	cacheAlertPct = 90.0

	deadTupleWarnPct  = 10.0
	deadTupleAlertPct = 20.0
)

// connectionStatus alerts strictly above 80% of max_connections.
func connectionStatus(pct float64) string {
	switch {
	case pct > connAlertPct:
		return StatusAlert
	case pct > connWarnPct:
		return StatusWarn
	default:
		return StatusOK
	}
}

// cacheHitStatus alerts strictly below a 90% buffer cache hit ratio.
func cacheHitStatus(pct float64) string {
	switch {
	case pct < cacheAlertPct:
		return StatusAlert
	case pct < cacheWarnPct:
		return StatusWarn
	default:
		return StatusOK
	}
}

func deadTupleStatus(pct float64) string {
	switch {
	case pct > deadTupleAlertPct:
		return StatusAlert
	case pct > deadTupleWarnPct:
		return StatusWarn
	default:
		return StatusOK
	}
}

func severityRank(status string) int {
	switch status {
	case StatusAlert:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// worst returns the most severe status among the results.
func worst(results []Result) string {
	status := StatusOK
	for _, r := range results {
		if severityRank(r.Status) > severityRank(status) {
			status = r.Status
		}
	}
	return status
}
