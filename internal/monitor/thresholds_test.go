package monitor

import "testing"

// The connection alert must fire exactly when active/max*100 > 80.
func TestConnectionStatusBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, StatusOK},
		{60.0, StatusOK},
		{60.1, StatusWarn},
		{79.9, StatusWarn},
		{80.0, StatusWarn}, // exactly 80 is not an alert
		{80.1, StatusAlert},
		{100, StatusAlert},
	}

	for _, tt := range tests {
		if got := connectionStatus(tt.pct); got != tt.want {
			t.Errorf("connectionStatus(%.1f) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

// The cache-hit alert must fire exactly when the ratio < 90.
func TestCacheHitStatusBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{100, StatusOK},
		{95.0, StatusOK},
		{94.9, StatusWarn},
		{90.0, StatusWarn}, // exactly 90 is not an alert
		{89.9, StatusAlert},
		{0, StatusAlert},
	}

	for _, tt := range tests {
		if got := cacheHitStatus(tt.pct); got != tt.want {
			t.Errorf("cacheHitStatus(%.1f) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestDeadTupleStatusBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, StatusOK},
		{10.0, StatusOK},
		{10.1, StatusWarn},
		{20.0, StatusWarn},
		{20.1, StatusAlert},
	}

	for _, tt := range tests {
		if got := deadTupleStatus(tt.pct); got != tt.want {
			t.Errorf("deadTupleStatus(%.1f) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestWorstPicksHighestSeverity(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    string
	}{
		{"empty", nil, StatusOK},
		{"all ok", []Result{{Status: StatusOK}, {Status: StatusOK}}, StatusOK},
		{"one warn", []Result{{Status: StatusOK}, {Status: StatusWarn}}, StatusWarn},
		{"alert beats warn", []Result{{Status: StatusWarn}, {Status: StatusAlert}, {Status: StatusOK}}, StatusAlert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := worst(tt.results); got != tt.want {
				t.Errorf("worst() = %s, want %s", got, tt.want)
			}
		})
	}
}
