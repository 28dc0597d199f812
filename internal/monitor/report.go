package monitor

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// json is the jsoniter instance configured to be compatible with standard library
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ansiGreen  = "\033[0;32m"
	ansiYellow = "\033[0;33m"
	ansiRed    = "\033[0;31m"
	ansiReset  = "\033[0m"
)

// WriteText renders the report as the color-coded console listing.
func WriteText(w io.Writer, r *Report, color bool) error {
	if _, err := fmt.Fprintf(w, "Historian health report for %s (%s)\n\n",
		r.Database, r.GeneratedAt.Format("2006-01-02 15:04:05 MST")); err != nil {
		return err
	}

	for _, res := range r.Results {
		if _, err := fmt.Fprintf(w, "%s %-22s %s\n", statusTag(res.Status, color), res.Name, res.Value); err != nil {
			return err
		}
		if res.Detail != "" {
			if _, err := fmt.Fprintf(w, "        %s\n", res.Detail); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "\nOverall status: %s\n", statusText(r.Status, color))
	return err
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func statusTag(status string, color bool) string {
	tag := fmt.Sprintf("[%-5s]", status)
	if !color {
		return tag
	}
	return statusColor(status) + tag + ansiReset
}

func statusText(status string, color bool) string {
	if !color {
		return status
	}
	return statusColor(status) + status + ansiReset
}

func statusColor(status string) string {
	switch status {
	case StatusAlert:
		return ansiRed
	case StatusWarn:
		return ansiYellow
	default:
		return ansiGreen
	}
}
