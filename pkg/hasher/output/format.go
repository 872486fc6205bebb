package output

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// formatBytes renders a byte count in binary units.
func formatBytes(n uint64) string {
	return humanize.IBytes(n)
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatDurationString formats a duration for machine-readable output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
