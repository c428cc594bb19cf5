// Package timeutil formats durations for log and console output.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDuration renders d in the compact form used by debug logs:
// "0ms", "12ms", "1.5s", "2m3s", "1h4m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d / time.Minute)
		seconds := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		hours := int(d / time.Hour)
		minutes := int((d % time.Hour) / time.Minute)
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}
