// Package timeutil formats durations for run reports.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// FormatDelta renders a duration as "2h 3m 4s", omitting leading zero units.
// Sub-second durations render as "0s".
func FormatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 || h > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))

	return strings.Join(parts, " ")
}
