// Package progress provides progress reporting for long-running subcommands.
package progress

import (
	"sync"
	"time"
)

// Update is one recognized progress line from the array tool.
type Update struct {
	Percent     int
	ProcessedMB int
	SpeedMB     int    // 0 when the tool omits speed
	ETA         string // "1h 23m", empty when unknown
}

// Callback receives progress updates during long operations.
type Callback func(phase string, u Update)

// Noop is a no-op callback for default behavior.
func Noop(phase string, u Update) {}

// Throttle wraps cb so it fires at most once per interval, dropping
// intermediate updates. The window starts at creation, so the first update
// only goes through once a full interval has passed. Live notification
// channels should not be hit for every output line.
func Throttle(cb Callback, interval time.Duration, now func() time.Time) Callback {
	if cb == nil {
		return Noop
	}
	if now == nil {
		now = time.Now
	}

	var mu sync.Mutex
	last := now()

	return func(phase string, u Update) {
		mu.Lock()
		t := now()
		if t.Sub(last) < interval {
			mu.Unlock()
			return
		}
		last = t
		mu.Unlock()

		cb(phase, u)
	}
}
