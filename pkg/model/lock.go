package model

import "time"

// LockRecord is stored at <lock dir>/snapguard.lock.json while a run holds
// the exclusive run lock.
type LockRecord struct {
	RunID      string    `json:"run_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}
