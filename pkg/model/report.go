package model

import "time"

// Report is the consolidated record of one maintenance run: the ordered
// event sequence plus a summary snapshot. Built incrementally by the report
// builder and immutable once the run reaches a terminal state.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Events []RunEvent `json:"events"`

	Diff        *DiffResult        `json:"diff,omitempty"`
	Decision    *ThresholdDecision `json:"decision,omitempty"`
	Scrub       *ScrubParams       `json:"scrub,omitempty"`
	Status      *StatusFacts       `json:"status,omitempty"`
	Smart       *SmartReport       `json:"smart,omitempty"`
	SyncElapsed string             `json:"sync_elapsed,omitempty"`
	SyncRan     bool               `json:"sync_ran"`
	ScrubRan    bool               `json:"scrub_ran"`

	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *Report) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
