package model

import "time"

// Phase identifies a stage of a maintenance run.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseSanity    Phase = "sanity"
	PhaseTouch     Phase = "touch"
	PhaseDiff      Phase = "diff"
	PhaseThreshold Phase = "threshold"
	PhasePreHash   Phase = "prehash"
	PhaseSync      Phase = "sync"
	PhaseScrub     Phase = "scrub"
	PhaseSmart     Phase = "smart"
	PhaseSpindown  Phase = "spindown"
	PhaseFinalize  Phase = "finalize"
)

// EventStatus represents the status of a phase transition.
type EventStatus string

const (
	StatusStarted   EventStatus = "started"
	StatusSucceeded EventStatus = "succeeded"
	StatusFailed    EventStatus = "failed"
	StatusSkipped   EventStatus = "skipped"
	StatusAborted   EventStatus = "aborted"
)

// RunEvent is one timestamped entry in a run's event sequence.
type RunEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Phase     Phase       `json:"phase"`
	Status    EventStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
}

// Outcome is the terminal classification of a run. Set exactly once.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeAbortedByThreshold Outcome = "aborted_by_threshold"
	OutcomeAbortedByError     Outcome = "aborted_by_error"
	OutcomeResyncExhausted    Outcome = "resync_exhausted"
)

// Terminal returns true for every defined outcome; an empty Outcome means
// the run is still in flight.
func (o Outcome) Terminal() bool {
	return o != ""
}

// ExitCode maps an outcome to the process exit code: 0 for a completed run,
// 2 for a threshold abort, 1 for any failure.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeCompleted:
		return 0
	case OutcomeAbortedByThreshold:
		return 2
	default:
		return 1
	}
}
