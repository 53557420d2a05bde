package model

// DiffResult holds the classified counts from a diff or post-sync check.
// Immutable once finalized by the classifier.
type DiffResult struct {
	Equal    int `json:"equal"`
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Updated  int `json:"updated"`
	Moved    int `json:"moved"`
	Copied   int `json:"copied"`
	Restored int `json:"restored"`

	ResyncRecommended bool `json:"resync_recommended"`
	HasErrors         bool `json:"has_errors"`
}

// Changed returns the number of entries that differ from the synced state.
func (d DiffResult) Changed() int {
	return d.Added + d.Removed + d.Updated + d.Moved + d.Copied + d.Restored
}

// ThresholdAction is the decision taken after evaluating a diff against
// the configured limits.
type ThresholdAction string

const (
	ActionProceed      ThresholdAction = "proceed"
	ActionAbortAdded   ThresholdAction = "abort_added"
	ActionAbortRemoved ThresholdAction = "abort_removed"
)

// ThresholdDecision carries the action plus the triggering count and the
// configured limit, for reporting.
type ThresholdDecision struct {
	Action ThresholdAction `json:"action"`
	Count  int             `json:"count,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Abort returns true if the decision halts the run.
func (d ThresholdDecision) Abort() bool {
	return d.Action != ActionProceed
}
