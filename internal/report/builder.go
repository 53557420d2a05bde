// Package report assembles the consolidated record of one run and renders
// the human-readable summary delivered through the notification channels.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/timeutil"
)

// Builder accumulates run events in order and seals into an immutable
// report at the first terminal outcome. Recording after finalization is a
// programming error and panics.
type Builder struct {
	mu     sync.Mutex
	report model.Report
	sealed bool
	now    func() time.Time
}

// NewBuilder starts a report for the given run.
func NewBuilder(runID string) *Builder {
	return newBuilder(runID, time.Now)
}

func newBuilder(runID string, now func() time.Time) *Builder {
	return &Builder{
		report: model.Report{
			RunID:     runID,
			StartedAt: now().UTC(),
		},
		now: now,
	}
}

// Record appends one event to the run's event sequence.
func (b *Builder) Record(phase model.Phase, status model.EventStatus, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		panic("report: record after finalize")
	}
	b.report.Events = append(b.report.Events, model.RunEvent{
		Timestamp: b.now().UTC(),
		Phase:     phase,
		Status:    status,
		Detail:    detail,
	})
}

// SetDiff attaches the classified diff counts.
func (b *Builder) SetDiff(d model.DiffResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.Diff = &d
}

// SetDecision attaches the threshold decision.
func (b *Builder) SetDecision(d model.ThresholdDecision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.Decision = &d
}

// SetScrub attaches the scrub parameters used by the run.
func (b *Builder) SetScrub(p model.ScrubParams) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.Scrub = &p
}

// SetStatus attaches the classified array status facts.
func (b *Builder) SetStatus(s model.StatusFacts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.Status = &s
}

// SetSmart attaches the classified SMART report.
func (b *Builder) SetSmart(s model.SmartReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.Smart = &s
}

// MarkSync records that the sync phase ran and how long it took.
func (b *Builder) MarkSync(elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.SyncRan = true
	b.report.SyncElapsed = timeutil.FormatDelta(elapsed)
}

// MarkScrub records that the scrub phase ran.
func (b *Builder) MarkScrub() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustOpen()
	b.report.ScrubRan = true
}

func (b *Builder) mustOpen() {
	if b.sealed {
		panic("report: mutate after finalize")
	}
}

// Finalize seals the report with the terminal outcome. Called exactly once;
// a second call panics. runErr may be nil for a completed run.
func (b *Builder) Finalize(outcome model.Outcome, runErr error) *model.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		panic("report: finalize twice")
	}
	b.sealed = true
	b.report.FinishedAt = b.now().UTC()
	b.report.Outcome = outcome
	if runErr != nil {
		b.report.Error = runErr.Error()
	}
	r := b.report
	return &r
}

// Sealed reports whether the builder has been finalized.
func (b *Builder) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

// Snapshot returns a copy of the report as built so far. Used for partial
// reports on cancellation paths before finalization.
func (b *Builder) Snapshot() model.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.report
}

// Summary renders the human-readable run summary from a sealed report. The
// same event sequence backs both this text and the canonical JSON record.
func Summary(r *model.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run %s %s in %s\n", r.RunID, outcomeVerb(r.Outcome), timeutil.FormatDelta(r.Elapsed()))
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}
	sb.WriteString("\n")

	if r.Diff != nil {
		d := r.Diff
		fmt.Fprintf(&sb, "Diff: %d added, %d removed, %d updated, %d moved, %d copied, %d restored (%d equal)\n",
			d.Added, d.Removed, d.Updated, d.Moved, d.Copied, d.Restored, d.Equal)
	}
	if r.Decision != nil && r.Decision.Abort() {
		what := "added"
		if r.Decision.Action == model.ActionAbortRemoved {
			what = "removed"
		}
		fmt.Fprintf(&sb, "Threshold: %d files %s exceeds limit of %d\n", r.Decision.Count, what, r.Decision.Limit)
	}
	if r.SyncRan {
		fmt.Fprintf(&sb, "Sync: completed in %s\n", r.SyncElapsed)
	}
	if r.ScrubRan && r.Scrub != nil {
		fmt.Fprintf(&sb, "Scrub: verified %d%% of blocks older than %d days\n", r.Scrub.Percent, r.Scrub.MinAgeDays)
	}
	if r.Status != nil && r.Status.Scrub != nil {
		s := r.Status.Scrub
		fmt.Fprintf(&sb, "Coverage: %d%% of the array not yet verified (oldest block %d days)\n",
			s.UnscrubbedPercent, s.OldestDays)
	}
	if r.Smart != nil {
		fmt.Fprintf(&sb, "SMART: %d%% chance of a drive failure within a year\n", r.Smart.YearFailurePercent)
	}

	sb.WriteString("\nPhases:\n")
	for _, ev := range r.Events {
		line := fmt.Sprintf("  %s  %-9s %s", ev.Timestamp.Format("15:04:05"), ev.Phase, ev.Status)
		if ev.Detail != "" {
			line += ": " + ev.Detail
		}
		sb.WriteString(line + "\n")
	}

	return sb.String()
}

// Subject renders the one-line notification subject for a sealed report.
func Subject(r *model.Report) string {
	return fmt.Sprintf("Array maintenance %s (run %s)", outcomeVerb(r.Outcome), r.RunID)
}

func outcomeVerb(o model.Outcome) string {
	switch o {
	case model.OutcomeCompleted:
		return "completed"
	case model.OutcomeAbortedByThreshold:
		return "aborted by threshold"
	case model.OutcomeResyncExhausted:
		return "gave up after repeated re-syncs"
	case model.OutcomeAbortedByError:
		return "failed"
	default:
		return "in progress"
	}
}
