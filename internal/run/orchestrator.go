// Package run drives a full maintenance run through its phases: sanity
// check, diff, threshold evaluation, sync with bounded re-sync, scrub and
// the post-run extras. Exactly one run is active at a time.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/snapguard-project/snapguard/internal/arrayconf"
	"github.com/snapguard-project/snapguard/internal/classify"
	"github.com/snapguard-project/snapguard/internal/invoke"
	"github.com/snapguard-project/snapguard/internal/lock"
	"github.com/snapguard-project/snapguard/internal/notify"
	"github.com/snapguard-project/snapguard/internal/report"
	"github.com/snapguard-project/snapguard/internal/runlog"
	"github.com/snapguard-project/snapguard/internal/scrub"
	"github.com/snapguard-project/snapguard/internal/spindown"
	"github.com/snapguard-project/snapguard/internal/threshold"
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/logging"
	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/progress"
	"github.com/snapguard-project/snapguard/pkg/uuidutil"
)

// progressInterval throttles live progress notifications.
const progressInterval = time.Minute

// notifyTimeout bounds report delivery after the run context is gone.
const notifyTimeout = 2 * time.Minute

// Invoker runs one array tool subcommand. Satisfied by invoke.Runner and by
// test fakes.
type Invoker interface {
	Run(ctx context.Context, subcommand string, args []string, sink invoke.Sink) (invoke.Result, error)
}

// RawLog receives the raw tool output for archival. Satisfied by
// runlog.Writer.
type RawLog interface {
	invoke.Sink
	Phase(phase model.Phase, status model.EventStatus)
	Close() error
}

// Options are the per-invocation knobs.
type Options struct {
	// Force skips the pre-flight aborts: sanity failures and threshold
	// violations are reported but do not stop the run.
	Force bool
}

// Orchestrator owns one run at a time.
type Orchestrator struct {
	cfg      *config.Config
	invoker  Invoker
	locks    *lock.Manager
	dispatch *notify.Dispatcher
	log      *logging.Logger

	// openRawLog is swappable for tests.
	openRawLog func() (RawLog, error)
	// writeRecord persists the canonical run record.
	writeRecord func(*model.Report) error
	now         func() time.Time
}

// New wires an orchestrator from configuration.
func New(cfg *config.Config, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg: cfg,
		invoker: &invoke.Runner{
			Binary:     cfg.Array.Binary,
			ConfigFile: cfg.Array.ConfigFile,
			Nice:       cfg.Array.Nice,
			Log:        log,
		},
		locks:    lock.NewManager(cfg.Lock.Dir),
		dispatch: notify.NewDispatcher(cfg.Notifications, log),
		log:      log,
		openRawLog: func() (RawLog, error) {
			return runlog.Open(cfg.Logs)
		},
		writeRecord: func(r *model.Report) error {
			return runlog.WriteRecord(cfg.Logs, r)
		},
		now: time.Now,
	}
}

// Execute performs one full maintenance run and returns the sealed report.
// The report is always non-nil; its Outcome decides the process exit code.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) *model.Report {
	runID := uuidutil.NewV4()
	b := report.NewBuilder(runID)
	log := o.log.WithFields(map[string]any{"run_id": runID})

	log.Info("run starting", map[string]any{"force": opts.Force})
	b.Record(model.PhaseInit, model.StatusStarted, "")

	rec, err := o.locks.Acquire(runID)
	if err != nil {
		b.Record(model.PhaseInit, model.StatusFailed, err.Error())
		return o.terminate(ctx, b, model.OutcomeAbortedByError, err, log)
	}
	defer func() {
		if relErr := o.locks.Release(runID); relErr != nil {
			log.Warn("lock release failed", map[string]any{"error": relErr.Error()})
		}
	}()
	log.Debug("lock acquired", map[string]any{"pid": rec.PID})

	raw, err := o.openRawLog()
	if err != nil {
		b.Record(model.PhaseInit, model.StatusFailed, err.Error())
		return o.terminate(ctx, b, model.OutcomeAbortedByError, err, log)
	}
	defer raw.Close()
	b.Record(model.PhaseInit, model.StatusSucceeded, "")

	r := o.phases(ctx, opts, b, raw, log)
	return r
}

// phases runs everything between lock acquisition and finalization.
func (o *Orchestrator) phases(ctx context.Context, opts Options, b *report.Builder, raw RawLog, log *logging.Logger) *model.Report {
	// SANITY
	facts, err := o.sanity(ctx, b, raw, log, opts.Force)
	if err != nil {
		return o.terminate(ctx, b, model.OutcomeAbortedByError, err, log)
	}

	// TOUCH
	if facts != nil && facts.ZeroSubSecond > 0 {
		if err := o.touch(ctx, b, raw, log, facts.ZeroSubSecond); err != nil {
			if !opts.Force {
				return o.terminate(ctx, b, model.OutcomeAbortedByError, err, log)
			}
			log.Warn("touch failed, forced past", map[string]any{"error": err.Error()})
		}
	} else {
		b.Record(model.PhaseTouch, model.StatusSkipped, "no zero sub-second timestamps")
	}

	// DIFF
	diff, err := o.diff(ctx, b, raw, log)
	if err != nil {
		return o.terminate(ctx, b, model.OutcomeAbortedByError, err, log)
	}
	b.SetDiff(diff)

	// THRESHOLD
	b.Record(model.PhaseThreshold, model.StatusStarted, "")
	decision := threshold.Evaluate(diff, o.cfg.Array.Thresholds, opts.Force)
	b.SetDecision(decision)
	if decision.Abort() {
		detail := fmt.Sprintf("%s: %d exceeds %d", decision.Action, decision.Count, decision.Limit)
		b.Record(model.PhaseThreshold, model.StatusAborted, detail)
		raw.Phase(model.PhaseThreshold, model.StatusAborted)
		log.Warn("run aborted by threshold", map[string]any{
			"action": string(decision.Action), "count": decision.Count, "limit": decision.Limit,
		})
		return o.terminate(ctx, b, model.OutcomeAbortedByThreshold, nil, log)
	}
	b.Record(model.PhaseThreshold, model.StatusSucceeded, "")

	// SYNC, possibly skipped when the array is already in sync
	syncNeeded := diff.Changed() > 0 || diff.ResyncRecommended || opts.Force ||
		(facts != nil && facts.SyncInProgress)
	if syncNeeded {
		if outcome, err := o.syncWithResync(ctx, b, raw, log); err != nil {
			return o.terminate(ctx, b, outcome, err, log)
		}
	} else {
		b.Record(model.PhaseSync, model.StatusSkipped, "array already in sync")
		log.Info("sync skipped, no changes")
	}

	// SCRUB, never fatal past this point
	o.scrub(ctx, b, raw, log)

	// SMART plus spindown, best effort
	smart := o.smart(ctx, b, raw, log)
	o.spindown(ctx, b, smart, log)

	return o.terminate(ctx, b, model.OutcomeCompleted, nil, log)
}

// sanity collects array status facts and checks the array layout. Returns
// nil facts when forced past a broken status output.
func (o *Orchestrator) sanity(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger, force bool) (*model.StatusFacts, error) {
	b.Record(model.PhaseSanity, model.StatusStarted, "")
	raw.Phase(model.PhaseSanity, model.StatusStarted)

	layout, err := arrayconf.Parse(o.cfg.Array.ConfigFile)
	if err != nil {
		b.Record(model.PhaseSanity, model.StatusFailed, err.Error())
		return nil, err
	}
	if err := layout.CheckSanity(); err != nil {
		if !force {
			b.Record(model.PhaseSanity, model.StatusFailed, err.Error())
			return nil, err
		}
		log.Warn("array layout check failed, forced past", map[string]any{"error": err.Error()})
	}

	cls := classify.NewStatus()
	res, err := o.invoker.Run(ctx, "status", nil, invoke.MultiSink(raw, cls))
	if err != nil {
		b.Record(model.PhaseSanity, model.StatusFailed, err.Error())
		return nil, err
	}
	facts, err := cls.Finalize(res.ExitCode)
	if err != nil {
		if !force {
			b.Record(model.PhaseSanity, model.StatusFailed, err.Error())
			return nil, err
		}
		log.Warn("status output unrecognized, forced past", map[string]any{"error": err.Error()})
		b.Record(model.PhaseSanity, model.StatusSucceeded, "forced past unrecognized status output")
		return nil, nil
	}
	b.SetStatus(facts)

	if facts.ErrorCount > 0 && !force {
		err := errclass.ErrArrayUnhealthy.WithMessagef("array reports %d errors", facts.ErrorCount)
		b.Record(model.PhaseSanity, model.StatusFailed, err.Error())
		return nil, err
	}

	b.Record(model.PhaseSanity, model.StatusSucceeded, "")
	raw.Phase(model.PhaseSanity, model.StatusSucceeded)
	return &facts, nil
}

func (o *Orchestrator) touch(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger, count int) error {
	b.Record(model.PhaseTouch, model.StatusStarted, fmt.Sprintf("%d files", count))
	raw.Phase(model.PhaseTouch, model.StatusStarted)

	res, err := o.invoker.Run(ctx, "touch", nil, raw)
	if err != nil {
		b.Record(model.PhaseTouch, model.StatusFailed, err.Error())
		return err
	}
	if res.ExitCode != 0 {
		err := errclass.ErrProcessExec.WithMessagef("touch exited with code %d", res.ExitCode)
		b.Record(model.PhaseTouch, model.StatusFailed, err.Error())
		return err
	}

	b.Record(model.PhaseTouch, model.StatusSucceeded, "")
	raw.Phase(model.PhaseTouch, model.StatusSucceeded)
	log.Info("timestamps touched", map[string]any{"files": count})
	return nil
}

func (o *Orchestrator) diff(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger) (model.DiffResult, error) {
	b.Record(model.PhaseDiff, model.StatusStarted, "")
	raw.Phase(model.PhaseDiff, model.StatusStarted)

	cls := classify.NewDiff()
	res, err := o.invoker.Run(ctx, "diff", nil, invoke.MultiSink(raw, cls))
	if err != nil {
		b.Record(model.PhaseDiff, model.StatusFailed, err.Error())
		return model.DiffResult{}, err
	}
	diff, err := cls.Finalize(res.ExitCode)
	if err != nil {
		b.Record(model.PhaseDiff, model.StatusFailed, err.Error())
		return model.DiffResult{}, err
	}

	detail := fmt.Sprintf("%d changed of %d entries", diff.Changed(), diff.Changed()+diff.Equal)
	b.Record(model.PhaseDiff, model.StatusSucceeded, detail)
	raw.Phase(model.PhaseDiff, model.StatusSucceeded)
	log.Info("diff classified", map[string]any{
		"added": diff.Added, "removed": diff.Removed, "updated": diff.Updated,
		"moved": diff.Moved, "copied": diff.Copied, "restored": diff.Restored,
	})
	return diff, nil
}

// syncWithResync runs the sync phase, preceded by the optional content
// pre-hash and followed by bounded automatic re-sync passes. The initial
// sync counts as the first attempt.
func (o *Orchestrator) syncWithResync(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger) (model.Outcome, error) {
	if o.cfg.Array.Sync.PreHash {
		o.prehash(ctx, b, raw, log)
	} else {
		b.Record(model.PhasePreHash, model.StatusSkipped, "")
	}

	maxAttempts := 1
	if o.cfg.Array.Sync.AutoSync.Enabled {
		maxAttempts = o.cfg.Array.Sync.AutoSync.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
	}

	started := o.now()
	// One throttle window spans all attempts of the phase.
	progSink := o.progressSink(ctx, model.PhaseSync)
	for attempt := 1; ; attempt++ {
		detail := ""
		if attempt > 1 {
			detail = fmt.Sprintf("re-sync attempt %d of %d", attempt, maxAttempts)
		}
		b.Record(model.PhaseSync, model.StatusStarted, detail)
		raw.Phase(model.PhaseSync, model.StatusStarted)

		cls := classify.NewSync()
		sink := invoke.MultiSink(raw, cls, progSink)
		res, err := o.invoker.Run(ctx, "sync", nil, sink)
		if err != nil {
			b.Record(model.PhaseSync, model.StatusFailed, err.Error())
			return model.OutcomeAbortedByError, err
		}

		assessment := cls.Finalize(res.ExitCode)
		switch {
		case !assessment.Failed && !assessment.ResyncRecommended:
			b.MarkSync(o.now().Sub(started))
			b.Record(model.PhaseSync, model.StatusSucceeded, "")
			raw.Phase(model.PhaseSync, model.StatusSucceeded)
			log.Info("sync completed", map[string]any{"attempts": attempt})
			return "", nil

		case assessment.ResyncRecommended && attempt < maxAttempts:
			b.Record(model.PhaseSync, model.StatusFailed, "another pass requested")
			log.Warn("re-sync requested", map[string]any{"attempt": attempt})
			continue

		case assessment.ResyncRecommended:
			err := errclass.ErrRetryExhausted.WithMessagef(
				"array still out of sync after %d attempts", attempt)
			b.Record(model.PhaseSync, model.StatusFailed, err.Error())
			raw.Phase(model.PhaseSync, model.StatusFailed)
			return model.OutcomeResyncExhausted, err

		default:
			err := errclass.ErrProcessExec.WithMessagef(
				"sync exited with code %d: %s", res.ExitCode, firstOr(assessment.Unexpected, "no stderr detail"))
			b.Record(model.PhaseSync, model.StatusFailed, err.Error())
			raw.Phase(model.PhaseSync, model.StatusFailed)
			return model.OutcomeAbortedByError, err
		}
	}
}

// prehash verifies content file hashes before syncing. Failures are
// reported but never stop the run; the sync itself re-validates.
func (o *Orchestrator) prehash(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger) {
	b.Record(model.PhasePreHash, model.StatusStarted, "")
	raw.Phase(model.PhasePreHash, model.StatusStarted)

	res, err := o.invoker.Run(ctx, "hash", nil, invoke.MultiSink(raw, o.progressSink(ctx, model.PhasePreHash)))
	switch {
	case err != nil:
		b.Record(model.PhasePreHash, model.StatusFailed, err.Error())
		log.Warn("pre-hash failed", map[string]any{"error": err.Error()})
	case res.ExitCode != 0:
		detail := fmt.Sprintf("exit code %d", res.ExitCode)
		b.Record(model.PhasePreHash, model.StatusFailed, detail)
		log.Warn("pre-hash failed", map[string]any{"exit_code": res.ExitCode})
	default:
		b.Record(model.PhasePreHash, model.StatusSucceeded, "")
		raw.Phase(model.PhasePreHash, model.StatusSucceeded)
	}
}

// scrub runs the verification passes. A scrub failure is recorded but never
// downgrades a run whose sync already completed.
func (o *Orchestrator) scrub(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger) {
	policy := o.cfg.Array.Scrub
	if !scrub.Enabled(policy) {
		b.Record(model.PhaseScrub, model.StatusSkipped, "")
		return
	}

	params := scrub.Plan(policy)
	b.SetScrub(params)
	b.Record(model.PhaseScrub, model.StatusStarted,
		fmt.Sprintf("%d%% of blocks older than %d days", params.Percent, params.MinAgeDays))
	raw.Phase(model.PhaseScrub, model.StatusStarted)

	sink := invoke.MultiSink(raw, o.progressSink(ctx, model.PhaseScrub))

	// Newly synced blocks are verified first, then the aged slice.
	if params.IncludeNew {
		if res, err := o.invoker.Run(ctx, "scrub", scrub.NewBlockArgs(), sink); err != nil || res.ExitCode != 0 {
			b.Record(model.PhaseScrub, model.StatusFailed, "new-block pass failed")
			log.Warn("new-block scrub pass failed")
			return
		}
	}

	res, err := o.invoker.Run(ctx, "scrub", scrub.Args(params), sink)
	switch {
	case err != nil:
		b.Record(model.PhaseScrub, model.StatusFailed, err.Error())
		log.Warn("scrub failed", map[string]any{"error": err.Error()})
		return
	case res.ExitCode != 0:
		b.Record(model.PhaseScrub, model.StatusFailed, fmt.Sprintf("exit code %d", res.ExitCode))
		log.Warn("scrub failed", map[string]any{"exit_code": res.ExitCode})
		return
	}

	b.MarkScrub()
	b.Record(model.PhaseScrub, model.StatusSucceeded, "")
	raw.Phase(model.PhaseScrub, model.StatusSucceeded)
	log.Info("scrub completed", map[string]any{"percent": params.Percent})
}

// smart collects the drive health table. Best effort.
func (o *Orchestrator) smart(ctx context.Context, b *report.Builder, raw RawLog, log *logging.Logger) *model.SmartReport {
	if !o.cfg.Array.Smart {
		b.Record(model.PhaseSmart, model.StatusSkipped, "")
		return nil
	}

	b.Record(model.PhaseSmart, model.StatusStarted, "")
	cls := classify.NewSmart()
	res, err := o.invoker.Run(ctx, "smart", nil, invoke.MultiSink(raw, cls))
	if err != nil {
		b.Record(model.PhaseSmart, model.StatusFailed, err.Error())
		log.Warn("smart collection failed", map[string]any{"error": err.Error()})
		return nil
	}
	smartReport, err := cls.Finalize(res.ExitCode)
	if err != nil {
		b.Record(model.PhaseSmart, model.StatusFailed, err.Error())
		log.Warn("smart output unrecognized", map[string]any{"error": err.Error()})
		return nil
	}

	b.SetSmart(smartReport)
	b.Record(model.PhaseSmart, model.StatusSucceeded,
		fmt.Sprintf("%d%% year failure probability", smartReport.YearFailurePercent))
	return &smartReport
}

func (o *Orchestrator) spindown(ctx context.Context, b *report.Builder, smart *model.SmartReport, log *logging.Logger) {
	if !o.cfg.Spindown.Enabled {
		b.Record(model.PhaseSpindown, model.StatusSkipped, "")
		return
	}
	n := spindown.Spin(ctx, o.cfg.Spindown, smart, log)
	b.Record(model.PhaseSpindown, model.StatusSucceeded, fmt.Sprintf("%d drives", n))
}

// terminate seals the report, persists the run record and dispatches the
// notifications. Every terminal path goes through here.
func (o *Orchestrator) terminate(ctx context.Context, b *report.Builder, outcome model.Outcome, runErr error, log *logging.Logger) *model.Report {
	b.Record(model.PhaseFinalize, model.StatusStarted, "")
	r := b.Finalize(outcome, runErr)

	if err := o.writeRecord(r); err != nil {
		log.Warn("run record not written", map[string]any{"error": err.Error()})
	}

	// A cancelled run still delivers its partial report; delivery gets its
	// own deadline detached from the run context.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	o.dispatch.Dispatch(notifyCtx, r)

	fields := map[string]any{"outcome": string(outcome), "elapsed": r.Elapsed().String()}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}
	if outcome == model.OutcomeCompleted {
		log.Info("run finished", fields)
	} else {
		log.Error("run finished", fields)
	}
	return r
}

// progressSink converts recognized progress lines into throttled live
// notifications. Other lines are ignored here; the raw log keeps them.
func (o *Orchestrator) progressSink(ctx context.Context, phase model.Phase) invoke.Sink {
	throttled := progress.Throttle(func(p string, u progress.Update) {
		o.dispatch.Progress(ctx, p, u)
	}, progressInterval, o.now)
	return &progressLines{phase: string(phase), cb: throttled}
}

type progressLines struct {
	phase string
	cb    progress.Callback
}

func (p *progressLines) StdoutLine(line string) {
	if u, ok := classify.ParseProgress(line); ok {
		p.cb(p.phase, u)
	}
}

func (p *progressLines) StderrLine(string) {}

func firstOr(lines []string, fallback string) string {
	if len(lines) > 0 {
		return lines[0]
	}
	return fallback
}
