package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapguard-project/snapguard/internal/invoke"
	"github.com/snapguard-project/snapguard/internal/lock"
	"github.com/snapguard-project/snapguard/internal/notify"
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/logging"
	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/progress"
)

// response scripts one invocation of a subcommand.
type response struct {
	stdout []string
	stderr []string
	exit   int
	err    error
}

type invocation struct {
	sub  string
	args []string
}

// fakeInvoker pops scripted responses per subcommand, in order.
type fakeInvoker struct {
	responses map[string][]response
	calls     []invocation
}

func (f *fakeInvoker) Run(_ context.Context, sub string, args []string, sink invoke.Sink) (invoke.Result, error) {
	f.calls = append(f.calls, invocation{sub: sub, args: args})

	queue := f.responses[sub]
	if len(queue) == 0 {
		return invoke.Result{}, fmt.Errorf("unscripted subcommand %q", sub)
	}
	r := queue[0]
	f.responses[sub] = queue[1:]

	for _, line := range r.stdout {
		sink.StdoutLine(line)
	}
	for _, line := range r.stderr {
		sink.StderrLine(line)
	}
	if r.err != nil {
		return invoke.Result{}, r.err
	}
	return invoke.Result{ExitCode: r.exit}, nil
}

func (f *fakeInvoker) subcommands() []string {
	subs := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		subs = append(subs, c.sub)
	}
	return subs
}

type fakeRawLog struct {
	lines  []string
	closed bool
}

func (f *fakeRawLog) StdoutLine(line string) { f.lines = append(f.lines, "out: "+line) }
func (f *fakeRawLog) StderrLine(line string) { f.lines = append(f.lines, "err: "+line) }
func (f *fakeRawLog) Phase(p model.Phase, s model.EventStatus) {
	f.lines = append(f.lines, fmt.Sprintf("phase: %s %s", p, s))
}
func (f *fakeRawLog) Close() error {
	f.closed = true
	return nil
}

type captureChannel struct {
	reports []*model.Report
	ctxErrs []error
	prog    []progress.Update
}

func (c *captureChannel) Name() string { return "capture" }
func (c *captureChannel) Send(ctx context.Context, r *model.Report) error {
	c.reports = append(c.reports, r)
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	return nil
}
func (c *captureChannel) SendProgress(_ context.Context, _ string, u progress.Update) error {
	c.prog = append(c.prog, u)
	return nil
}

var statusHealthy = []string{
	"   8475      45      383   0.8    2748    961  74% d1",
	"The 55% of the array is not scrubbed.",
}

var statusZeroSubSec = []string{
	"   8475      45      383   0.8    2748    961  74% d1",
	"You have 3 files with zero sub-second timestamp.",
}

var diffNoChanges = []string{" 8475 equal", " 0 added", " 0 removed", " 0 updated"}

var diffSomeChanges = []string{" 8471 equal", " 4 added", " 1 removed", " 2 updated"}

func diffWithAdded(n int) []string {
	return []string{" 100 equal", fmt.Sprintf(" %d added", n), " 0 removed"}
}

type testEnv struct {
	orch    *Orchestrator
	invoker *fakeInvoker
	raw     *fakeRawLog
	channel *captureChannel
	records []*model.Report
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()

	// A minimal but existing array layout for the sanity check.
	content := filepath.Join(dir, "content")
	parity := filepath.Join(dir, "parity")
	require.NoError(t, os.WriteFile(content, nil, 0o644))
	require.NoError(t, os.WriteFile(parity, nil, 0o644))
	arrayCfg := filepath.Join(dir, "snapraid.conf")
	require.NoError(t, os.WriteFile(arrayCfg,
		[]byte("content "+content+"\nparity "+parity+"\n"), 0o644))

	cfg := config.Default()
	cfg.Array.ConfigFile = arrayCfg
	cfg.Lock.Dir = filepath.Join(dir, "lock")
	cfg.Logs.Dir = filepath.Join(dir, "logs")
	cfg.Array.Scrub.Enabled = false
	cfg.Array.Smart = false
	cfg.Spindown.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	log := logging.NewLogger(logging.LevelError)
	log.SetOutput(io.Discard)

	env := &testEnv{
		invoker: &fakeInvoker{responses: map[string][]response{}},
		raw:     &fakeRawLog{},
		channel: &captureChannel{},
	}
	env.orch = New(cfg, log)
	env.orch.invoker = env.invoker
	env.orch.dispatch = notify.NewDispatcherWith(log, env.channel)
	env.orch.openRawLog = func() (RawLog, error) { return env.raw, nil }
	env.orch.writeRecord = func(r *model.Report) error {
		env.records = append(env.records, r)
		return nil
	}
	return env
}

func (e *testEnv) script(sub string, r response) {
	e.invoker.responses[sub] = append(e.invoker.responses[sub], r)
}

func TestExecute_NoChanges_SyncSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffNoChanges})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.Equal(t, 0, r.Outcome.ExitCode())
	assert.False(t, r.SyncRan)
	assert.Equal(t, []string{"status", "diff"}, env.invoker.subcommands())
	assert.True(t, env.raw.closed)
}

func TestExecute_ChangesTriggerSync(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.True(t, r.SyncRan)
	require.NotNil(t, r.Diff)
	assert.Equal(t, 4, r.Diff.Added)
	assert.Equal(t, []string{"status", "diff", "sync"}, env.invoker.subcommands())
}

func TestExecute_ThresholdAbort(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Thresholds.Added = 10
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffWithAdded(11)})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeAbortedByThreshold, r.Outcome)
	assert.Equal(t, 2, r.Outcome.ExitCode())
	assert.False(t, r.SyncRan)
	require.NotNil(t, r.Decision)
	assert.Equal(t, model.ActionAbortAdded, r.Decision.Action)
	assert.NotContains(t, env.invoker.subcommands(), "sync")
	require.Len(t, env.channel.reports, 1, "abort still dispatches the report")

	var thresholdEvents []model.EventStatus
	for _, ev := range r.Events {
		if ev.Phase == model.PhaseThreshold {
			thresholdEvents = append(thresholdEvents, ev.Status)
		}
	}
	assert.Equal(t, []model.EventStatus{model.StatusStarted, model.StatusAborted}, thresholdEvents,
		"threshold phase records entry and exit")
}

func TestExecute_ForceBypassesThreshold(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Thresholds.Added = 10
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffWithAdded(11)})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{Force: true})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.True(t, r.SyncRan)
}

func TestExecute_TouchRunsOnZeroSubSecond(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusZeroSubSec})
	env.script("touch", response{})
	env.script("diff", response{stdout: diffNoChanges})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.Equal(t, []string{"status", "touch", "diff"}, env.invoker.subcommands())
}

func TestExecute_ResyncLoopRecovers(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Sync.AutoSync = config.AutoSyncConfig{Enabled: true, MaxAttempts: 3}
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{exit: 1, stderr: []string{
		"Unexpected time change at file 'a'",
		"Rerun the sync command when finished.",
	}})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.True(t, r.SyncRan)
	assert.Equal(t, []string{"status", "diff", "sync", "sync"}, env.invoker.subcommands())
}

func TestExecute_ResyncExhausted(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Sync.AutoSync = config.AutoSyncConfig{Enabled: true, MaxAttempts: 2}
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	resync := response{exit: 1, stderr: []string{"Rerun the sync command when finished."}}
	env.script("sync", resync)
	env.script("sync", resync)

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeResyncExhausted, r.Outcome)
	assert.Equal(t, 1, r.Outcome.ExitCode())
	assert.Contains(t, r.Error, "2 attempts")
	// The initial sync counts as the first attempt.
	assert.Equal(t, []string{"status", "diff", "sync", "sync"}, env.invoker.subcommands())
}

func TestExecute_ResyncDisabledIsFailure(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Sync.AutoSync.Enabled = false
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{exit: 1, stderr: []string{"Rerun the sync command when finished."}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeResyncExhausted, r.Outcome)
	assert.Equal(t, []string{"status", "diff", "sync"}, env.invoker.subcommands())
}

func TestExecute_SyncUnexpectedFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{exit: 1, stderr: []string{"DANGER! parity out of date"}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeAbortedByError, r.Outcome)
	assert.Contains(t, r.Error, "parity out of date")
	require.Len(t, env.channel.reports, 1)
}

func TestExecute_ScrubFailureKeepsCompleted(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Scrub = config.ScrubConfig{Enabled: true, CheckPercent: 12, MinAgeDays: 10}
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{})
	env.script("scrub", response{exit: 1, stderr: []string{"scrub error"}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.True(t, r.SyncRan)
	assert.False(t, r.ScrubRan)
}

func TestExecute_ScrubArgsAndNewPass(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Scrub = config.ScrubConfig{Enabled: true, CheckPercent: 12, MinAgeDays: 10, ScrubNew: true}
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffNoChanges})
	env.script("scrub", response{})
	env.script("scrub", response{})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.True(t, r.ScrubRan)
	calls := env.invoker.calls
	require.Len(t, calls, 4)
	// New blocks are scrubbed before the percent-bounded pass.
	assert.Equal(t, []string{"-p", "new"}, calls[2].args)
	assert.Equal(t, []string{"-p", "12", "-o", "10"}, calls[3].args)
}

func TestExecute_PreHashFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Sync.PreHash = true
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("hash", response{exit: 1})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.Equal(t, []string{"status", "diff", "hash", "sync"}, env.invoker.subcommands())
}

func TestExecute_DiffParseErrorAborts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{exit: 1, stdout: []string{"garbage"}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeAbortedByError, r.Outcome)
	assert.Contains(t, r.Error, "E_PARSE")
}

func TestExecute_UnhealthyArrayAborts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: []string{
		"DANGER! In the array there are 12 errors!",
	}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeAbortedByError, r.Outcome)
	assert.Contains(t, r.Error, "E_ARRAY_UNHEALTHY")
	assert.NotContains(t, env.invoker.subcommands(), "diff")
}

func TestExecute_ForcePastUnhealthyArray(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: []string{
		"DANGER! In the array there are 12 errors!",
	}})
	env.script("diff", response{stdout: diffNoChanges})

	r := env.orch.Execute(context.Background(), Options{Force: true})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
}

func TestExecute_LockHeldFailsFast(t *testing.T) {
	env := newTestEnv(t, nil)
	held, err := lock.NewManager(env.orch.cfg.Lock.Dir).Acquire("other-run")
	require.NoError(t, err)
	require.NotNil(t, held)

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeAbortedByError, r.Outcome)
	assert.Contains(t, r.Error, "E_LOCK_HELD")
	assert.Empty(t, env.invoker.subcommands(), "no subcommand runs without the lock")
	require.Len(t, env.channel.reports, 1, "terminal report still dispatched")
}

func TestExecute_LockReleasedAfterRun(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffNoChanges})

	env.orch.Execute(context.Background(), Options{})

	rec, err := env.orch.locks.Status()
	require.NoError(t, err)
	assert.Nil(t, rec, "lock must not outlive the run")
}

func TestExecute_CancellationFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{err: context.Canceled})

	// The run context is already cancelled by the time the diff aborts,
	// as after a user interrupt.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := env.orch.Execute(ctx, Options{})

	assert.Equal(t, model.OutcomeAbortedByError, r.Outcome)
	assert.Equal(t, 1, r.Outcome.ExitCode())
	require.Len(t, env.channel.reports, 1, "partial report dispatched on cancellation")
	require.Len(t, env.channel.ctxErrs, 1)
	assert.NoError(t, env.channel.ctxErrs[0], "delivery context must outlive the run context")
}

func TestExecute_SmartCollectedAndSpindown(t *testing.T) {
	hdparmDir := t.TempDir()
	hdparm := filepath.Join(hdparmDir, "hdparm")
	require.NoError(t, os.WriteFile(hdparm, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	env := newTestEnv(t, func(c *config.Config) {
		c.Array.Smart = true
		c.Spindown = config.SpindownConfig{Enabled: true, Binary: hdparm, Drives: "all"}
	})
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffNoChanges})
	env.script("smart", response{stdout: []string{
		"  31   365     0   5%   4.0   WD-XYZ   /dev/sda   d1",
		"The FP of the array failing in the next year is 7%.",
	}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	require.NotNil(t, r.Smart)
	assert.Equal(t, 7, r.Smart.YearFailurePercent)
	require.Len(t, r.Smart.Drives, 1)
	assert.Equal(t, "/dev/sda", r.Smart.Drives[0].Device)
}

func TestExecute_EventOrderMonotonic(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{})

	require.NotEmpty(t, r.Events)
	for i := 1; i < len(r.Events); i++ {
		assert.False(t, r.Events[i].Timestamp.Before(r.Events[i-1].Timestamp))
	}
	assert.Equal(t, model.PhaseInit, r.Events[0].Phase)
	assert.Equal(t, model.PhaseFinalize, r.Events[len(r.Events)-1].Phase)
}

func TestExecute_RunRecordWritten(t *testing.T) {
	env := newTestEnv(t, nil)
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffNoChanges})

	r := env.orch.Execute(context.Background(), Options{})

	require.Len(t, env.records, 1)
	assert.Equal(t, r.RunID, env.records[0].RunID)
}

func TestExecute_ProgressNotThrottledOpenAtPhaseStart(t *testing.T) {
	env := newTestEnv(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.orch.now = func() time.Time { return base }

	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{stdout: []string{"12%, 480 MB"}})

	r := env.orch.Execute(context.Background(), Options{})

	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.Empty(t, env.channel.prog, "first progress line within the interval is dropped")
}

func TestExecute_ElapsedUsesClock(t *testing.T) {
	env := newTestEnv(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	env.orch.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * 10 * time.Second)
	}
	env.script("status", response{stdout: statusHealthy})
	env.script("diff", response{stdout: diffSomeChanges})
	env.script("sync", response{})

	r := env.orch.Execute(context.Background(), Options{})
	assert.Equal(t, model.OutcomeCompleted, r.Outcome)
	assert.NotEmpty(t, r.SyncElapsed)
}
