package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/model"
)

func TestWriter_RawLines(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(config.LogsConfig{Dir: dir, MaxCount: 3})
	require.NoError(t, err)
	w.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	w.StdoutLine("Comparing...")
	w.StderrLine("WARNING! Something odd")
	w.Phase(model.PhaseDiff, model.StatusSucceeded)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "snapguard.log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "2026-03-01 12:00:00 OUTPUT Comparing...")
	assert.Contains(t, content, "ERROR  WARNING! Something odd")
	assert.Contains(t, content, "RUN    phase=diff status=succeeded")
}

func TestOpen_RotatesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapguard.log"), []byte("old run\n"), 0o644))

	w, err := Open(config.LogsConfig{Dir: dir, MaxCount: 3})
	require.NoError(t, err)
	w.StdoutLine("new run")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "snapguard.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old run")
	assert.Contains(t, string(data), "new run")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "rotated file should remain")
}

func TestWriteRecord(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogsConfig{Dir: dir, MaxCount: 3}
	report := &model.Report{
		RunID:     "abc123",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Outcome:   model.OutcomeCompleted,
	}

	require.NoError(t, WriteRecord(cfg, report))

	data, err := os.ReadFile(RecordPath(cfg, "abc123"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "abc123", got["run_id"])
	assert.Equal(t, string(model.OutcomeCompleted), got["outcome"])
}

func TestWriteRecord_Deterministic(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogsConfig{Dir: dir, MaxCount: 3}
	report := &model.Report{RunID: "r1", Outcome: model.OutcomeCompleted}

	require.NoError(t, WriteRecord(cfg, report))
	first, err := os.ReadFile(RecordPath(cfg, "r1"))
	require.NoError(t, err)

	require.NoError(t, WriteRecord(cfg, report))
	second, err := os.ReadFile(RecordPath(cfg, "r1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWriteRecord_PrunesOldest(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogsConfig{Dir: dir, MaxCount: 2}

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, WriteRecord(cfg, &model.Report{RunID: id, Outcome: model.OutcomeCompleted}))
		// Distinct mtimes in the past so pruning order is deterministic.
		ts := time.Now().Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(RecordPath(cfg, id), ts, ts))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "run-*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.NoFileExists(t, RecordPath(cfg, "r1"), "oldest record removed first")
	assert.FileExists(t, RecordPath(cfg, "r3"))
}

func TestWriteRecord_RejectsEscapingRunID(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogsConfig{Dir: dir, MaxCount: 3}
	report := &model.Report{RunID: "../outside"}

	err := WriteRecord(cfg, report)
	assert.Error(t, err)
}
