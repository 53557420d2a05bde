// Package runlog persists the raw subprocess output of each run and the
// canonical run record artifact. Old run logs are rotated by count and
// compressed.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/fsutil"
	"github.com/snapguard-project/snapguard/pkg/jsonutil"
	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/pathutil"
)

const rawLogName = "snapguard.log"

// Writer captures raw tool output for one run. It implements the line sink
// consumed by the process runner; safe for use from the two stream readers.
type Writer struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	now func() time.Time
}

// Open prepares the raw log for a new run. The current log file is rotated
// so every run begins a fresh file; rotated files are compressed and pruned
// down to the configured count.
func Open(cfg config.LogsConfig) (*Writer, error) {
	out := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, rawLogName),
		MaxBackups: cfg.MaxCount,
		MaxSize:    512, // MB, backstop only; rotation is per run
		Compress:   true,
	}
	if err := out.Rotate(); err != nil {
		return nil, fmt.Errorf("rotate run log: %w", err)
	}
	return &Writer{out: out, now: time.Now}, nil
}

func (w *Writer) write(stream, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ts := w.now().UTC().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w.out, "%s %s %s\n", ts, stream, line)
}

// StdoutLine records one line of tool standard output.
func (w *Writer) StdoutLine(line string) { w.write("OUTPUT", line) }

// StderrLine records one line of tool standard error.
func (w *Writer) StderrLine(line string) { w.write("ERROR ", line) }

// Phase records a phase boundary marker in the raw log.
func (w *Writer) Phase(phase model.Phase, status model.EventStatus) {
	w.write("RUN   ", fmt.Sprintf("phase=%s status=%s", phase, status))
}

// Close flushes and closes the raw log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}

// WriteRecord persists the canonical run record as JSON next to the raw log,
// then prunes the oldest records beyond the retention count. The target path
// is validated against the log directory before writing and the file is
// written atomically.
func WriteRecord(cfg config.LogsConfig, report *model.Report) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("run-%s.json", report.RunID)
	path := filepath.Join(cfg.Dir, name)
	if err := pathutil.ValidateUnder(cfg.Dir, path); err != nil {
		return err
	}
	data, err := jsonutil.CanonicalMarshal(report)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	data = append(data, '\n')
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return err
	}
	return pruneRecords(cfg)
}

// pruneRecords keeps the newest MaxCount run records, oldest removed first.
func pruneRecords(cfg config.LogsConfig) error {
	if cfg.MaxCount < 1 {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(cfg.Dir, "run-*.json"))
	if err != nil {
		return err
	}
	if len(matches) <= cfg.MaxCount {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return mtime(matches[i]).Before(mtime(matches[j]))
	})
	for _, path := range matches[:len(matches)-cfg.MaxCount] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("prune run record: %w", err)
		}
	}
	return nil
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// RecordPath returns where the run record for runID is stored.
func RecordPath(cfg config.LogsConfig, runID string) string {
	return filepath.Join(cfg.Dir, fmt.Sprintf("run-%s.json", runID))
}
