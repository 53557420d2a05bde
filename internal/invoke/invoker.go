// Package invoke runs the external array tool and streams its output.
package invoke

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/logging"
)

const stderrTailLines = 10

// Sink consumes subprocess output lines as they arrive. Both streams are
// delivered line by line, in order within each stream.
type Sink interface {
	StdoutLine(line string)
	StderrLine(line string)
}

// MultiSink fans each line out to every sink in order.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) StdoutLine(line string) {
	for _, s := range m {
		s.StdoutLine(line)
	}
}

func (m multiSink) StderrLine(line string) {
	for _, s := range m {
		s.StderrLine(line)
	}
}

// Result is the observable outcome of one subprocess invocation. A non-zero
// exit code is data, not an error.
type Result struct {
	ExitCode   int
	StderrTail []string
}

// Runner invokes array tool subcommands.
type Runner struct {
	Binary     string
	ConfigFile string
	Nice       int
	Log        *logging.Logger
}

// Run starts the tool with the given subcommand and arguments, feeds every
// output line to sink, and returns the exit code once the streams are
// drained and the process has exited. Failure to start the process is an
// ErrProcessExec; cancellation kills the process and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, subcommand string, args []string, sink Sink) (Result, error) {
	if _, err := os.Stat(r.Binary); err != nil {
		return Result{}, errclass.ErrProcessExec.WithMessagef("array tool binary not found: %s", r.Binary)
	}
	if sink == nil {
		sink = multiSink(nil)
	}

	argv := []string{"--conf", r.ConfigFile, subcommand}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, r.Binary, argv...)
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errclass.ErrProcessExec.WithMessagef("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, errclass.ErrProcessExec.WithMessagef("stderr pipe: %v", err)
	}

	if r.Log != nil {
		r.Log.Debug("invoking array tool", map[string]any{
			"subcommand": subcommand,
			"args":       args,
		})
	}

	if err := cmd.Start(); err != nil {
		return Result{}, errclass.ErrProcessExec.WithMessagef("start %s %s: %v", r.Binary, subcommand, err)
	}

	if err := lowerPriority(cmd.Process.Pid, r.Nice); err != nil && r.Log != nil {
		// Priority is best-effort; the run proceeds at default priority.
		r.Log.Warn("unable to lower subprocess priority", map[string]any{"error": err.Error()})
	}

	var tail tailBuffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, sink.StdoutLine)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			tail.add(line)
			sink.StderrLine(line)
		})
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() != nil {
		return Result{ExitCode: -1, StderrTail: tail.lines()}, ctx.Err()
	}

	res := Result{ExitCode: 0, StderrTail: tail.lines()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, errclass.ErrProcessExec.WithMessagef("wait %s %s: %v", r.Binary, subcommand, err)
		}
	}
	return res, nil
}

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

// tailBuffer keeps the last stderrTailLines lines for error reporting.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []string
	start int
	full  bool
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf == nil {
		t.buf = make([]string, stderrTailLines)
	}
	t.buf[t.start] = line
	t.start = (t.start + 1) % len(t.buf)
	if t.start == 0 {
		t.full = true
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf == nil {
		return nil
	}
	var out []string
	if t.full {
		out = append(out, t.buf[t.start:]...)
	}
	out = append(out, t.buf[:t.start]...)
	return out
}
