// Package classify turns the array tool's free-form output into structured
// facts. Each subcommand has its own line grammar; unrecognized lines are
// tolerated and pass through untouched.
package classify

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/model"
)

var (
	diffCountRe = regexp.MustCompile(`^ *(\d+) (equal|added|removed|updated|moved|copied|restored)$`)
	warningRe   = regexp.MustCompile(`(?i)^(WARNING|ERROR|DANGER)!`)
)

// rerunRe is the "resync recommended" marker the tool prints when a sync
// left the array needing another pass.
var rerunRe = regexp.MustCompile(`(?i)^Rerun the sync command`)

// Diff is a stateful accumulator for the diff subcommand's output.
// Feed it one line at a time, then Finalize. The two stream methods are
// called from separate reader goroutines.
type Diff struct {
	mu         sync.Mutex
	counts     map[string]int
	recognized int
	resync     bool
	hasErrors  bool
}

// NewDiff creates an empty diff accumulator.
func NewDiff() *Diff {
	return &Diff{counts: make(map[string]int)}
}

// StdoutLine consumes one stdout line.
func (d *Diff) StdoutLine(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m := diffCountRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		d.counts[m[2]] = n
		d.recognized++
		return
	}
	if rerunRe.MatchString(line) {
		d.resync = true
	}
}

// StderrLine consumes one stderr line.
func (d *Diff) StderrLine(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if warningRe.MatchString(line) {
		d.hasErrors = true
	}
	if rerunRe.MatchString(line) {
		d.resync = true
	}
}

// Finalize seals the accumulator into an immutable DiffResult. A summary
// with no recognized category lines combined with a non-zero exit means the
// output did not match the expected grammar; proceeding on unclassified
// data is unsafe.
func (d *Diff) Finalize(exitCode int) (model.DiffResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recognized == 0 && exitCode != 0 {
		return model.DiffResult{}, errclass.ErrParse.WithMessagef(
			"no diff summary recognized in output (exit code %d)", exitCode)
	}

	return model.DiffResult{
		Equal:             d.counts["equal"],
		Added:             d.counts["added"],
		Removed:           d.counts["removed"],
		Updated:           d.counts["updated"],
		Moved:             d.counts["moved"],
		Copied:            d.counts["copied"],
		Restored:          d.counts["restored"],
		ResyncRecommended: d.resync,
		HasErrors:         d.hasErrors,
	}, nil
}
