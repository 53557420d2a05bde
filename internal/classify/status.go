package classify

import (
	"regexp"
	"strconv"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/model"
)

var (
	driveStatsRe = regexp.MustCompile(`^ *(\d+) +(\d+) +(\d+) +([-.\d]+) +(\d+) +(\d+) +(\d+)%(?: +(\S+))?$`)
	scrubInfoRe  = regexp.MustCompile(`scrubbed (\d+) days ago, the median (\d+), the newest (\d+)`)
	unscrubbedRe = regexp.MustCompile(`^The (\d+)% of the array is not scrubbed`)
	errorCountRe = regexp.MustCompile(`^DANGER! In the array there are (\d+) errors!`)
	zeroSubSecRe = regexp.MustCompile(`^You have (\d+) files with zero sub-second timestamp`)
	syncInProgRe = regexp.MustCompile(`^You have a sync in progress`)
)

// Status is a stateful accumulator for the status subcommand's output.
type Status struct {
	facts      model.StatusFacts
	scrub      model.ScrubCoverage
	sawScrub   bool
	recognized int
}

// NewStatus creates an empty status accumulator.
func NewStatus() *Status {
	return &Status{}
}

// StdoutLine consumes one stdout line.
func (s *Status) StdoutLine(line string) {
	if m := driveStatsRe.FindStringSubmatch(line); m != nil {
		s.facts.Drives = append(s.facts.Drives, model.DriveStats{
			FileCount:       atoi(m[1]),
			FragmentedFiles: atoi(m[2]),
			ExcessFragments: atoi(m[3]),
			WastedGB:        m[4],
			UsedGB:          atoi(m[5]),
			FreeGB:          atoi(m[6]),
			UsePercent:      atoi(m[7]),
			Name:            m[8],
		})
		s.recognized++
		return
	}
	if m := scrubInfoRe.FindStringSubmatch(line); m != nil {
		s.scrub.OldestDays = atoi(m[1])
		s.scrub.MedianDays = atoi(m[2])
		s.scrub.NewestDays = atoi(m[3])
		s.sawScrub = true
		s.recognized++
		return
	}
	if m := unscrubbedRe.FindStringSubmatch(line); m != nil {
		s.scrub.UnscrubbedPercent = atoi(m[1])
		s.recognized++
		return
	}
	if m := errorCountRe.FindStringSubmatch(line); m != nil {
		s.facts.ErrorCount = atoi(m[1])
		s.recognized++
		return
	}
	if m := zeroSubSecRe.FindStringSubmatch(line); m != nil {
		s.facts.ZeroSubSecond = atoi(m[1])
		s.recognized++
		return
	}
	if syncInProgRe.MatchString(line) {
		s.facts.SyncInProgress = true
		s.recognized++
	}
}

// StderrLine consumes one stderr line. The status grammar lives entirely
// on stdout.
func (s *Status) StderrLine(line string) {}

// Finalize seals the accumulator into StatusFacts.
func (s *Status) Finalize(exitCode int) (model.StatusFacts, error) {
	if s.recognized == 0 {
		return model.StatusFacts{}, errclass.ErrParse.WithMessagef(
			"no status facts recognized in output (exit code %d)", exitCode)
	}
	facts := s.facts
	if s.sawScrub {
		scrub := s.scrub
		facts.Scrub = &scrub
	}
	return facts, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
