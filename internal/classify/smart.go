package classify

import (
	"regexp"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/model"
)

var (
	smartDriveRe = regexp.MustCompile(`^ *(\d+|-) +(\d+|-) +(\d+|-) +(\d+%|-|SSD) +(\S+) +(\S+) +(\S+) +(\S+)$`)
	smartTotalRe = regexp.MustCompile(`next year is (\d+)%`)
)

// Smart is a stateful accumulator for the smart subcommand's output.
type Smart struct {
	report   model.SmartReport
	sawTotal bool
}

// NewSmart creates an empty smart accumulator.
func NewSmart() *Smart {
	return &Smart{}
}

// StdoutLine consumes one stdout line.
func (s *Smart) StdoutLine(line string) {
	if m := smartDriveRe.FindStringSubmatch(line); m != nil {
		s.report.Drives = append(s.report.Drives, model.SmartDrive{
			Temperature: m[1],
			PowerOnDays: m[2],
			ErrorCount:  m[3],
			FailurePct:  m[4],
			SizeTB:      m[5],
			Serial:      m[6],
			Device:      m[7],
			Disk:        m[8],
		})
		return
	}
	if m := smartTotalRe.FindStringSubmatch(line); m != nil {
		s.report.YearFailurePercent = atoi(m[1])
		s.sawTotal = true
	}
}

// StderrLine consumes one stderr line.
func (s *Smart) StderrLine(line string) {}

// Finalize seals the accumulator into a SmartReport.
func (s *Smart) Finalize(exitCode int) (model.SmartReport, error) {
	if len(s.report.Drives) == 0 || !s.sawTotal {
		return model.SmartReport{}, errclass.ErrParse.WithMessagef(
			"no drive data or failure probability recognized (exit code %d)", exitCode)
	}
	return s.report, nil
}
