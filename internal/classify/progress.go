package classify

import (
	"fmt"
	"regexp"

	"github.com/snapguard-project/snapguard/pkg/progress"
)

var progressRe = regexp.MustCompile(
	`^(\d+)%, (\d+) MB(?:, (\d+) MB/s, (\d+) stripe/s, CPU (\d+)%, (\d+):(\d+) ETA)?$`)

// ParseProgress recognizes the tool's periodic progress lines. Progress
// lines carry no summary information and are excluded from phase grammars.
func ParseProgress(line string) (progress.Update, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return progress.Update{}, false
	}

	u := progress.Update{
		Percent:     atoi(m[1]),
		ProcessedMB: atoi(m[2]),
	}
	if m[3] != "" {
		u.SpeedMB = atoi(m[3])
		u.ETA = fmt.Sprintf("%sh %sm", m[6], m[7])
	}
	return u, true
}
