package classify

import (
	"regexp"
	"strings"
	"sync"
)

// benignStderrRes are sync errors caused by files being modified while the
// sync was running. The operation can simply be rerun. Anything outside
// this set is a real failure that needs a closer look.
var benignStderrRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^WARNING! You cannot modify (?:files|data disk) during a sync\.?$`),
	regexp.MustCompile(`(?i)^Unexpected (?:time|size) change at file .+$`),
	regexp.MustCompile(`(?i)^Missing file .+$`),
	regexp.MustCompile(`(?i)^Rerun the sync command when finished\.?$`),
	regexp.MustCompile(`(?i)^WARNING! With \d+ disks it's recommended to use \w+ parity levels\.?$`),
	regexp.MustCompile(`(?i)^WARNING! Unexpected file errors!$`),
}

// Sync is a stateful accumulator for the sync subcommand's output. The two
// stream methods are called from separate reader goroutines.
type Sync struct {
	mu         sync.Mutex
	resync     bool
	unexpected []string
}

// NewSync creates an empty sync accumulator.
func NewSync() *Sync {
	return &Sync{}
}

// StdoutLine consumes one stdout line.
func (s *Sync) StdoutLine(line string) {
	if rerunRe.MatchString(line) {
		s.mu.Lock()
		s.resync = true
		s.mu.Unlock()
	}
}

// StderrLine consumes one stderr line, partitioning it into the benign set
// or the unexpected residue.
func (s *Sync) StderrLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rerunRe.MatchString(trimmed) {
		s.resync = true
	}
	for _, re := range benignStderrRes {
		if re.MatchString(trimmed) {
			return
		}
	}
	s.unexpected = append(s.unexpected, trimmed)
}

// Assessment is the structured verdict on one sync invocation.
type Assessment struct {
	// ResyncRecommended is set when the tool asked for another sync pass
	// and every stderr line was in the benign set.
	ResyncRecommended bool
	// Failed is set on a non-zero exit that is not a clean resync request.
	Failed bool
	// Unexpected holds the stderr residue outside the benign grammar.
	Unexpected []string
}

// Finalize seals the accumulator into an Assessment for the given exit code.
// Called after both streams are drained.
func (s *Sync) Finalize(exitCode int) Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exitCode == 0 {
		return Assessment{}
	}
	if s.resync && len(s.unexpected) == 0 {
		return Assessment{ResyncRecommended: true}
	}
	return Assessment{Failed: true, Unexpected: s.unexpected}
}
