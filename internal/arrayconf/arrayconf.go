// Package arrayconf reads the array tool's own configuration file and
// checks that the array it describes looks sane before a run touches it.
package arrayconf

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/snapguard-project/snapguard/pkg/errclass"
)

// Layout is the subset of the array configuration a run cares about: where
// the content lists and parity files live.
type Layout struct {
	ContentFiles []string
	ParityFiles  []string
}

var parityKeywords = map[string]bool{
	"parity":   true,
	"2-parity": true,
	"3-parity": true,
	"4-parity": true,
	"5-parity": true,
	"6-parity": true,
	"z-parity": true,
}

// Parse reads the array configuration at path. Unknown directives are
// ignored; only content and parity entries are collected.
func Parse(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("array config: %v", err)
	}
	defer f.Close()

	layout := &Layout{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keyword, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		value := strings.TrimSpace(rest)
		switch {
		case keyword == "content":
			layout.ContentFiles = append(layout.ContentFiles, value)
		case parityKeywords[keyword]:
			// Split parity files may be listed comma separated.
			for _, p := range strings.Split(value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					layout.ParityFiles = append(layout.ParityFiles, p)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("array config %s: %v", path, err)
	}
	if len(layout.ContentFiles) == 0 {
		return nil, errclass.ErrConfigInvalid.WithMessagef("array config %s: no content entries", path)
	}
	return layout, nil
}

// CheckSanity verifies that every content and parity file the layout names
// actually exists. A missing parity file on a fresh array is reported so the
// operator runs the first sync by hand.
func (l *Layout) CheckSanity() error {
	var missing []string
	for _, p := range l.ContentFiles {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	for _, p := range l.ParityFiles {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errclass.ErrArrayUnhealthy.WithMessage(
			fmt.Sprintf("missing array files: %s", strings.Join(missing, ", ")))
	}
	return nil
}
