// Package scrub plans the bounded verification pass.
package scrub

import (
	"strconv"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/model"
)

// Plan computes the scrub parameters from policy. Pure function of
// configuration so boundary values can be enumerated in tests.
func Plan(policy config.ScrubConfig) model.ScrubParams {
	return model.ScrubParams{
		Percent:    policy.CheckPercent,
		MinAgeDays: policy.MinAgeDays,
		IncludeNew: policy.ScrubNew,
	}
}

// Enabled reports whether a scrub phase should run at all: scrubbing must
// be switched on and the verification percentage positive.
func Enabled(policy config.ScrubConfig) bool {
	return policy.Enabled && policy.CheckPercent > 0
}

// Args renders the subcommand arguments for the percentage-bounded pass.
func Args(p model.ScrubParams) []string {
	return []string{"-p", strconv.Itoa(p.Percent), "-o", strconv.Itoa(p.MinAgeDays)}
}

// NewBlockArgs renders the subcommand arguments for the optional pass over
// newly-added blocks.
func NewBlockArgs() []string {
	return []string{"-p", "new"}
}
