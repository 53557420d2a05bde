// Package threshold gates the irreversible sync phase on classified diff
// counts.
package threshold

import (
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/model"
)

// Evaluate decides whether a diff is safe to commit. A forced run always
// proceeds. Each limit is evaluated independently with a strict
// greater-than comparison, a limit of 0 disables that check, and the added
// check takes priority when both are exceeded.
func Evaluate(diff model.DiffResult, policy config.ThresholdsConfig, forced bool) model.ThresholdDecision {
	if forced {
		return model.ThresholdDecision{Action: model.ActionProceed}
	}

	if policy.Added > 0 && diff.Added > policy.Added {
		return model.ThresholdDecision{
			Action: model.ActionAbortAdded,
			Count:  diff.Added,
			Limit:  policy.Added,
		}
	}
	if policy.Removed > 0 && diff.Removed > policy.Removed {
		return model.ThresholdDecision{
			Action: model.ActionAbortRemoved,
			Count:  diff.Removed,
			Limit:  policy.Removed,
		}
	}

	return model.ThresholdDecision{Action: model.ActionProceed}
}
