// Package spindown puts array drives to sleep after a run. Strictly best
// effort: a drive that refuses to spin down is logged and skipped.
package spindown

import (
	"context"
	"os/exec"
	"strings"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/logging"
	"github.com/snapguard-project/snapguard/pkg/model"
)

// Spin issues a standby command for each selected drive. Devices come from
// the SMART health table collected earlier in the run; without one there is
// nothing to spin down. Returns the number of drives put to sleep.
func Spin(ctx context.Context, cfg config.SpindownConfig, smart *model.SmartReport, log *logging.Logger) int {
	if !cfg.Enabled || smart == nil {
		return 0
	}

	done := 0
	for _, drive := range smart.Drives {
		if !selected(cfg.Drives, drive) {
			continue
		}
		if drive.Device == "" || drive.Device == "-" {
			continue
		}
		cmd := exec.CommandContext(ctx, cfg.Binary, "-y", drive.Device)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Warn("spindown failed", map[string]any{
				"device": drive.Device,
				"error":  err.Error(),
				"output": strings.TrimSpace(string(out)),
			})
			continue
		}
		log.Info("drive spun down", map[string]any{"device": drive.Device, "disk": drive.Disk})
		done++
	}
	return done
}

func selected(mode string, drive model.SmartDrive) bool {
	switch mode {
	case "", "all":
		return true
	case "parity":
		return strings.Contains(strings.ToLower(drive.Disk), "parity")
	default:
		return false
	}
}
