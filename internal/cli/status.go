package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapguard-project/snapguard/internal/classify"
	"github.com/snapguard-project/snapguard/internal/invoke"
	"github.com/snapguard-project/snapguard/internal/lock"
	"github.com/snapguard-project/snapguard/pkg/color"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show array health and the run lock state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		log := newLogger(cfg)

		rec, err := lock.NewManager(cfg.Lock.Dir).Status()
		if err != nil {
			fmtErr("read lock: %v", err)
			os.Exit(1)
		}

		runner := &invoke.Runner{
			Binary:     cfg.Array.Binary,
			ConfigFile: cfg.Array.ConfigFile,
			Nice:       cfg.Array.Nice,
			Log:        log,
		}
		cls := classify.NewStatus()
		res, err := runner.Run(context.Background(), "status", nil, cls)
		if err != nil {
			fmtErr("query array status: %v", err)
			os.Exit(1)
		}
		facts, err := cls.Finalize(res.ExitCode)
		if err != nil {
			fmtErr("classify array status: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"lock":  rec,
				"array": facts,
			})
			return
		}

		if rec != nil {
			fmt.Println(color.Warning("Run in progress"))
			fmt.Printf("  Run ID: %s\n", rec.RunID)
			fmt.Printf("  PID: %d on %s\n", rec.PID, rec.Hostname)
			fmt.Printf("  Since: %s\n", rec.AcquiredAt.Format(time.RFC3339))
		} else {
			fmt.Println("No run in progress")
		}
		fmt.Println()

		if facts.ErrorCount > 0 {
			fmt.Println(color.Error(fmt.Sprintf("Array reports %d errors", facts.ErrorCount)))
		} else {
			fmt.Println(color.Success("Array reports no errors"))
		}
		if facts.SyncInProgress {
			fmt.Println(color.Warning("An interrupted sync needs to be rerun"))
		}
		if facts.ZeroSubSecond > 0 {
			fmt.Printf("%d files with zero sub-second timestamps\n", facts.ZeroSubSecond)
		}
		if facts.Scrub != nil {
			fmt.Printf("Scrub coverage: %d%% unverified, oldest block %d days\n",
				facts.Scrub.UnscrubbedPercent, facts.Scrub.OldestDays)
		}
		if len(facts.Drives) > 0 {
			fmt.Printf("%d drives in the array\n", len(facts.Drives))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
