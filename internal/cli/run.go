package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snapguard-project/snapguard/internal/report"
	"github.com/snapguard-project/snapguard/internal/run"
	"github.com/snapguard-project/snapguard/pkg/color"
	"github.com/snapguard-project/snapguard/pkg/model"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one full maintenance run",
	Long: `Run the full maintenance cycle: sanity check, diff, threshold
evaluation, sync with bounded automatic re-sync, scrub and the post-run
drive health report.

Exit codes:
  0  run completed
  2  run aborted by a change threshold
  1  run failed`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := run.New(cfg, log)
		r := orch.Execute(ctx, run.Options{Force: runForce})

		if jsonOutput {
			outputJSON(r)
		} else {
			printOutcome(r)
		}
		os.Exit(r.Outcome.ExitCode())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "ignore sanity failures and change thresholds")
	rootCmd.AddCommand(runCmd)
}

func printOutcome(r *model.Report) {
	headline := report.Subject(r)
	switch r.Outcome {
	case model.OutcomeCompleted:
		fmt.Println(color.Success(headline))
	case model.OutcomeAbortedByThreshold:
		fmt.Println(color.Warning(headline))
	default:
		fmt.Println(color.Error(headline))
	}
	fmt.Println()
	fmt.Print(report.Summary(r))
}
