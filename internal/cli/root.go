package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapguard-project/snapguard/pkg/color"
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/logging"
)

var (
	jsonOutput bool
	noColor    bool
	configPath string

	rootCmd = &cobra.Command{
		Use:   "snapguard",
		Short: "Snapguard - scheduled array maintenance runner",
		Long: `Snapguard drives a parity array's maintenance cycle: it diffs the
array against its parity, guards the sync behind change thresholds,
re-syncs when files moved underneath a running sync, scrubs a slice of
old blocks and delivers a run report to the configured channels.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config, or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmtErr("load config: %v", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) *logging.Logger {
	log := logging.NewLogger(logging.Level(cfg.Logging.Level))
	if cfg.Logging.Format != "" {
		log.SetFormat(logging.Format(cfg.Logging.Format))
	}
	return log
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "snapguard: "
	if color.Enabled() {
		prefix = color.Error("snapguard:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
