package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapguard-project/snapguard/pkg/color"
	"github.com/snapguard-project/snapguard/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage snapguard configuration",
	Long: `Manage the snapguard configuration file.

Available commands:
  show     - Show the effective configuration
  init     - Write a default configuration file
  validate - Check the configuration for errors`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if jsonOutput {
			outputJSON(cfg)
			return
		}
		fmt.Printf("# Location: %s\n\n", configPath)
		fmt.Printf("array binary: %s\n", cfg.Array.Binary)
		fmt.Printf("array config: %s\n", cfg.Array.ConfigFile)
		fmt.Printf("thresholds: %d added, %d removed (0 disables)\n",
			cfg.Array.Thresholds.Added, cfg.Array.Thresholds.Removed)
		fmt.Printf("pre-hash: %v\n", cfg.Array.Sync.PreHash)
		if cfg.Array.Sync.AutoSync.Enabled {
			fmt.Printf("auto re-sync: up to %d attempts\n", cfg.Array.Sync.AutoSync.MaxAttempts)
		} else {
			fmt.Println("auto re-sync: disabled")
		}
		if cfg.Array.Scrub.Enabled {
			fmt.Printf("scrub: %d%% of blocks older than %d days\n",
				cfg.Array.Scrub.CheckPercent, cfg.Array.Scrub.MinAgeDays)
		} else {
			fmt.Println("scrub: disabled")
		}
		fmt.Printf("logs: %s (keep %d)\n", cfg.Logs.Dir, cfg.Logs.MaxCount)
		fmt.Printf("email notifications: %v\n", cfg.Notifications.Email.Enabled)
		fmt.Printf("discord notifications: %v\n", cfg.Notifications.Discord.Enabled)
		fmt.Printf("spindown: %v\n", cfg.Spindown.Enabled)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil {
			fmtErr("refusing to overwrite existing %s", configPath)
			os.Exit(1)
		}
		if err := config.Save(configPath, config.Default()); err != nil {
			fmtErr("write config: %v", err)
			os.Exit(1)
		}
		fmt.Println(color.Success("Wrote " + configPath))
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		fmt.Println(color.Success("Configuration is valid"))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
