// Package config provides configuration file support for snapguard.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/pathutil"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "/etc/snapguard/config.yaml"

// Config is the full snapguard configuration.
type Config struct {
	Array         ArrayConfig        `yaml:"array"`
	Logs          LogsConfig         `yaml:"logs"`
	Lock          LockConfig         `yaml:"lock"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Spindown      SpindownConfig     `yaml:"spindown"`
}

// ArrayConfig configures the external array tool and the run policy.
type ArrayConfig struct {
	Binary     string           `yaml:"binary"`
	ConfigFile string           `yaml:"config"`
	Nice       int              `yaml:"nice"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Sync       SyncConfig       `yaml:"sync"`
	Scrub      ScrubConfig      `yaml:"scrub"`
	Smart      bool             `yaml:"smart"`
}

// ThresholdsConfig bounds the diff counts beyond which a run aborts.
// A value of 0 disables the corresponding check.
type ThresholdsConfig struct {
	Added   int `yaml:"added"`
	Removed int `yaml:"removed"`
}

// SyncConfig configures the sync phase.
type SyncConfig struct {
	PreHash  bool           `yaml:"pre_hash"`
	AutoSync AutoSyncConfig `yaml:"auto_sync"`
}

// AutoSyncConfig bounds the automatic re-sync retries.
type AutoSyncConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
}

// ScrubConfig configures the verification phase.
type ScrubConfig struct {
	Enabled      bool `yaml:"enabled"`
	CheckPercent int  `yaml:"check_percent"`
	MinAgeDays   int  `yaml:"min_age"`
	ScrubNew     bool `yaml:"scrub_new"`
}

// LogsConfig configures the per-run log directory and retention.
type LogsConfig struct {
	Dir      string `yaml:"dir"`
	MaxCount int    `yaml:"max_count"`
}

// LockConfig configures the run lock location.
type LockConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures process logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// NotificationConfig configures the delivery channels.
type NotificationConfig struct {
	Email   EmailConfig   `yaml:"email"`
	Discord DiscordConfig `yaml:"discord"`
}

// EmailConfig configures the mail channel. Delivery shells out to a
// sendmail-compatible binary.
type EmailConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
	From    string `yaml:"from_email"`
	To      string `yaml:"to_email"`
}

// DiscordConfig configures the chat-webhook channel.
type DiscordConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WebhookID    string `yaml:"webhook_id"`
	WebhookToken string `yaml:"webhook_token"`
}

// SpindownConfig configures the optional post-run drive spin-down.
type SpindownConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
	Drives  string `yaml:"drives"` // "parity" or "all"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Array: ArrayConfig{
			Binary:     "/usr/bin/snapraid",
			ConfigFile: "/etc/snapraid.conf",
			Nice:       10,
			Thresholds: ThresholdsConfig{Added: 500, Removed: 50},
			Sync: SyncConfig{
				PreHash:  true,
				AutoSync: AutoSyncConfig{Enabled: true, MaxAttempts: 3},
			},
			Scrub: ScrubConfig{
				Enabled:      true,
				CheckPercent: 12,
				MinAgeDays:   10,
				ScrubNew:     true,
			},
			Smart: true,
		},
		Logs: LogsConfig{
			Dir:      "/var/log/snapguard",
			MaxCount: 14,
		},
		Lock: LockConfig{
			Dir: "/run/snapguard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Spindown: SpindownConfig{
			Binary: "/usr/sbin/hdparm",
			Drives: "parity",
		},
	}
}

// Load reads configuration from path, applying defaults for absent keys.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("read config: %v", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("parse config: %v", err)
	}

	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values a run cannot proceed with.
// Binary existence is checked at invocation time, not here, so a config can
// be validated on a machine that does not have the array tool installed.
func (c *Config) Validate() error {
	if c.Array.Binary == "" {
		return errclass.ErrConfigInvalid.WithMessage("array.binary must be set")
	}
	if c.Array.ConfigFile == "" {
		return errclass.ErrConfigInvalid.WithMessage("array.config must be set")
	}
	if c.Array.Nice < -20 || c.Array.Nice > 19 {
		return errclass.ErrConfigInvalid.WithMessagef("array.nice must be in [-20, 19], got %d", c.Array.Nice)
	}
	if c.Array.Thresholds.Added < 0 || c.Array.Thresholds.Removed < 0 {
		return errclass.ErrConfigInvalid.WithMessage("array.thresholds must be non-negative (0 disables)")
	}
	if c.Array.Sync.AutoSync.Enabled && c.Array.Sync.AutoSync.MaxAttempts < 1 {
		return errclass.ErrConfigInvalid.WithMessagef(
			"array.sync.auto_sync.max_attempts must be >= 1, got %d", c.Array.Sync.AutoSync.MaxAttempts)
	}
	if c.Array.Scrub.CheckPercent < 0 || c.Array.Scrub.CheckPercent > 100 {
		return errclass.ErrConfigInvalid.WithMessagef(
			"array.scrub.check_percent must be in [0, 100], got %d", c.Array.Scrub.CheckPercent)
	}
	if c.Array.Scrub.MinAgeDays < 0 {
		return errclass.ErrConfigInvalid.WithMessagef(
			"array.scrub.min_age must be >= 0, got %d", c.Array.Scrub.MinAgeDays)
	}
	if c.Logs.Dir == "" {
		return errclass.ErrConfigInvalid.WithMessage("logs.dir must be set")
	}
	if c.Logs.MaxCount < 1 {
		return errclass.ErrConfigInvalid.WithMessagef("logs.max_count must be >= 1, got %d", c.Logs.MaxCount)
	}
	if c.Lock.Dir == "" {
		return errclass.ErrConfigInvalid.WithMessage("lock.dir must be set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.format %q must be json or text", c.Logging.Format)
	}

	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.Binary == "" {
			return errclass.ErrConfigInvalid.WithMessage("notifications.email.binary must be set when enabled")
		}
		if c.Notifications.Email.From == "" || c.Notifications.Email.To == "" {
			return errclass.ErrConfigInvalid.WithMessage("notifications.email from/to must be set when enabled")
		}
	}
	if c.Notifications.Discord.Enabled {
		if c.Notifications.Discord.WebhookID == "" || c.Notifications.Discord.WebhookToken == "" {
			return errclass.ErrConfigInvalid.WithMessage("notifications.discord webhook_id/webhook_token must be set when enabled")
		}
		if err := pathutil.ValidateName(c.Notifications.Discord.WebhookID); err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("notifications.discord.webhook_id: %v", err)
		}
	}

	if c.Spindown.Enabled {
		if c.Spindown.Binary == "" {
			return errclass.ErrConfigInvalid.WithMessage("spindown.binary must be set when enabled")
		}
		if c.Spindown.Drives != "parity" && c.Spindown.Drives != "all" {
			return errclass.ErrConfigInvalid.WithMessagef("spindown.drives must be parity or all, got %q", c.Spindown.Drives)
		}
	}

	return nil
}
