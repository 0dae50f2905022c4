package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Discord   DiscordConfig   `koanf:"discord"`
	API       APIConfig       `koanf:"api"`
	Reminders RemindersConfig `koanf:"reminders"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type DiscordConfig struct {
	Token          string `koanf:"token"`
	BaseURL        string `koanf:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// APIConfig configures the admin JSON API.
type APIConfig struct {
	Enabled    bool   `koanf:"enabled"`
	ListenAddr string `koanf:"listen_addr"`
}

// RemindersConfig holds the delivery-loop and creation limits.
type RemindersConfig struct {
	CheckIntervalSeconds    int `koanf:"check_interval_seconds"`
	InitialDelaySeconds     int `koanf:"initial_delay_seconds"`
	MaxConcurrentDeliveries int `koanf:"max_concurrent_deliveries"`
	ExecutionTimeoutSeconds int `koanf:"execution_timeout_seconds"`
	MaxDeliveryAttempts     int `koanf:"max_delivery_attempts"`
	MaxRemindersPerUser     int `koanf:"max_reminders_per_user"`
	MaxAdvanceDays          int `koanf:"max_advance_days"`
	MinAdvanceMinutes       int `koanf:"min_advance_minutes"`
}

type LoggingConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// REMINDERD_-prefixed environment variables (REMINDERD_DISCORD_TOKEN et al).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("REMINDERD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REMINDERD_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Common deployment shorthand for the bot token.
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		k.Set("discord.token", token)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord bot token is required (set DISCORD_BOT_TOKEN or add to config file)")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	r := c.Reminders
	if r.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive")
	}
	if r.InitialDelaySeconds < 0 {
		return fmt.Errorf("initial_delay_seconds must not be negative")
	}
	if r.MaxConcurrentDeliveries <= 0 {
		return fmt.Errorf("max_concurrent_deliveries must be positive")
	}
	if r.ExecutionTimeoutSeconds <= 0 {
		return fmt.Errorf("execution_timeout_seconds must be positive")
	}
	if r.MaxDeliveryAttempts <= 0 {
		return fmt.Errorf("max_delivery_attempts must be positive")
	}
	if r.MaxRemindersPerUser <= 0 {
		return fmt.Errorf("max_reminders_per_user must be positive")
	}
	if r.MinAdvanceMinutes < 0 {
		return fmt.Errorf("min_advance_minutes must not be negative")
	}
	if r.MaxAdvanceDays <= 0 {
		return fmt.Errorf("max_advance_days must be positive")
	}
	if float64(r.MinAdvanceMinutes) > float64(r.MaxAdvanceDays)*24*60 {
		return fmt.Errorf("min_advance_minutes exceeds max_advance_days")
	}

	if c.API.Enabled && c.API.ListenAddr == "" {
		return fmt.Errorf("api listen_addr is required when the API is enabled")
	}

	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
