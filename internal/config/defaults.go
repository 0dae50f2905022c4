package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"database": map[string]interface{}{
			"path": "~/.reminderd/reminders.db",
		},
		"discord": map[string]interface{}{
			"token":           "",
			"base_url":        "https://discord.com/api/v10",
			"timeout_seconds": 30,
		},
		"api": map[string]interface{}{
			"enabled":     true,
			"listen_addr": ":8370",
		},
		"reminders": map[string]interface{}{
			"check_interval_seconds":    30,
			"initial_delay_seconds":     10,
			"max_concurrent_deliveries": 5,
			"execution_timeout_seconds": 30,
			"max_delivery_attempts":     3,
			"max_reminders_per_user":    25,
			"max_advance_days":          365,
			"min_advance_minutes":       1,
		},
		"logging": map[string]interface{}{
			"level":       "info",
			"development": false,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.reminderd/config.yaml"
}
