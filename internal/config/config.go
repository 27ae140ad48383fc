package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all circled configuration.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Tiers         TiersConfig         `toml:"tiers"`
	Nudges        NudgesConfig        `toml:"nudges"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// TiersConfig maps tier names to capacity. A capacity of -1 means the
// tier is uncapped.
type TiersConfig struct {
	Caps map[string]int `toml:"caps"`
}

type NudgesConfig struct {
	// Thresholds maps tier names to days-since-contact before a nudge
	// fires. Tiers absent from the map never nudge.
	Thresholds map[string]int `toml:"thresholds"`
	// CooldownDays suppresses a dismissed nudge from re-surfacing.
	CooldownDays int `toml:"cooldown_days"`
	// CronSpec drives the periodic recompute cycle.
	CronSpec string `toml:"cron_spec"`
}

type NotificationsConfig struct {
	// BatchWindowMinutes is the aggregation window for batched tiers.
	BatchWindowMinutes int `toml:"batch_window_minutes"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Tiers: TiersConfig{
			Caps: map[string]int{
				"core":       5,
				"inner":      15,
				"outer":      150,
				"naybor":     -1,
				"parasocial": -1,
				"rolemodel":  -1,
				"acquainted": -1,
			},
		},
		Nudges: NudgesConfig{
			Thresholds: map[string]int{
				"core":   14,
				"inner":  30,
				"naybor": 60,
				"outer":  90,
			},
			CooldownDays: 7,
			CronSpec:     "@daily",
		},
		Notifications: NotificationsConfig{
			BatchWindowMinutes: 60,
		},
	}
}

// Load reads a TOML config file, layering it over Default().
// A missing file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
