package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		LogLevel    string `toml:"log_level"`
		ItemDelayMs int    `toml:"item_delay_ms"`
	} `toml:"app"`

	Provider struct {
		BaseURL   string `toml:"base_url"`
		APIKeyEnv string `toml:"api_key_env"`
	} `toml:"provider"`

	Limits struct {
		CooldownSec   int `toml:"cooldown_sec"`
		CurrentTTLMin int `toml:"current_ttl_min"`
	} `toml:"limits"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled bool   `toml:"enabled"`
			Addr    string `toml:"addr"`
			Prefix  string `toml:"prefix"`
		} `toml:"redis"`
	} `toml:"storage"`

	Push struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"push"`

	Positions []PositionEntry `toml:"positions"`
}

// PositionEntry is one loan record as it appears in the rendered
// source: amounts and dates are raw localized text, normalized later.
// Malformed fields survive into the pipeline so it can reject them as
// Failed instead of the loader crashing.
type PositionEntry struct {
	ID                 string `toml:"id"`
	Currency           string `toml:"currency"`
	Principal          string `toml:"principal"`
	AnnualRatePercent  string `toml:"annual_rate_percent"`
	ReferenceDate      string `toml:"reference_date"`
	CollateralQuantity string `toml:"collateral_quantity"`
	Incomplete         bool   `toml:"incomplete"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.ItemDelayMs <= 0 {
		cfg.App.ItemDelayMs = 1000
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Limits.CooldownSec <= 0 {
		cfg.Limits.CooldownSec = 60
	}
	if cfg.Limits.CurrentTTLMin <= 0 {
		cfg.Limits.CurrentTTLMin = 15
	}
	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/loanperf.db"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "loanperf"
	}
	if cfg.Push.Listen == "" {
		cfg.Push.Listen = ":8091"
	}
}

func validate(cfg *Config) error {
	if len(cfg.Positions) == 0 {
		return errors.New("positions is empty")
	}
	seen := map[string]struct{}{}
	for _, p := range cfg.Positions {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return errors.New("positions entry without id")
		}
		if _, dup := seen[id]; dup {
			return errors.New("duplicate position id: " + id)
		}
		seen[id] = struct{}{}
	}

	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	return nil
}

// APIKey reads the provider key from the configured environment
// variable, empty when unset. godotenv has already loaded .env by the
// time this runs.
func (c *Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}
