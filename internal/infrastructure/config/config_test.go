package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[[positions]]
id = "loan-1"
currency = "EUR"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Errorf("log_level default = %q, want info", cfg.App.LogLevel)
	}
	if cfg.App.ItemDelayMs != 1000 {
		t.Errorf("item_delay_ms default = %d, want 1000", cfg.App.ItemDelayMs)
	}
	if cfg.Limits.CooldownSec != 60 {
		t.Errorf("cooldown_sec default = %d, want 60", cfg.Limits.CooldownSec)
	}
	if cfg.Limits.CurrentTTLMin != 15 {
		t.Errorf("current_ttl_min default = %d, want 15", cfg.Limits.CurrentTTLMin)
	}
	if cfg.Provider.BaseURL == "" {
		t.Error("provider base_url should default")
	}
}

func TestLoadRejectsEmptyPositions(t *testing.T) {
	path := writeConfig(t, `
[app]
log_level = "debug"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject a config without positions")
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := writeConfig(t, `
[[positions]]
id = "loan-1"

[[positions]]
id = "loan-1"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject duplicate position ids")
	}
}

func TestLoadRejectsEnabledBackendWithoutTarget(t *testing.T) {
	path := writeConfig(t, `
[[positions]]
id = "loan-1"

[storage.redis]
enabled = true
addr = ""
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject enabled redis without addr")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	path := writeConfig(t, `
[provider]
api_key_env = "LOANPERF_TEST_KEY"

[[positions]]
id = "loan-1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t.Setenv("LOANPERF_TEST_KEY", "secret")
	if got := cfg.APIKey(); got != "secret" {
		t.Errorf("APIKey = %q, want secret", got)
	}
}
