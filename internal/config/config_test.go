package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.StateDir != ".mcp-gan-state" {
		t.Errorf("stateDir = %q", cfg.Session.StateDir)
	}
	if !cfg.Session.EnablePersistence {
		t.Error("persistence not enabled by default")
	}
	if cfg.Judge.Executable != "codex" {
		t.Errorf("judge executable = %q", cfg.Judge.Executable)
	}
	if cfg.Judge.Retries != 2 {
		t.Errorf("judge retries = %d, want 2", cfg.Judge.Retries)
	}
	if cfg.JudgeTimeout() != 30*time.Second {
		t.Errorf("judge timeout = %s, want 30s", cfg.JudgeTimeout())
	}
	if cfg.AuditTimeout() != 30*time.Second {
		t.Errorf("audit timeout = %s, want 30s", cfg.AuditTimeout())
	}
	if cfg.ProgressInterval() != 5*time.Second {
		t.Errorf("progress interval = %s, want 5s", cfg.ProgressInterval())
	}
	if cfg.Audit.TimeoutRetries != 1 {
		t.Errorf("timeout retries = %d, want 1", cfg.Audit.TimeoutRetries)
	}
	if cfg.Gate.MaxConcurrentAudits != 10 || cfg.Gate.MaxConcurrentSessions != 50 {
		t.Errorf("gate limits = %d/%d, want 10/50",
			cfg.Gate.MaxConcurrentAudits, cfg.Gate.MaxConcurrentSessions)
	}
	if cfg.QueueTimeout() != 30*time.Second {
		t.Errorf("queue timeout = %s, want 30s", cfg.QueueTimeout())
	}
	if cfg.CleanupInterval() != time.Hour {
		t.Errorf("cleanup interval = %s, want 1h", cfg.CleanupInterval())
	}
	if cfg.MaxSessionAge() != 24*time.Hour {
		t.Errorf("max session age = %s, want 24h", cfg.MaxSessionAge())
	}
	if !cfg.Cache.Enabled || cfg.Cache.Capacity != 512 {
		t.Errorf("cache = enabled %v, capacity %d", cfg.Cache.Enabled, cfg.Cache.Capacity)
	}
	if cfg.CacheTTL() != 10*time.Minute {
		t.Errorf("cache ttl = %s, want 10m", cfg.CacheTTL())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("judge.executable", "my-reviewer")
	viper.Set("judge.timeout_ms", 60_000)
	viper.Set("session.state_dir", "/tmp/audits")
	viper.Set("cache.enabled", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Judge.Executable != "my-reviewer" {
		t.Errorf("judge executable = %q", cfg.Judge.Executable)
	}
	if cfg.JudgeTimeout() != time.Minute {
		t.Errorf("judge timeout = %s, want 1m", cfg.JudgeTimeout())
	}
	if cfg.Session.StateDir != "/tmp/audits" {
		t.Errorf("stateDir = %q", cfg.Session.StateDir)
	}
	if cfg.Cache.Enabled {
		t.Error("cache.enabled=false not honored")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{" true ", true},
		{"false", false},
		{"FALSE", false},
		{"1", false},
		{"yes", false},
		{"on", false},
		{"", false},
		{"truthy", false},
	}
	for _, tt := range tests {
		if got := ParseBool(tt.in); got != tt.want {
			t.Errorf("ParseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		viper.Reset()
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}
	defer viper.Reset()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"judge timeout too low", func(c *Config) { c.Judge.TimeoutMs = 1000 }, true},
		{"judge timeout too high", func(c *Config) { c.Judge.TimeoutMs = 400_000 }, true},
		{"zero concurrency", func(c *Config) { c.Gate.MaxConcurrentAudits = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"warn level is valid", func(c *Config) { c.Logging.Level = "warn" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
