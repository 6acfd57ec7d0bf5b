// Package config loads the auditor's runtime configuration from file and
// environment via viper. Every option has a working default; configuration
// can only tighten or loosen behavior, never render the tool unusable.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full auditor configuration.
type Config struct {
	Session SessionConfig `mapstructure:"session"`
	Judge   JudgeConfig   `mapstructure:"judge"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Gate    GateConfig    `mapstructure:"gate"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SessionConfig controls durable session state.
type SessionConfig struct {
	StateDir          string `mapstructure:"state_dir"`
	EnablePersistence bool   `mapstructure:"enable_persistence"`
}

// JudgeConfig controls the external reviewer subprocess.
type JudgeConfig struct {
	Executable string `mapstructure:"executable"`
	WorkDir    string `mapstructure:"work_dir"`
	TimeoutMs  int    `mapstructure:"timeout_ms"`
	Retries    int    `mapstructure:"retries"`
}

// AuditConfig controls the audit loop itself.
type AuditConfig struct {
	TimeoutMs          int    `mapstructure:"timeout_ms"`
	ProgressIntervalMs int    `mapstructure:"progress_interval_ms"`
	TimeoutRetries     int    `mapstructure:"timeout_retries"`
	RubricFile         string `mapstructure:"rubric_file"`
}

// GateConfig controls concurrency bounds and session eviction.
type GateConfig struct {
	MaxConcurrentAudits   int `mapstructure:"max_concurrent_audits"`
	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`
	QueueTimeoutMs        int `mapstructure:"queue_timeout_ms"`
	CleanupIntervalMs     int `mapstructure:"cleanup_interval_ms"`
	MaxSessionAgeMs       int `mapstructure:"max_session_age_ms"`
}

// CacheConfig controls the audit verdict cache.
type CacheConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Capacity int  `mapstructure:"capacity"`
	TTLMs    int  `mapstructure:"ttl_ms"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from the bound viper instance and applies
// defaults. Boolean options set through the environment are parsed with
// ParseBool so a typo reads as false rather than an error.
func Load() (*Config, error) {
	normalizeBools()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// ParseBool accepts only the literal strings "true" and "false", case
// insensitively. Anything else, including the empty string, is false.
func ParseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// boolKeys are the options parsed with ParseBool rather than loose casting,
// so environment values like "1" or "yes" do not silently enable a feature.
var boolKeys = []string{
	"session.enable_persistence",
	"cache.enabled",
	"logging.development",
}

// normalizeBools rewrites set boolean keys as real bools before unmarshal.
func normalizeBools() {
	for _, key := range boolKeys {
		if viper.IsSet(key) {
			viper.Set(key, ParseBool(viper.GetString(key)))
		}
	}
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Session.StateDir == "" {
		cfg.Session.StateDir = ".mcp-gan-state"
	}
	if !viper.IsSet("session.enable_persistence") {
		cfg.Session.EnablePersistence = true
	}

	if cfg.Judge.Executable == "" {
		cfg.Judge.Executable = "codex"
	}
	if cfg.Judge.TimeoutMs == 0 {
		cfg.Judge.TimeoutMs = 30_000
	}
	if cfg.Judge.Retries == 0 {
		cfg.Judge.Retries = 2
	}

	if cfg.Audit.TimeoutMs == 0 {
		cfg.Audit.TimeoutMs = 30_000
	}
	if cfg.Audit.ProgressIntervalMs == 0 {
		cfg.Audit.ProgressIntervalMs = 5_000
	}
	if !viper.IsSet("audit.timeout_retries") {
		cfg.Audit.TimeoutRetries = 1
	}

	if cfg.Gate.MaxConcurrentAudits == 0 {
		cfg.Gate.MaxConcurrentAudits = 10
	}
	if cfg.Gate.MaxConcurrentSessions == 0 {
		cfg.Gate.MaxConcurrentSessions = 50
	}
	if cfg.Gate.QueueTimeoutMs == 0 {
		cfg.Gate.QueueTimeoutMs = 30_000
	}
	if cfg.Gate.CleanupIntervalMs == 0 {
		cfg.Gate.CleanupIntervalMs = int(time.Hour / time.Millisecond)
	}
	if cfg.Gate.MaxSessionAgeMs == 0 {
		cfg.Gate.MaxSessionAgeMs = int(24 * time.Hour / time.Millisecond)
	}

	if !viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = true
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 512
	}
	if cfg.Cache.TTLMs == 0 {
		cfg.Cache.TTLMs = int(10 * time.Minute / time.Millisecond)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Judge.TimeoutMs < 5_000 || c.Judge.TimeoutMs > 300_000 {
		return fmt.Errorf("judge timeout %dms out of range (5000-300000)", c.Judge.TimeoutMs)
	}
	if c.Audit.TimeoutMs <= 0 {
		return fmt.Errorf("audit timeout must be positive")
	}
	if c.Gate.MaxConcurrentAudits <= 0 || c.Gate.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("concurrency limits must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	return nil
}

// JudgeTimeout returns the per-call judge deadline.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.Judge.TimeoutMs) * time.Millisecond
}

// AuditTimeout returns the per-audit deadline.
func (c *Config) AuditTimeout() time.Duration {
	return time.Duration(c.Audit.TimeoutMs) * time.Millisecond
}

// ProgressInterval returns the heartbeat cadence.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Audit.ProgressIntervalMs) * time.Millisecond
}

// QueueTimeout returns how long an audit waits for a slot.
func (c *Config) QueueTimeout() time.Duration {
	return time.Duration(c.Gate.QueueTimeoutMs) * time.Millisecond
}

// CleanupInterval returns the eviction loop cadence.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Gate.CleanupIntervalMs) * time.Millisecond
}

// MaxSessionAge returns the idle-session eviction cutoff.
func (c *Config) MaxSessionAge() time.Duration {
	return time.Duration(c.Gate.MaxSessionAgeMs) * time.Millisecond
}

// CacheTTL returns the verdict cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMs) * time.Millisecond
}
