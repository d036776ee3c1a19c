// Package config loads the orchestrator's JSON configuration file, with
// .env-sourced overrides for secrets, mirroring the teacher's
// godotenv.Load() bootstrap convention.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// BrokerMode is the closed enum of §6.
type BrokerMode string

const (
	BrokerDisabled  BrokerMode = "disabled"
	BrokerSemiAuto  BrokerMode = "semi_auto"
	BrokerFullAuto  BrokerMode = "full_auto"
)

// RateLimitConfig is per-endpoint C2 configuration.
type RateLimitConfig struct {
	RequestsPerMinute int     `json:"rpm"`
	MinDelaySeconds   float64 `json:"min_delay_s"`
	MaxBackoffSeconds int     `json:"max_backoff_s"`
}

// ChannelConfig holds per-notification-channel credentials and event flags.
type ChannelConfig struct {
	Enabled    bool            `json:"enabled"`
	WebhookURL string          `json:"webhook_url"`
	Events     map[string]bool `json:"events"`
}

// DeduplicationConfig configures C3.
type DeduplicationConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// LLMTierConfig configures one of the three C4 tiers.
type LLMTierConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	ThinkingBudget int    `json:"thinking_budget"`
}

// LLMConfig configures C4 in full.
type LLMConfig struct {
	Fast             LLMTierConfig      `json:"fast"`
	Balanced         LLMTierConfig      `json:"balanced"`
	Reasoning        LLMTierConfig      `json:"reasoning"`
	QuotaSoftLimits  map[string]int     `json:"quota_soft_limits"`
}

// AdminBridgeConfig configures the supplemental loopback HTTP surface of
// SPEC_FULL.md §6/§11. Disabled by default.
type AdminBridgeConfig struct {
	Enabled        bool   `json:"enabled"`
	Addr           string `json:"addr"`
	TOTPIssuer     string `json:"totp_issuer"`
	TOTPSecret     string `json:"totp_secret"`
	JWTSecret      string `json:"jwt_secret"`
	AdminTokenHash string `json:"admin_token_hash"` // bcrypt hash of the shared operator credential
}

// Config is the full recognized top-level option set from §6.
type Config struct {
	MonitoringIntervalMinutes int                        `json:"monitoring_interval_minutes"`
	BrokerMode                BrokerMode                 `json:"broker_mode"`
	ConfidenceThreshold       float64                    `json:"confidence_threshold"`
	MaxPositionPct            float64                    `json:"max_position_pct"`
	StaleDays                 int                        `json:"stale_days"`
	MaxWatchlistPerRun        int                        `json:"max_watchlist_per_run"`
	ProTriggerScore           float64                    `json:"pro_trigger_score"`
	Deduplication             DeduplicationConfig        `json:"deduplication"`
	Channels                  map[string]ChannelConfig   `json:"channels"`
	RateLimits                map[string]RateLimitConfig `json:"rate_limits"`
	FREDAPIKey                string                     `json:"fred_api_key"`
	LLM                       LLMConfig                  `json:"llm"`
	AdminBridge               AdminBridgeConfig          `json:"admin_bridge"`

	// DBPath is the single embedded-store file (§6 "Persistent store file").
	DBPath       string `json:"db_path"`
	CommandDir   string `json:"command_dir"`
	StopLossPct      float64 `json:"stop_loss_pct"`
	ProfitTargetPct  float64 `json:"profit_target_pct"`
	TrailingStopPct  float64 `json:"trailing_stop_pct"`
	MaxHoldHours     float64 `json:"max_hold_hours"`
	MinHoldHours     float64 `json:"min_hold_hours"`
}

// Default returns sane defaults matching spec.md's documented defaults
// (5% profit target, -3% stop loss, 2% trailing, 72h max hold, 1h min
// hold, 0.6 dedup threshold, semi_auto broker mode).
func Default() *Config {
	return &Config{
		MonitoringIntervalMinutes: 15,
		BrokerMode:                BrokerSemiAuto,
		ConfidenceThreshold:       0.70,
		MaxPositionPct:            0.10,
		StaleDays:                 3,
		MaxWatchlistPerRun:        10,
		ProTriggerScore:           40,
		Deduplication:             DeduplicationConfig{SimilarityThreshold: 0.6},
		Channels:                  map[string]ChannelConfig{},
		RateLimits:                map[string]RateLimitConfig{},
		DBPath:                    "trading_data/hightrade.db",
		CommandDir:                "trading_data/commands",
		StopLossPct:               -0.03,
		ProfitTargetPct:           0.05,
		TrailingStopPct:           0.02,
		MaxHoldHours:              72,
		MinHoldHours:              1,
	}
}

// Load reads .env (if present, never required) then the JSON config file at
// path, overlaying it onto Default().
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; secrets may also come from the process env directly

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		cfg.FREDAPIKey = v
	}
}

// Validate backs the `orchestrator health` CLI command.
func (c *Config) Validate() error {
	switch c.BrokerMode {
	case BrokerDisabled, BrokerSemiAuto, BrokerFullAuto:
	default:
		return fmt.Errorf("config: invalid broker_mode %q", c.BrokerMode)
	}
	if c.MonitoringIntervalMinutes <= 0 {
		return fmt.Errorf("config: monitoring_interval_minutes must be positive")
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("config: max_position_pct must be in (0, 1]")
	}
	if c.Deduplication.SimilarityThreshold <= 0 || c.Deduplication.SimilarityThreshold > 1 {
		return fmt.Errorf("config: deduplication.similarity_threshold must be in (0, 1]")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.CommandDir == "" {
		return fmt.Errorf("config: command_dir is required")
	}
	return nil
}
