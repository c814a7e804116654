package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/focusbot/core/config"
	coredatabase "github.com/m3rciful/focusbot/core/database"
)

// TimerConfig holds the countdown-timer policy knobs.
type TimerConfig struct {
	// DefaultDurationSeconds is applied when a start command has no duration.
	DefaultDurationSeconds int `yaml:"default_duration_seconds" envconfig:"TIMER_DEFAULT_DURATION_SECONDS"`
	// MinSavableSeconds is the shortest session worth persisting.
	MinSavableSeconds int `yaml:"min_savable_seconds" envconfig:"TIMER_MIN_SAVABLE_SECONDS"`
	// LeaderboardDays bounds the /top window.
	LeaderboardDays int `yaml:"leaderboard_days" envconfig:"TIMER_LEADERBOARD_DAYS"`
}

// Config aggregates core bot settings with focusbot-specific sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Timer    TimerConfig         `yaml:"timer"`
}

// CoreConfig exposes the embedded core configuration for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalizeTimer(&cfg.Timer); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeTimer(tc *TimerConfig) error {
	if tc.DefaultDurationSeconds < 0 || tc.MinSavableSeconds < 0 || tc.LeaderboardDays < 0 {
		return fmt.Errorf("timer settings must be >= 0")
	}
	if tc.DefaultDurationSeconds == 0 {
		tc.DefaultDurationSeconds = 1500
	}
	if tc.MinSavableSeconds == 0 {
		tc.MinSavableSeconds = 60
	}
	if tc.LeaderboardDays == 0 {
		tc.LeaderboardDays = 7
	}
	return nil
}
