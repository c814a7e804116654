package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesTimerDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
database:
  host: localhost
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timer.DefaultDurationSeconds != 1500 {
		t.Errorf("default duration = %d, want 1500", cfg.Timer.DefaultDurationSeconds)
	}
	if cfg.Timer.MinSavableSeconds != 60 {
		t.Errorf("min savable = %d, want 60", cfg.Timer.MinSavableSeconds)
	}
	if cfg.Timer.LeaderboardDays != 7 {
		t.Errorf("leaderboard days = %d, want 7", cfg.Timer.LeaderboardDays)
	}
	if cfg.Core.Telegram.RunMode != "longpoll" {
		t.Errorf("run mode = %q, want longpoll", cfg.Core.Telegram.RunMode)
	}
}

func TestLoadOverridesTimerSection(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
timer:
  default_duration_seconds: 3000
  min_savable_seconds: 120
  leaderboard_days: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timer.DefaultDurationSeconds != 3000 {
		t.Errorf("default duration = %d, want 3000", cfg.Timer.DefaultDurationSeconds)
	}
	if cfg.Timer.MinSavableSeconds != 120 {
		t.Errorf("min savable = %d, want 120", cfg.Timer.MinSavableSeconds)
	}
	if cfg.Timer.LeaderboardDays != 30 {
		t.Errorf("leaderboard days = %d, want 30", cfg.Timer.LeaderboardDays)
	}
}

func TestLoadRejectsNegativeTimerValues(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
timer:
  min_savable_seconds: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative timer setting")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
timer:
  default_duration_seconds: 1500
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing telegram token")
	}
}
