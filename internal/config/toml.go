// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/neotype/internal/model"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Test      TestConfig      `toml:"test"`
	Gateway   GatewayConfig   `toml:"gateway"`
	AntiCheat AntiCheatConfig `toml:"anticheat"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Cache     CacheConfig     `toml:"cache"`
	History   HistoryConfig   `toml:"history"`
}

// TestConfig maps test-related settings.
type TestConfig struct {
	Duration    *int    `toml:"duration"`
	Difficulty  *string `toml:"difficulty"`
	WordListDir *string `toml:"wordlist-dir"`
}

// GatewayConfig maps backend settings.
type GatewayConfig struct {
	URL     *string `toml:"url"`
	Timeout *string `toml:"timeout"`
	Offline *bool   `toml:"offline"`
}

// AntiCheatConfig maps anomaly detection settings.
type AntiCheatConfig struct {
	RapidMs       *int `toml:"rapid-ms"`
	ProgressEvery *int `toml:"progress-every"`
}

// TelemetryConfig maps batch upload settings.
type TelemetryConfig struct {
	BatchSize     *int    `toml:"batch-size"`
	FlushInterval *string `toml:"flush-interval"`
	TTL           *string `toml:"ttl"`
}

// CacheConfig maps leaderboard cache settings.
type CacheConfig struct {
	LeaderboardTTL *string `toml:"leaderboard-ttl"`
}

// HistoryConfig maps local history settings.
type HistoryConfig struct {
	Limit *int `toml:"limit"`
}

// Settings are resolved runtime settings.
type Settings struct {
	Duration       int
	Difficulty     model.Difficulty
	WordListDir    string
	GatewayURL     string
	GatewayTimeout time.Duration
	Offline        bool
	RapidMs        int
	ProgressEvery  int
	BatchSize      int
	FlushInterval  time.Duration
	TelemetryTTL   time.Duration
	LeaderboardTTL time.Duration
	HistoryLimit   int
}

// Defaults returns settings used when neither file nor flags set a value.
func Defaults() Settings {
	return Settings{
		Duration:       30,
		Difficulty:     model.Medium,
		WordListDir:    DefaultWordListDir(),
		GatewayTimeout: 10 * time.Second,
		Offline:        true,
		RapidMs:        50,
		ProgressEvery:  10,
		BatchSize:      10,
		FlushInterval:  5 * time.Minute,
		TelemetryTTL:   24 * time.Hour,
		LeaderboardTTL: 5 * time.Minute,
		HistoryLimit:   100,
	}
}

// Apply overlays values present in the file onto s. A configured gateway
// URL switches off offline mode unless offline is set explicitly.
func (c FileConfig) Apply(s Settings) (Settings, error) {
	if c.Test.Duration != nil {
		if *c.Test.Duration <= 0 {
			return s, fmt.Errorf("test.duration must be positive")
		}
		s.Duration = *c.Test.Duration
	}
	if c.Test.Difficulty != nil {
		d, err := model.ParseDifficulty(*c.Test.Difficulty)
		if err != nil {
			return s, fmt.Errorf("test.difficulty: %w", err)
		}
		s.Difficulty = d
	}
	if c.Test.WordListDir != nil {
		s.WordListDir = *c.Test.WordListDir
	}
	if c.Gateway.URL != nil {
		s.GatewayURL = *c.Gateway.URL
		s.Offline = s.GatewayURL == ""
	}
	if c.Gateway.Offline != nil {
		s.Offline = *c.Gateway.Offline
	}
	if err := applyDuration(c.Gateway.Timeout, "gateway.timeout", &s.GatewayTimeout); err != nil {
		return s, err
	}
	if c.AntiCheat.RapidMs != nil {
		s.RapidMs = *c.AntiCheat.RapidMs
	}
	if c.AntiCheat.ProgressEvery != nil {
		if *c.AntiCheat.ProgressEvery <= 0 {
			return s, fmt.Errorf("anticheat.progress-every must be positive")
		}
		s.ProgressEvery = *c.AntiCheat.ProgressEvery
	}
	if c.Telemetry.BatchSize != nil {
		if *c.Telemetry.BatchSize <= 0 {
			return s, fmt.Errorf("telemetry.batch-size must be positive")
		}
		s.BatchSize = *c.Telemetry.BatchSize
	}
	if err := applyDuration(c.Telemetry.FlushInterval, "telemetry.flush-interval", &s.FlushInterval); err != nil {
		return s, err
	}
	if err := applyDuration(c.Telemetry.TTL, "telemetry.ttl", &s.TelemetryTTL); err != nil {
		return s, err
	}
	if err := applyDuration(c.Cache.LeaderboardTTL, "cache.leaderboard-ttl", &s.LeaderboardTTL); err != nil {
		return s, err
	}
	if c.History.Limit != nil {
		s.HistoryLimit = *c.History.Limit
	}
	return s, nil
}

func applyDuration(raw *string, name string, dst *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	*dst = d
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Template is written by `neotype config` when no file exists yet.
const Template = `# neotype configuration

[test]
# duration = 30
# difficulty = "medium"
# wordlist-dir = ""

[gateway]
# url = "https://neotype.example"
# timeout = "10s"
# offline = true

[anticheat]
# rapid-ms = 50
# progress-every = 10

[telemetry]
# batch-size = 10
# flush-interval = "5m"
# ttl = "24h"

[cache]
# leaderboard-ttl = "5m"

[history]
# limit = 100
`
