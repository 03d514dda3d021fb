package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/neotype/internal/model"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	s, err := cfg.Apply(Defaults())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s != Defaults() {
		t.Fatalf("empty config changed defaults: %+v", s)
	}
}

func TestLoadConfigApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[test]
duration = 60
difficulty = "Hard"

[gateway]
url = "http://localhost:8000"
timeout = "3s"

[anticheat]
rapid-ms = 40

[telemetry]
batch-size = 5
flush-interval = "1m"

[cache]
leaderboard-ttl = "30s"

[history]
limit = 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	s, err := cfg.Apply(Defaults())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Duration != 60 || s.Difficulty != model.Hard {
		t.Fatalf("unexpected test settings: %+v", s)
	}
	if s.GatewayURL != "http://localhost:8000" || s.Offline || s.GatewayTimeout != 3*time.Second {
		t.Fatalf("unexpected gateway settings: %+v", s)
	}
	if s.RapidMs != 40 || s.ProgressEvery != 10 {
		t.Fatalf("unexpected anticheat settings: %+v", s)
	}
	if s.BatchSize != 5 || s.FlushInterval != time.Minute || s.TelemetryTTL != 24*time.Hour {
		t.Fatalf("unexpected telemetry settings: %+v", s)
	}
	if s.LeaderboardTTL != 30*time.Second || s.HistoryLimit != 20 {
		t.Fatalf("unexpected cache/history settings: %+v", s)
	}
}

func TestApplyRejectsInvalid(t *testing.T) {
	bad := "expert"
	if _, err := (FileConfig{Test: TestConfig{Difficulty: &bad}}).Apply(Defaults()); err == nil {
		t.Fatalf("expected difficulty error")
	}
	zero := 0
	if _, err := (FileConfig{Test: TestConfig{Duration: &zero}}).Apply(Defaults()); err == nil {
		t.Fatalf("expected duration error")
	}
	junk := "soon"
	if _, err := (FileConfig{Cache: CacheConfig{LeaderboardTTL: &junk}}).Apply(Defaults()); err == nil {
		t.Fatalf("expected ttl parse error")
	}
}

func TestTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("template should decode: %v", err)
	}
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_STATE_HOME", "/state")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "neotype", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "neotype", "neotype.db") {
		t.Fatalf("unexpected db path %q", got)
	}
	if got := DefaultLogPath(); got != filepath.Join("/state", "neotype", "neotype.log") {
		t.Fatalf("unexpected log path %q", got)
	}
}
