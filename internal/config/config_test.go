package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "birdnest.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	t.Setenv("TEST_FEED_HOST", "feed.example.com")
	path := writeConfig(t, `
feed:
  url: https://${TEST_FEED_HOST}/drones
  timeout: 3s
  backoff:
    initial_delay: 250ms
    max_fails: 4
zone:
  radius: 50000
monitor:
  poll_interval: 1s
  max_positions: 10
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Feed.URL != "https://feed.example.com/drones" {
		t.Errorf("env not expanded: %s", cfg.Feed.URL)
	}
	if cfg.Feed.Timeout != 3*time.Second || cfg.Feed.Backoff.InitialDelay != 250*time.Millisecond || cfg.Feed.Backoff.MaxFails != 4 {
		t.Errorf("unexpected feed config: %+v", cfg.Feed)
	}
	// Unset keys keep their defaults.
	if cfg.Feed.Backoff.IncreaseFactor != 1.5 || cfg.Zone.NestX != 250000 {
		t.Errorf("defaults lost: %+v %+v", cfg.Feed.Backoff, cfg.Zone)
	}
	if cfg.Zone.Radius != 50000 || cfg.Monitor.MaxPositions != 10 || cfg.Monitor.PollInterval != time.Second {
		t.Errorf("unexpected values: %+v %+v", cfg.Zone, cfg.Monitor)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format = %s", cfg.Logging.Format)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "feed:\n  uri: http://x\n",
		"bad duration":   "monitor:\n  poll_interval: soon\n",
		"bad factor":     "pilots:\n  backoff:\n    increase_factor: 0.5\n",
		"bad level":      "logging:\n  level: loud\n",
		"non-http url":   "feed:\n  url: ftp://example.com\n",
		"zero positions": "monitor:\n  max_positions: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), ""); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.PollInterval != 2*time.Second || cfg.Monitor.ViolationTTL != 10*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg.Monitor)
	}
	if cfg.Admin.Addr != ":3000" {
		t.Errorf("admin addr = %s", cfg.Admin.Addr)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DRONE_API_URL":        "http://localhost:1/drones",
		"PILOT_API_URL":        "http://localhost:1/pilots",
		"API_REQUEST_TIMEOUT":  "1500",
		"MAX_BACKOFF_DELAY_MS": "30000",
		"MAX_POSITIONS":        "7",
		"LOGGING_LEVEL":        "warn",
		"PORT":                 "8080",
		"GREPTIMEDB_ENDPOINT":  "localhost:4001",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Feed.URL != env["DRONE_API_URL"] || cfg.Pilots.URL != env["PILOT_API_URL"] {
		t.Errorf("urls not applied: %s %s", cfg.Feed.URL, cfg.Pilots.URL)
	}
	if cfg.Feed.Timeout != 1500*time.Millisecond || cfg.Pilots.Timeout != 1500*time.Millisecond {
		t.Errorf("timeouts not applied: %v %v", cfg.Feed.Timeout, cfg.Pilots.Timeout)
	}
	if cfg.Feed.Backoff.MaxDelay != 30*time.Second || cfg.Pilots.Backoff.MaxDelay != 30*time.Second {
		t.Errorf("max delay not applied")
	}
	if cfg.Monitor.MaxPositions != 7 || cfg.Logging.Level != "warn" || cfg.Admin.Addr != ":8080" {
		t.Errorf("unexpected config: %+v %+v %+v", cfg.Monitor, cfg.Logging, cfg.Admin)
	}
	if cfg.Greptime.Endpoint != "localhost:4001" {
		t.Errorf("greptime endpoint = %q", cfg.Greptime.Endpoint)
	}

	bad := Default()
	err := bad.ApplyEnv(func(k string) (string, bool) {
		if k == "MAX_POSITIONS" {
			return "many", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "MAX_POSITIONS") {
		t.Fatalf("expected MAX_POSITIONS error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Monitor.MaxPositions = 0
	cfg.Zone.Radius = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"max_positions", "zone.radius"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	cfg = Default()
	cfg.Watchdog = Watchdog{Disabled: true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled watchdog needs no interval: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BIRDNEST_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BIRDNEST_TEST_DOTENV", "")
	os.Unsetenv("BIRDNEST_TEST_DOTENV")
	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("BIRDNEST_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("variable not loaded: %q", got)
	}
}

func TestCustomSchemaFile(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "strict.cue")
	if err := os.WriteFile(schema, []byte("#Config: {monitor?: {max_positions?: int & <=5}}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(writeConfig(t, "monitor:\n  max_positions: 10\n"), schema); err == nil {
		t.Fatalf("expected custom schema to reject max_positions 10")
	}
	if _, err := Load(writeConfig(t, "monitor:\n  max_positions: 3\n"), schema); err != nil {
		t.Fatalf("custom schema rejected valid config: %v", err)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "birdnest.yaml"), "")
	if err != nil {
		t.Fatalf("example config rejected: %v", err)
	}
	if cfg.Feed.Backoff.MaxDelay != time.Minute || cfg.Greptime.Table != "ndz_violations" {
		t.Errorf("unexpected example values: %+v %+v", cfg.Feed.Backoff, cfg.Greptime)
	}
}
