package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
relay:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://localhost:3000"
recorder:
  capture_stacks: true
  reconnect_base: 250ms
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Relay.Port != 9090 {
		t.Errorf("Relay.Port = %d, want 9090", cfg.Relay.Port)
	}
	if cfg.Relay.Host != "0.0.0.0" {
		t.Errorf("Relay.Host = %q, want %q", cfg.Relay.Host, "0.0.0.0")
	}
	if len(cfg.Relay.AllowedOrigins) != 1 || cfg.Relay.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Relay.AllowedOrigins = %v", cfg.Relay.AllowedOrigins)
	}
	if !cfg.Recorder.CaptureStacks {
		t.Error("Recorder.CaptureStacks = false, want true")
	}
	if cfg.Recorder.ReconnectBase != 250*time.Millisecond {
		t.Errorf("Recorder.ReconnectBase = %v, want 250ms", cfg.Recorder.ReconnectBase)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Recorder.ReconnectMax != 30*time.Second {
		t.Errorf("Recorder.ReconnectMax = %v, want default 30s", cfg.Recorder.ReconnectMax)
	}
	if cfg.Model.MaxLogEntries != 500 {
		t.Errorf("Model.MaxLogEntries = %d, want default 500", cfg.Model.MaxLogEntries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Relay.Port != DefaultPort {
		t.Errorf("Relay.Port = %d, want default %d", cfg.Relay.Port, DefaultPort)
	}
	if cfg.Relay.Host != "127.0.0.1" {
		t.Errorf("Relay.Host = %q, want default %q", cfg.Relay.Host, "127.0.0.1")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "relay:\n  port: 70000\n"},
		{"zero surface queue", "relay:\n  surface_queue: 0\n"},
		{"max below base", "recorder:\n  reconnect_base: 10s\n  reconnect_max: 1s\n"},
		{"zero open intervals", "model:\n  max_open_intervals: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should reject the config")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:   "9191",
		EnvHost:   "10.0.0.5",
		EnvStacks: "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.Recorder.Port != 9191 {
		t.Errorf("Recorder.Port = %d, want 9191", cfg.Recorder.Port)
	}
	if !cfg.Recorder.CaptureStacks {
		t.Error("Recorder.CaptureStacks should be enabled by LOOPVIZ_STACKS=1")
	}
	if got, want := cfg.RecorderEndpoint(), "ws://10.0.0.5:9191/"; got != want {
		t.Errorf("RecorderEndpoint() = %q, want %q", got, want)
	}
}

func TestApplyEnvDefaultsToWellKnownPort(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(func(string) (string, bool) { return "", false }); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}
	if got, want := cfg.RecorderEndpoint(), "ws://127.0.0.1:8080/"; got != want {
		t.Errorf("RecorderEndpoint() = %q, want %q", got, want)
	}
}

func TestApplyEnvBadPortKeepsPrevious(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == EnvPort {
			return "eighty", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("ApplyEnv() should reject a non-numeric port")
	}
	if cfg.Recorder.Port != DefaultPort {
		t.Errorf("Recorder.Port = %d, want unchanged %d", cfg.Recorder.Port, DefaultPort)
	}
}

func TestRelayAddr(t *testing.T) {
	cfg := Default()
	cfg.Relay.Host = "::1"
	cfg.Relay.Port = 7000
	if got := cfg.RelayAddr(); got != "[::1]:7000" {
		t.Errorf("RelayAddr() = %q", got)
	}
}
