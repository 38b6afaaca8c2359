package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment values set by whatever launches the observed process.
const (
	EnvPort   = "LOOPVIZ_PORT"
	EnvHost   = "LOOPVIZ_HOST"
	EnvStacks = "LOOPVIZ_STACKS"
)

// DefaultPort is the well-known relay port used when nothing else is
// configured.
const DefaultPort = 8080

type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	Recorder RecorderConfig `yaml:"recorder"`
	Model    ModelConfig    `yaml:"model"`
	Log      LogConfig      `yaml:"log"`
}

type RelayConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	SurfaceQueue   int      `yaml:"surface_queue"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RecorderConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	CaptureStacks bool          `yaml:"capture_stacks"`
	SendQueue     int           `yaml:"send_queue"`
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
}

type ModelConfig struct {
	MaxLogEntries    int `yaml:"max_log_entries"`
	MaxOpenIntervals int `yaml:"max_open_intervals"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:         "127.0.0.1",
			Port:         DefaultPort,
			SurfaceQueue: 256,
		},
		Recorder: RecorderConfig{
			Host:          "127.0.0.1",
			Port:          DefaultPort,
			SendQueue:     1024,
			ReconnectBase: time.Second,
			ReconnectMax:  30 * time.Second,
		},
		Model: ModelConfig{
			MaxLogEntries:    500,
			MaxOpenIntervals: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path and applies it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d out of range", c.Relay.Port)
	}
	if c.Recorder.Port <= 0 || c.Recorder.Port > 65535 {
		return fmt.Errorf("recorder.port %d out of range", c.Recorder.Port)
	}
	if c.Relay.SurfaceQueue <= 0 {
		return fmt.Errorf("relay.surface_queue must be positive")
	}
	if c.Recorder.SendQueue <= 0 {
		return fmt.Errorf("recorder.send_queue must be positive")
	}
	if c.Recorder.ReconnectBase <= 0 || c.Recorder.ReconnectMax < c.Recorder.ReconnectBase {
		return fmt.Errorf("recorder reconnect delays must satisfy 0 < base <= max")
	}
	if c.Model.MaxOpenIntervals <= 0 {
		return fmt.Errorf("model.max_open_intervals must be positive")
	}
	return nil
}

// ApplyEnv overrides recorder settings from the launch environment. lookup
// is usually os.LookupEnv. A port that does not parse is reported and the
// previous value kept.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && strings.TrimSpace(v) != "" {
		c.Recorder.Host = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvStacks); ok {
		c.Recorder.CaptureStacks = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s=%q is not a valid port", EnvPort, v)
		}
		c.Recorder.Port = port
	}
	return nil
}

// RecorderEndpoint is the websocket URL the recorder dials.
func (c *Config) RecorderEndpoint() string {
	return "ws://" + net.JoinHostPort(c.Recorder.Host, strconv.Itoa(c.Recorder.Port)) + "/"
}

// RelayAddr is the relay's listen address.
func (c *Config) RelayAddr() string {
	return net.JoinHostPort(c.Relay.Host, strconv.Itoa(c.Relay.Port))
}
