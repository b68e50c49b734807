// Package config loads the configuration of the fetch-bridge serve program
// from a YAML file, a .env file and FETCH_BRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server kinds.
const (
	ServerNetHTTP  = "nethttp"
	ServerFastHTTP = "fasthttp"
)

// Config is the effective configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig selects and tunes the platform host.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Kind            string        `yaml:"kind"` // nethttp|fasthttp
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BridgeConfig tunes the adapter.
type BridgeConfig struct {
	DefaultScheme string `yaml:"default_scheme"`
	Mode          string `yaml:"mode"`
	BufferSize    int    `yaml:"buffer_size"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Path string `yaml:"path"` // empty disables the endpoint
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Kind:            ServerNetHTTP,
			ShutdownTimeout: 10 * time.Second,
		},
		Bridge: BridgeConfig{
			DefaultScheme: "https",
			Mode:          "production",
			BufferSize:    32 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped if path is empty or the file does not exist), then
// environment overrides. Variables from envFile are loaded into the process
// environment first without replacing variables already set.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath returns flagPath if it was set explicitly, otherwise
// FETCH_BRIDGE_CONFIG if present, otherwise flagPath.
func ResolvePath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("FETCH_BRIDGE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// ApplyEnv overrides cfg with FETCH_BRIDGE_* environment variables.
func ApplyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	str("FETCH_BRIDGE_ADDR", &cfg.Server.Addr)
	str("FETCH_BRIDGE_SERVER", &cfg.Server.Kind)
	str("FETCH_BRIDGE_DEFAULT_SCHEME", &cfg.Bridge.DefaultScheme)
	str("FETCH_BRIDGE_MODE", &cfg.Bridge.Mode)
	str("FETCH_BRIDGE_LOG_LEVEL", &cfg.Logging.Level)
	str("FETCH_BRIDGE_LOG_FORMAT", &cfg.Logging.Format)
	str("FETCH_BRIDGE_METRICS_PATH", &cfg.Metrics.Path)

	if v := strings.TrimSpace(os.Getenv("FETCH_BRIDGE_BUFFER_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FETCH_BRIDGE_BUFFER_SIZE: %w", err)
		}
		cfg.Bridge.BufferSize = n
	}
	if v := strings.TrimSpace(os.Getenv("FETCH_BRIDGE_SHUTDOWN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FETCH_BRIDGE_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Server.Kind {
	case ServerNetHTTP, ServerFastHTTP:
	default:
		return fmt.Errorf("server.kind: unknown server %q", c.Server.Kind)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr: must not be empty")
	}
	switch c.Bridge.DefaultScheme {
	case "http", "https":
	default:
		return fmt.Errorf("bridge.default_scheme: want http or https, have %q", c.Bridge.DefaultScheme)
	}
	if c.Bridge.BufferSize <= 0 {
		return fmt.Errorf("bridge.buffer_size: must be positive, have %d", c.Bridge.BufferSize)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout: must not be negative, have %s", c.Server.ShutdownTimeout)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path: must start with /, have %q", c.Metrics.Path)
	}
	return nil
}
