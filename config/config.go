// Package config loads the toolbridge process configuration.
//
// The file is YAML. ${VAR_NAME} references are expanded from the
// environment before parsing, and durations are written as Go duration
// strings ("30s", "2m"). Every field has a default, so a missing file is
// not an error for callers that use [LoadOrDefault].
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvAutoConnect = "TOOLBRIDGE_AUTO_CONNECT"
	EnvLoadDotenv  = "TOOLBRIDGE_LOAD_DOTENV"
)

// DefaultAutoConnect is the bootstrap list used when neither the file nor
// the environment names one.
const DefaultAutoConnect = "filesystem,git,demo"

// Config is the complete toolbridge configuration.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Backends BackendsConfig `yaml:"backends"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
	Server   ServerConfig   `yaml:"server"`
	Dotenv   DotenvConfig   `yaml:"dotenv"`
}

// BridgeConfig names the bridge to its clients.
type BridgeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// BackendsConfig locates the backend descriptors.
type BackendsConfig struct {
	// File is the descriptor file (JSON, YAML or TOML).
	File string `yaml:"file"`
	// ScriptsDir resolves relative script arguments of stdio backends.
	ScriptsDir string `yaml:"scripts_dir"`
	// AutoConnect is connected in order during initialization.
	AutoConnect []string `yaml:"auto_connect"`
}

// TimeoutsConfig bounds the blocking broker operations.
type TimeoutsConfig struct {
	Connect  time.Duration `yaml:"-"`
	Call     time.Duration `yaml:"-"`
	Shutdown time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectRaw  string `yaml:"connect"`
	CallRaw     string `yaml:"call"`
	ShutdownRaw string `yaml:"shutdown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditConfig enables the invocation log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the optional streamable HTTP listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DotenvConfig controls loading of a .env file.
type DotenvConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{Name: "toolbridge", Version: "0.1.0"},
		Backends: BackendsConfig{
			File:        "servers.json",
			ScriptsDir:  ".",
			AutoConnect: splitList(DefaultAutoConnect),
		},
		Timeouts: TimeoutsConfig{
			Connect:  30 * time.Second,
			Call:     120 * time.Second,
			Shutdown: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Dotenv:  DotenvConfig{Enabled: true, Path: ".env"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Unset fields keep their defaults and environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.ApplyEnv()
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		return cfg, cfg.ApplyEnv()
	}
	return cfg, err
}

// Parse decodes YAML configuration data.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Bridge.Name == "" {
		return fmt.Errorf("bridge.name is required")
	}
	if c.Timeouts.Connect <= 0 || c.Timeouts.Call <= 0 || c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect", cfg.Timeouts.ConnectRaw, &cfg.Timeouts.Connect},
		{"call", cfg.Timeouts.CallRaw, &cfg.Timeouts.Call},
		{"shutdown", cfg.Timeouts.ShutdownRaw, &cfg.Timeouts.Shutdown},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing timeouts.%s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ApplyEnv applies TOOLBRIDGE_* overrides. Load calls it; call it again
// after LoadDotenv so that .env values take effect. A set but empty
// TOOLBRIDGE_AUTO_CONNECT disables bootstrapping.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAutoConnect); ok {
		c.Backends.AutoConnect = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvLoadDotenv); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", EnvLoadDotenv, v, err)
		}
		c.Dotenv.Enabled = enabled
	}
	return nil
}

// LoadDotenv loads the configured .env file into the process environment.
// Variables already set are never overridden. It reports whether a file
// was loaded; a missing file is not an error.
func (c *Config) LoadDotenv() (bool, error) {
	if !c.Dotenv.Enabled || c.Dotenv.Path == "" {
		return false, nil
	}
	if _, err := os.Stat(c.Dotenv.Path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(c.Dotenv.Path); err != nil {
		return false, fmt.Errorf("loading %s: %w", c.Dotenv.Path, err)
	}
	return true, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
