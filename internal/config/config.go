// ABOUTME: Configuration loading and parsing for altair-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "ALTAIR_CONFIG"

// Database drivers.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Config represents the complete altair-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Installer InstallerConfig `yaml:"installer" toml:"installer"`
	Dispatch  DispatchConfig  `yaml:"dispatch" toml:"dispatch"`
	Model     ModelConfig     `yaml:"model" toml:"model"`
}

// AuthConfig holds authentication configuration.
// When JWTSecret is empty the operator API is unauthenticated.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// InstallerConfig holds plugin installer timing and source restrictions
type InstallerConfig struct {
	ArchiveDelay    time.Duration `yaml:"-" toml:"-"`
	RepositoryDelay time.Duration `yaml:"-" toml:"-"`

	// Empty allows any host
	RepositoryHost string `yaml:"repository_host" toml:"repository_host"`

	// Raw string values for unmarshaling
	ArchiveDelayRaw    string `yaml:"archive_delay" toml:"archive_delay"`
	RepositoryDelayRaw string `yaml:"repository_delay" toml:"repository_delay"`
}

// DispatchConfig holds tool-call dispatch configuration
type DispatchConfig struct {
	DedupeTTL  time.Duration `yaml:"-" toml:"-"`
	DedupeSize int           `yaml:"dedupe_size" toml:"dedupe_size"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// ModelConfig holds the operator-chosen parts of the live model setup
type ModelConfig struct {
	Name         string `yaml:"name" toml:"name"`
	Voice        string `yaml:"voice" toml:"voice"`
	GoogleSearch bool   `yaml:"google_search" toml:"google_search"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Driver: DriverModernc, Path: "altair.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Installer: InstallerConfig{
			ArchiveDelay:    time.Second,
			RepositoryDelay: 1500 * time.Millisecond,
			RepositoryHost:  "github.com",
		},
		Dispatch: DispatchConfig{
			DedupeTTL:  5 * time.Minute,
			DedupeSize: 10000,
		},
		Model: ModelConfig{GoogleSearch: true},
	}
}

// DefaultPath resolves the config file location: $ALTAIR_CONFIG, then
// $XDG_CONFIG_HOME/altair/gateway.yaml, then ~/.config/altair/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "altair", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gateway.yaml"
	}
	return filepath.Join(home, ".config", "altair", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep the values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case "", DriverModernc, DriverCgo:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverModernc, DriverCgo, c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Installer.ArchiveDelay < 0 || c.Installer.RepositoryDelay < 0 {
		return fmt.Errorf("installer delays must not be negative")
	}
	if c.Dispatch.DedupeTTL < 0 {
		return fmt.Errorf("dispatch.dedupe_ttl must not be negative")
	}
	if c.Dispatch.DedupeSize < 0 {
		return fmt.Errorf("dispatch.dedupe_size must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Installer.ArchiveDelayRaw != "" {
		cfg.Installer.ArchiveDelay, err = time.ParseDuration(cfg.Installer.ArchiveDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing archive_delay %q: %w", cfg.Installer.ArchiveDelayRaw, err)
		}
	}

	if cfg.Installer.RepositoryDelayRaw != "" {
		cfg.Installer.RepositoryDelay, err = time.ParseDuration(cfg.Installer.RepositoryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing repository_delay %q: %w", cfg.Installer.RepositoryDelayRaw, err)
		}
	}

	if cfg.Dispatch.DedupeTTLRaw != "" {
		cfg.Dispatch.DedupeTTL, err = time.ParseDuration(cfg.Dispatch.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Dispatch.DedupeTTLRaw, err)
		}
	}

	return nil
}
