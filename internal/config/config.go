// Package config loads paroxysm configuration.
//
// Settings come from a YAML file, an optional .env file and PAROXYSM_*
// environment variables, in increasing order of precedence. The core only
// consumes the administrator set at runtime; everything else is read once at
// startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "paroxysm.yaml"

// Config is the full application configuration.
type Config struct {
	// Database is the SQLite database file.
	Database string `yaml:"database"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Admins may create and edit general keywords.
	Admins  []string      `yaml:"admins"`
	IRC     IRCConfig     `yaml:"irc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Flood   FloodConfig   `yaml:"flood"`
}

// IRCConfig holds transport connection parameters.
type IRCConfig struct {
	Server         string   `yaml:"server"`
	TLS            bool     `yaml:"tls"`
	Nick           string   `yaml:"nick"`
	User           string   `yaml:"user"`
	RealName       string   `yaml:"real_name"`
	Password       string   `yaml:"password"`
	Channels       []string `yaml:"channels"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// FloodConfig bounds how many commands one nickname may issue.
type FloodConfig struct {
	// Rate is the sustained commands per second per nickname; 0 disables.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "10s" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the configuration used when a setting is absent.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Database: filepath.Join(home, ".paroxysm", "paroxysm.db"),
		LogLevel: "info",
		IRC: IRCConfig{
			Nick:           "paroxysm",
			User:           "paroxysm",
			RealName:       "paroxysm keyword bot",
			ReconnectDelay: Duration(10 * time.Second),
		},
		Flood: FloodConfig{Burst: 5},
	}
}

// Load reads the YAML file at path on top of Default, loads .env from the
// working directory if present, then applies environment overrides. A
// missing file is not an error when path is DefaultPath.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", path)
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with PAROXYSM_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PAROXYSM_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("PAROXYSM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PAROXYSM_ADMINS"); v != "" {
		cfg.Admins = parseList(v)
	}
	if v := os.Getenv("PAROXYSM_IRC_SERVER"); v != "" {
		cfg.IRC.Server = v
	}
	if v := os.Getenv("PAROXYSM_IRC_NICK"); v != "" {
		cfg.IRC.Nick = v
	}
	if v := os.Getenv("PAROXYSM_IRC_PASSWORD"); v != "" {
		cfg.IRC.Password = v
	}
	if v := os.Getenv("PAROXYSM_IRC_CHANNELS"); v != "" {
		cfg.IRC.Channels = parseList(v)
	}
	if v := os.Getenv("PAROXYSM_IRC_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IRC.TLS = b
		}
	}
	if v := os.Getenv("PAROXYSM_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("config: database must be set")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q: must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.Flood.Rate < 0 || c.Flood.Burst < 0 {
		return errors.New("config: flood rate and burst must not be negative")
	}
	for _, ch := range c.IRC.Channels {
		if !IsChannel(ch) {
			return fmt.Errorf("config: %q is not a channel name", ch)
		}
	}
	return nil
}

// ValidateIRC checks the settings the chat transport needs.
func (c *Config) ValidateIRC() error {
	if c.IRC.Server == "" {
		return errors.New("config: irc.server must be set")
	}
	if c.IRC.Nick == "" {
		return errors.New("config: irc.nick must be set")
	}
	return nil
}

// IsChannel reports whether target names a channel rather than a nickname.
func IsChannel(target string) bool {
	return target != "" && strings.ContainsAny(target[:1], "#&+!")
}

func parseList(v string) []string {
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
