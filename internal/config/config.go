// Package config handles MUF unit configuration loading: locating a
// YAML file, expanding environment variables, falling back to
// REDIS_USERNAME/REDIS_PASSWORD for unset store credentials (and to
// MUF_REDIS_HOST/MUF_REDIS_PORT/MUF_LOG_LEVEL for the rest), and
// validating the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nugget/muf/internal/store"
)

// searchPathsFunc is indirected so tests can override the search
// order without touching the real filesystem outside a temp dir.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order: an
// explicit path (from a -config flag) is checked first by FindConfig;
// absent that, ./config.yaml, ~/.config/muf/config.yaml,
// /config/config.yaml (container convention), then /etc/muf/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "muf", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml")
	paths = append(paths, "/etc/muf/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// path that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// Config holds everything a unit needs to join the fabric. The store
// fields are inlined at the top level of the YAML document (host,
// port, db, username, password alongside unit_name and log_level),
// not nested under a "store:" key.
type Config struct {
	Unit     string      `yaml:"unit_name"`
	Store    StoreConfig `yaml:",inline"`
	LogLevel string      `yaml:"log_level"`

	// DefaultTimeoutSec is loaded, defaulted to 10 and validated (at
	// least 1). Client.Request takes its timeout as an explicit argument
	// and does not read this field.
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// StoreConfig addresses the Redis-compatible store backing the
// fabric. Username and Password fall back to the bare REDIS_USERNAME
// and REDIS_PASSWORD environment variables when left empty in the
// file, so credentials never need to live in a checked-in config.yaml.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Options converts StoreConfig into the store.Options the Connection
// constructor expects.
func (s StoreConfig) Options() store.Options {
	return store.Options{
		Host:     s.Host,
		Port:     s.Port,
		DB:       s.DB,
		Username: s.Username,
		Password: s.Password,
	}
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults (including the REDIS_USERNAME/
// REDIS_PASSWORD credential fallbacks and the MUF_REDIS_HOST/
// MUF_REDIS_PORT/MUF_LOG_LEVEL fallbacks) for any unset fields, and
// validates the result. After Load returns successfully, every field
// is usable without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MUF_REDIS_HOST}). A
	// convenience for container deployments; values may also be put
	// directly in the file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults,
// including falling back to REDIS_USERNAME/REDIS_PASSWORD and the
// MUF_REDIS_HOST/MUF_REDIS_PORT/MUF_LOG_LEVEL environment variables
// for values the file left unset. Called automatically by Load.
func (c *Config) applyDefaults() {
	if c.Store.Host == "" {
		if v := os.Getenv("MUF_REDIS_HOST"); v != "" {
			c.Store.Host = v
		} else {
			c.Store.Host = "localhost"
		}
	}
	if c.Store.Port == 0 {
		if v := os.Getenv("MUF_REDIS_PORT"); v != "" {
			if port, err := parsePort(v); err == nil {
				c.Store.Port = port
			}
		}
		if c.Store.Port == 0 {
			c.Store.Port = 6379
		}
	}
	if c.Store.Username == "" {
		c.Store.Username = os.Getenv("REDIS_USERNAME")
	}
	if c.Store.Password == "" {
		c.Store.Password = os.Getenv("REDIS_PASSWORD")
	}
	if c.LogLevel == "" {
		if v := os.Getenv("MUF_LOG_LEVEL"); v != "" {
			c.LogLevel = v
		} else {
			c.LogLevel = "info"
		}
	}
	if c.DefaultTimeoutSec == 0 {
		c.DefaultTimeoutSec = 10
	}
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, err
	}
	return port, nil
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Unit == "" {
		return fmt.Errorf("unit must not be empty")
	}
	if c.Store.Port < 1 || c.Store.Port > 65535 {
		return fmt.Errorf("store.port %d out of range (1-65535)", c.Store.Port)
	}
	if c.Store.DB < 0 {
		return fmt.Errorf("store.db must not be negative")
	}
	if c.DefaultTimeoutSec < 1 {
		return fmt.Errorf("default_timeout_sec must be at least 1")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a configuration suitable for local development
// against a Redis instance on localhost, with unit name "dev". All
// defaults are already applied.
func Default() *Config {
	cfg := &Config{Unit: "dev"}
	cfg.applyDefaults()
	return cfg
}
