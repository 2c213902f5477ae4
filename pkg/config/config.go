// Package config handles configuration for geoprobe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load and LoadFromDir.
const (
	DefaultServer         = "http://127.0.0.1:4444"
	DefaultCommandTimeout = 30 * time.Second
)

// Window is a requested browser window size.
type Window struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config represents the workspace configuration (geoprobe.yaml).
type Config struct {
	// Remote end
	Server         string                 `yaml:"server"`         // WebDriver endpoint
	Capabilities   map[string]interface{} `yaml:"capabilities"`   // alwaysMatch capabilities
	CommandTimeout Duration               `yaml:"commandTimeout"` // Per-command timeout
	Window         *Window                `yaml:"window"`         // Resize window on session start

	// Suite execution
	BaseURL     string            `yaml:"baseURL"`     // Prefix for relative page paths
	Env         map[string]string `yaml:"env"`         // Variables for ${...} in page paths
	Parallel    int               `yaml:"parallel"`    // Number of sessions
	IncludeTags []string          `yaml:"includeTags"` // Tags to include
	ExcludeTags []string          `yaml:"excludeTags"` // Tags to exclude

	// Logging
	LogFile string `yaml:"logFile"`
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromDir looks for geoprobe.yaml or geoprobe.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try geoprobe.yaml first
	configPath := filepath.Join(dir, "geoprobe.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try geoprobe.yml
	configPath = filepath.Join(dir, "geoprobe.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = Duration(DefaultCommandTimeout)
	}
	if c.Parallel == 0 {
		c.Parallel = 1
	}
	if c.Capabilities == nil {
		c.Capabilities = map[string]interface{}{}
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("commandTimeout must not be negative")
	}
	if c.Window != nil && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		return fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	return nil
}
