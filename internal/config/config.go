package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const defaultPollIntervalMS = 100

type Config struct {
	PrimaryDevice   string `json:"primary_device"`
	SecondaryDevice string `json:"secondary_device"`
	PollIntervalMS  int    `json:"poll_interval_ms"`
	LogLevel        string `json:"log_level"` // "debug", "info", "warn", "error"
}

// Load reads the config from the platform path or returns defaults.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the config at path, filling in defaults for anything the
// file does not set. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{
		PrimaryDevice:   "",
		SecondaryDevice: "",
		PollIntervalMS:  defaultPollIntervalMS,
		LogLevel:        "info",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// A non-positive interval would stall the meter loop.
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = defaultPollIntervalMS
	}

	return cfg, nil
}

// Save writes the config to the platform path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultPath())
}

// SaveTo writes the config to path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PollInterval returns the meter refresh period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// DefaultPath returns the platform-specific config file path.
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "micmeter", "config.json")
}
