// Package config loads and persists the streamer configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the default configuration file location.
const DefaultPath = "config.yml"

// Config is the root configuration structure, loaded from YAML.
type Config struct {
	// Port is the HTTP control surface listen port.
	Port int `yaml:"port"`

	// Device optionally pins the streamer to a device by name. When more
	// than one device is discovered and no identifier is supplied on a
	// request, this name breaks the tie.
	Device string `yaml:"device,omitempty"`

	// CountryCode is sent on every catalog and queue request.
	CountryCode string `yaml:"countryCode"`

	Auth AuthConfig `yaml:"auth"`

	// Cache is the path of the sqlite track metadata cache.
	Cache CacheConfig `yaml:"cache"`

	// Reconnect bounds the automatic reconnect attempts after a device
	// forcibly ends a session.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// AuthConfig carries the pre-obtained Tidal OAuth tokens. Token acquisition
// and refresh happen outside this process.
type AuthConfig struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// CacheConfig contains track cache settings.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// ReconnectConfig bounds session reconnection.
type ReconnectConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		Port:        8000,
		CountryCode: "US",
		Cache:       CacheConfig{Path: "data/tracks.db"},
		Reconnect:   ReconnectConfig{MaxAttempts: 5},
	}
}

// Load reads the configuration file at path, merging it over the defaults.
// A missing file is not an error: defaults are returned and written back, so
// a fresh install leaves an editable config.yml behind.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(path); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Rewrite so newly added fields show up with their defaults.
	if err := cfg.Save(path); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if len(c.CountryCode) != 2 {
		return fmt.Errorf("invalid country code: %q", c.CountryCode)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("invalid reconnect max_attempts: %d", c.Reconnect.MaxAttempts)
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
