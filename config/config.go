// Package config provides configuration loading and management for maclib.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/maclib/api"
	"github.com/c360studio/maclib/storage"
	"github.com/c360studio/maclib/watch"
)

// Config represents the complete maclib configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	HTTP    api.Config    `yaml:"http"`
	NATS    NATSConfig    `yaml:"nats"`
	Watch   watch.Config  `yaml:"watch"`
}

// StorageConfig configures where the library lives
type StorageConfig struct {
	// BaseDir holds library.json, backups/ and exports/ (empty = platform default)
	BaseDir string `yaml:"base_dir"`
	// MaxBackups is how many backups are retained after each new one
	MaxBackups int `yaml:"max_backups"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
	// Mirror keeps a revision history of the library in a JetStream KV bucket
	Mirror bool `yaml:"mirror"`
	// History is how many library revisions the KV bucket keeps
	History int `yaml:"history"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BaseDir:    "", // Platform default
			MaxBackups: storage.DefaultMaxBackups,
		},
		HTTP: api.DefaultConfig(),
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
			Mirror:   true,
			History:  16,
		},
		Watch: watch.DefaultConfig(),
	}
}

// BaseDir returns the storage directory, falling back to the platform default.
func (c *Config) BaseDir() string {
	if c.Storage.BaseDir != "" {
		return c.Storage.BaseDir
	}
	return storage.DefaultBaseDir()
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.MaxBackups < 1 {
		return fmt.Errorf("storage.max_backups must be at least 1, got %d", c.Storage.MaxBackups)
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if c.NATS.History < 1 || c.NATS.History > jetstream.KeyValueMaxHistory {
		return fmt.Errorf("nats.history must be between 1 and %d, got %d", jetstream.KeyValueMaxHistory, c.NATS.History)
	}
	if c.Watch.DebounceDelay != "" {
		if _, err := time.ParseDuration(c.Watch.DebounceDelay); err != nil {
			return fmt.Errorf("watch.debounce_delay: %w", err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadLayer reads a config file for merging. Unset fields stay zero, and
// booleans start at their defaults, so Merge only applies what the file sets.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	defaults := DefaultConfig()
	layer := &Config{
		NATS:  NATSConfig{Embedded: defaults.NATS.Embedded, Mirror: defaults.NATS.Mirror},
		Watch: watch.Config{Enabled: defaults.Watch.Enabled},
	}
	if err := yaml.Unmarshal(data, layer); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return layer, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one. Non-zero values in other take
// precedence; booleans take precedence when they differ from the default.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	defaults := DefaultConfig()

	// Storage
	if other.Storage.BaseDir != "" {
		c.Storage.BaseDir = other.Storage.BaseDir
	}
	if other.Storage.MaxBackups != 0 {
		c.Storage.MaxBackups = other.Storage.MaxBackups
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if other.HTTP.MaxConnections != 0 {
		c.HTTP.MaxConnections = other.HTTP.MaxConnections
	}
	if other.HTTP.MaxBodyBytes != 0 {
		c.HTTP.MaxBodyBytes = other.HTTP.MaxBodyBytes
	}
	if len(other.HTTP.CORSOrigins) > 0 {
		c.HTTP.CORSOrigins = other.HTTP.CORSOrigins
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	} else if other.NATS.Embedded != defaults.NATS.Embedded {
		c.NATS.Embedded = other.NATS.Embedded
	}
	if other.NATS.Mirror != defaults.NATS.Mirror {
		c.NATS.Mirror = other.NATS.Mirror
	}
	if other.NATS.History != 0 {
		c.NATS.History = other.NATS.History
	}

	// Watch
	if other.Watch.Enabled != defaults.Watch.Enabled {
		c.Watch.Enabled = other.Watch.Enabled
	}
	if other.Watch.DebounceDelay != "" {
		c.Watch.DebounceDelay = other.Watch.DebounceDelay
	}
}
