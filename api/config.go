package api

import (
	"fmt"
	"net"
)

// DefaultMaxBodyBytes bounds request bodies, uploads included.
const DefaultMaxBodyBytes = 16 << 20 // 16 MB

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr"`

	// MaxConnections caps concurrently accepted connections. Zero disables the cap.
	MaxConnections int `yaml:"max_connections"`

	// MaxBodyBytes caps the size of a request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORSOrigins lists the allowed browser origins. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:5000",
		MaxConnections: 64,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("http.addr %q: %w", c.Addr, err)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("http.max_connections must be >= 0, got %d", c.MaxConnections)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0, got %d", c.MaxBodyBytes)
	}
	return nil
}

func (c Config) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}
