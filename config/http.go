package config

import (
	"errors"
	"time"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address string `json:"address"`
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret           string   `json:"jwt_secret"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	ShutdownSeconds     int      `json:"shutdown_seconds"`
	AllowedOrigins      []string `json:"allowed_origins"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 10
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = 15
	}
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 10
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return errors.New("jwt_secret must be at least 16 bytes")
	}
	return nil
}

func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}
