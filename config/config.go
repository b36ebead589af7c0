package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ridefleet/core/factory"
	"github.com/kilianp07/ridefleet/core/metrics"
	"github.com/kilianp07/ridefleet/infra/lock"
)

// EnvPrefix prefixes environment overrides. RIDEFLEET_HTTP__ADDRESS sets
// http.address.
const EnvPrefix = "RIDEFLEET_"

type Config struct {
	HTTP    HTTPConfig           `json:"http"`
	Store   factory.ModuleConfig `json:"store"`
	Locks   lock.Config          `json:"locks"`
	Audit   AuditConfig          `json:"audit"`
	Metrics metrics.Config       `json:"metrics"`
	Events  EventsConfig         `json:"events"`
	Logging LoggingConfig        `json:"logging"`
	Sentry  SentryConfig         `json:"sentry"`
	Seed    SeedConfig           `json:"seed"`
}

// EventsConfig lists the brokers committed events are forwarded to.
type EventsConfig struct {
	Publishers []factory.ModuleConfig `json:"publishers"`
}

// SeedConfig points at the bootstrap file applied at start-up.
type SeedConfig struct {
	File string `json:"file"`
	// Demo loads the built-in demo records when no file is set.
	Demo bool `json:"demo"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every section's defaults.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Audit.SetDefaults()
	c.Logging.SetDefaults()
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Locks.Type == "" {
		c.Locks.Type = "memory"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Locks.Type != "memory" && c.Locks.Type != "redis" {
		return fmt.Errorf("locks: unknown type %s", c.Locks.Type)
	}
	if c.Locks.WaitMs < 0 {
		return fmt.Errorf("locks: wait_ms must be positive")
	}
	return nil
}

// Load reads the file at path, applies RIDEFLEET_ environment overrides,
// then defaults and validation. An empty path loads the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
