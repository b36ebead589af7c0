package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/ridefleet/core/factory"
	corestore "github.com/kilianp07/ridefleet/core/store"
)

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN            string `json:"dsn"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`
}

var backends = factory.NewRegistry[corestore.Backend]()

func init() {
	_ = backends.Register("memory", func(map[string]any) (corestore.Backend, error) {
		return corestore.NewMemoryBackend(), nil
	})
	_ = backends.Register("sqlite", func(conf map[string]any) (corestore.Backend, error) {
		var c SQLiteConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite: path is required")
		}
		return NewSQLiteBackend(c.Path)
	})
	_ = backends.Register("postgres", func(conf map[string]any) (corestore.Backend, error) {
		var c PostgresConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("postgres: dsn is required")
		}
		timeout := time.Duration(c.ConnectTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return NewPostgresBackend(ctx, c.DSN)
	})
}

// Open builds the backend named by cfg.Type. An empty type selects memory.
func Open(cfg factory.ModuleConfig) (*corestore.Store, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	b, err := backends.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", cfg.Type, err)
	}
	return corestore.New(b), nil
}
