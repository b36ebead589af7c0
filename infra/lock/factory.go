package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/ridefleet/core/factory"
	"github.com/kilianp07/ridefleet/core/keylock"
)

// Config selects the locker implementation.
type Config struct {
	// Type is "memory" (default) or "redis".
	Type string `json:"type"`
	// WaitMs bounds how long an operation waits for a key.
	WaitMs int            `json:"wait_ms"`
	Conf   map[string]any `json:"conf"`
}

// Wait returns the configured wait bound or keylock.DefaultWait.
func (c Config) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return keylock.DefaultWait
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

// Open builds the configured locker. The returned close function releases
// any connection the locker holds.
func Open(ctx context.Context, cfg Config) (keylock.Locker, func() error, error) {
	switch cfg.Type {
	case "", "memory":
		return keylock.NewMemoryLocker(cfg.Wait()), func() error { return nil }, nil
	case "redis":
		var rc RedisConfig
		if err := factory.Decode(cfg.Conf, &rc); err != nil {
			return nil, nil, err
		}
		l, err := NewRedisLocker(ctx, rc, cfg.Wait())
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown locker type %s", cfg.Type)
	}
}
