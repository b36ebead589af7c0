// Package lock provides distributed keylock.Locker implementations.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/infra/logger"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisConfig configures RedisLocker.
type RedisConfig struct {
	URL    string `json:"url"`
	Prefix string `json:"prefix"`
	// TTLms bounds how long a crashed holder keeps a key.
	TTLms int `json:"ttl_ms"`
}

// RedisLocker holds keys as Redis entries set with NX and a TTL so several
// service instances share one lock space.
type RedisLocker struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	wait    time.Duration
	minPoll time.Duration
	maxPoll time.Duration
	log     logger.Logger
}

// NewRedisLocker connects using cfg. A non-positive wait selects
// keylock.DefaultWait.
func NewRedisLocker(ctx context.Context, cfg RedisConfig, wait time.Duration) (*RedisLocker, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis locker: url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis locker: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis locker ping: %w", err)
	}
	return NewRedisLockerWithClient(client, cfg, wait), nil
}

// NewRedisLockerWithClient wraps an existing client.
func NewRedisLockerWithClient(client redis.UniversalClient, cfg RedisConfig, wait time.Duration) *RedisLocker {
	if wait <= 0 {
		wait = keylock.DefaultWait
	}
	ttl := time.Duration(cfg.TTLms) * time.Millisecond
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ridefleet:lock:"
	}
	return &RedisLocker{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		wait:    wait,
		minPoll: 5 * time.Millisecond,
		maxPoll: 100 * time.Millisecond,
		log:     logger.New("redis_locker"),
	}
}

// Lock implements keylock.Locker. It polls SET NX with a doubling delay until
// the key is taken or the wait bound expires.
func (l *RedisLocker) Lock(ctx context.Context, key string) (keylock.Unlock, error) {
	name := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	delay := l.minPoll
	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() { once.Do(func() { l.release(name, token) }) }, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("lock %s after %s: %w", key, l.wait, model.ErrTimeout)
		}
		sleep := min(delay, remaining)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-time.After(sleep):
		}
		delay = min(delay*2, l.maxPoll)
	}
}

// release drops name if it still carries token. A failed release leaves the
// key to expire with its TTL, so it is logged rather than returned.
func (l *RedisLocker) release(name, token string) {
	// The holder's ctx may already be canceled.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.client, []string{name}, token).Int()
	switch {
	case err != nil:
		l.log.Errorf("release %s: %v (held until ttl %s)", name, err, l.ttl)
	case n == 0:
		l.log.Warnf("release %s: key expired or taken over before unlock", name)
	}
}

// Close closes the client.
func (l *RedisLocker) Close() error { return l.client.Close() }
