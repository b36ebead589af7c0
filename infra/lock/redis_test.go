package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/test/util"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if !util.DockerAvailable() {
		t.Skip("docker not available")
	}
	url, cleanup, err := util.StartRedis(context.Background())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return url
}

func TestRedisLocker(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()
	l, err := NewRedisLocker(ctx, RedisConfig{URL: url}, 150*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	t.Run("timeout while held", func(t *testing.T) {
		unlock, err := l.Lock(ctx, keylock.DriverKey("d1"))
		require.NoError(t, err)
		_, err = l.Lock(ctx, keylock.DriverKey("d1"))
		assert.ErrorIs(t, err, model.ErrTimeout)
		unlock()
		unlock()
		again, err := l.Lock(ctx, keylock.DriverKey("d1"))
		require.NoError(t, err)
		again()
	})

	t.Run("mutual exclusion", func(t *testing.T) {
		wide, err := NewRedisLocker(ctx, RedisConfig{URL: url}, 5*time.Second)
		require.NoError(t, err)
		defer func() { _ = wide.Close() }()
		var inside, peak int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := wide.Lock(ctx, keylock.RideKey("r1"))
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, peak)
	})

	t.Run("release keeps foreign token", func(t *testing.T) {
		short, err := NewRedisLocker(ctx, RedisConfig{URL: url, TTLms: 50}, time.Second)
		require.NoError(t, err)
		defer func() { _ = short.Close() }()
		stale, err := short.Lock(ctx, keylock.LeaveKey("l1"))
		require.NoError(t, err)
		time.Sleep(80 * time.Millisecond)
		fresh, err := l.Lock(ctx, keylock.LeaveKey("l1"))
		require.NoError(t, err)
		stale()
		_, err = l.Lock(ctx, keylock.LeaveKey("l1"))
		assert.ErrorIs(t, err, model.ErrTimeout)
		fresh()
	})
}

func TestOpen(t *testing.T) {
	l, closeFn, err := Open(context.Background(), Config{WaitMs: 10})
	require.NoError(t, err)
	assert.IsType(t, &keylock.MemoryLocker{}, l)
	assert.NoError(t, closeFn())

	_, _, err = Open(context.Background(), Config{Type: "redis"})
	assert.Error(t, err)
	_, _, err = Open(context.Background(), Config{Type: "zookeeper"})
	assert.Error(t, err)
	assert.Equal(t, keylock.DefaultWait, Config{}.Wait())
}

type capturedLog struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (c *capturedLog) Debugf(string, ...any)            {}
func (c *capturedLog) Debugw(string, map[string]any)    {}
func (c *capturedLog) Infof(string, ...any)             {}
func (c *capturedLog) Warnf(format string, args ...any) { c.add(&c.warns, format, args) }
func (c *capturedLog) Errorf(format string, args ...any) { c.add(&c.errors, format, args) }

func (c *capturedLog) add(dst *[]string, format string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedisLockerWithClient(client, RedisConfig{}, time.Second)
	defer func() { _ = l.Close() }()
	rec := &capturedLog{}
	l.log = rec

	l.release("ridefleet:lock:driver:d1", "token")

	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "ridefleet:lock:driver:d1")
	assert.Empty(t, rec.warns)
}

func TestRedisLocker_ReleaseOfExpiredKeyWarns(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()
	l, err := NewRedisLocker(ctx, RedisConfig{URL: url}, 150*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	rec := &capturedLog{}
	l.log = rec

	unlock, err := l.Lock(ctx, keylock.DriverKey("d9"))
	require.NoError(t, err)
	require.NoError(t, l.client.Del(ctx, l.prefix+keylock.DriverKey("d9")).Err())
	unlock()

	assert.Len(t, rec.warns, 1)
	assert.Empty(t, rec.errors)
}
