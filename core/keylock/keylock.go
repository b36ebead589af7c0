// Package keylock serializes operations per resource key. A Locker grants
// exclusive ownership of a key for a bounded wait; callers that need several
// keys take them with LockAll in a fixed order.
package keylock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ridefleet/core/model"
)

// DefaultWait bounds how long Lock blocks before giving up.
const DefaultWait = 2 * time.Second

// Unlock releases a held key. Calling it more than once is a no-op.
type Unlock func()

// Locker grants exclusive ownership of keys.
type Locker interface {
	// Lock blocks until key is held, the wait bound expires (model.ErrTimeout)
	// or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Key helpers keep key formats in one place.
func RideKey(id string) string      { return "ride:" + id }
func DriverKey(id string) string    { return "driver:" + id }
func LeaveKey(id string) string     { return "leave:" + id }
func PassengerKey(id string) string { return "passenger:" + id }

// LockAll acquires keys in the given order and releases them in reverse.
// Empty and duplicate keys are skipped. On failure every key taken so far is
// released before returning.
//
// The locker's wait bound applies to each key, so taking n contended keys
// can block for up to n times that bound. A deadline on ctx caps the whole
// set.
func LockAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	held := make([]Unlock, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		u, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, u)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

type entry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker backed by one semaphore per key.
// Entries are reference counted and dropped when no goroutine uses them.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]*entry
	wait time.Duration
}

// NewMemoryLocker returns a MemoryLocker with the given wait bound. A
// non-positive wait selects DefaultWait.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &MemoryLocker{keys: make(map[string]*entry), wait: wait}
}

func (l *MemoryLocker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Lock implements Locker.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	e := l.acquireEntry(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.releaseEntry(key, e)
			})
		}, nil
	case <-timer.C:
		l.releaseEntry(key, e)
		return nil, fmt.Errorf("lock %s after %s: %w", key, l.wait, model.ErrTimeout)
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

// held returns the number of keys with live entries, for tests.
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
