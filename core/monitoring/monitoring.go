// Package monitoring holds the process-wide error reporter. The default
// reporter discards everything; app.New installs Sentry when a DSN is set.
package monitoring

import (
	"sync"
	"time"
)

// Monitor reports errors and recovered panics.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	RecoverPanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor drops every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) RecoverPanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init installs m and returns the monitor it replaced. A nil m is ignored.
func Init(m Monitor) (previous Monitor) {
	mu.Lock()
	defer mu.Unlock()
	previous = current
	if m != nil {
		current = m
	}
	return previous
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException reports err with the given tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover must be deferred directly. It reports a panic, flushes, and lets
// the panic continue.
func Recover() {
	if r := recover(); r != nil {
		m := get()
		m.RecoverPanic(r)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) { get().Flush(d) }

// Go runs fn in a goroutine whose panic is reported before it propagates.
func Go(fn func()) {
	go func() {
		defer Recover()
		fn()
	}()
}
