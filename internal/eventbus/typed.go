// Package eventbus fans committed fleet events out to in-process consumers
// such as the metrics collector and the broker forwarder.
package eventbus

import "sync"

// DefaultBuffer is the per-subscriber channel capacity of NewTyped.
const DefaultBuffer = 64

// TypedBus is a publish/subscribe bus for events of type T. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type TypedBus[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	buffer int
	closed bool
}

// NewTyped creates a bus with DefaultBuffer slots per subscriber.
func NewTyped[T any]() *TypedBus[T] { return NewTypedBuffered[T](DefaultBuffer) }

// NewTypedBuffered creates a bus with size slots per subscriber.
func NewTypedBuffered[T any](size int) *TypedBus[T] {
	if size < 1 {
		size = 1
	}
	return &TypedBus[T]{buffer: size}
}

// Publish offers e to every subscriber and returns how many missed it.
func (b *TypedBus[T]) Publish(e T) (dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

// Subscribe registers a subscriber. On a closed bus the returned channel is
// already closed.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Subscribers returns the number of live subscribers.
func (b *TypedBus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes the bus and all subscriber channels. Events already buffered
// stay readable.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
