// Package events relays committed fleet events to external brokers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/factory"
)

// Publisher delivers one event to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev events.Event) error
	Close() error
}

var publishers = factory.NewRegistry[Publisher]()

func init() {
	_ = publishers.Register("mqtt", func(conf map[string]any) (Publisher, error) {
		var c MQTTConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMQTTPublisher(c)
	})
	_ = publishers.Register("amqp", func(conf map[string]any) (Publisher, error) {
		var c AMQPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewAMQPPublisher(c)
	})
	_ = publishers.Register("kafka", func(conf map[string]any) (Publisher, error) {
		var c KafkaConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewKafkaPublisher(c)
	})
}

// RegisterPublisher adds a publisher factory identified by name.
func RegisterPublisher(name string, f factory.Factory[Publisher]) error {
	return publishers.Register(name, f)
}

// NewPublishers builds one publisher per config. Publishers created before a
// failure are closed.
func NewPublishers(cfgs []factory.ModuleConfig) ([]Publisher, error) {
	out := make([]Publisher, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := publishers.Create(c)
		if err != nil {
			for _, q := range out {
				_ = q.Close()
			}
			return nil, fmt.Errorf("publisher %s: %w", c.Type, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func encode(ev events.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (m *MemoryPublisher) Name() string { return "memory" }

func (m *MemoryPublisher) Publish(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the published events.
func (m *MemoryPublisher) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}
