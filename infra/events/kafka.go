package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/ridefleet/core/events"
)

// KafkaConfig configures the Kafka publisher. Brokers is a comma separated
// list.
type KafkaConfig struct {
	Brokers string `json:"brokers"`
	Topic   string `json:"topic"`
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic keyed by subject so every event
// of an entity lands on the same partition.
type KafkaPublisher struct {
	w kafkaWriter
}

// NewKafkaPublisher builds a writer for cfg. Connections are opened lazily.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka: brokers is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "ridefleet.events"
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{w: w}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes ev as JSON.
func (p *KafkaPublisher) Publish(ctx context.Context, ev events.Event) error {
	body, err := encode(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(ev.Subject),
		Value:   body,
		Time:    ev.Time,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
