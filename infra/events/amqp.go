package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/infra/logger"
)

// AMQPConfig configures the AMQP publisher.
type AMQPConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	Close() error
}

type dialedConn struct{ *amqp.Connection }

func (c dialedConn) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

var dialAMQP = func(url string) (amqpConn, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return dialedConn{c}, nil
}

// AMQPPublisher publishes events to a topic exchange with the event type as
// routing key. A failed publish drops the channel; the next publish redials.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   logger.Logger

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "ridefleet.events"
	}
	p := &AMQPPublisher{url: cfg.URL, exchange: cfg.Exchange, logger: logger.New("amqp_publisher")}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := dialAMQP(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) drop() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

// Publish sends ev as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev events.Event) error {
	body, err := encode(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		p.logger.Infof("reconnecting to %s", p.exchange)
		if err := p.connect(); err != nil {
			return err
		}
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.Subject,
		Timestamp:    ev.Time,
		Type:         string(ev.Type),
		Body:         body,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		p.drop()
		return fmt.Errorf("amqp publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drop()
	return nil
}
