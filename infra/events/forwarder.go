package events

import (
	"context"
	"time"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/monitoring"
	"github.com/kilianp07/ridefleet/infra/logger"
	"github.com/kilianp07/ridefleet/internal/eventbus"
)

const publishTimeout = 5 * time.Second

// Forwarder relays bus events to every publisher. Delivery is best effort:
// failures are logged and reported to the monitor, never retried here.
type Forwarder struct {
	bus  *eventbus.TypedBus[events.Event]
	pubs []Publisher
	log  logger.Logger
}

// NewForwarder returns a Forwarder over bus. A nil log discards output.
func NewForwarder(bus *eventbus.TypedBus[events.Event], pubs []Publisher, log logger.Logger) *Forwarder {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Forwarder{bus: bus, pubs: pubs, log: log}
}

// Start subscribes and forwards until ctx is done or the bus closes. The
// returned channel is closed when the forwarder exits.
func (f *Forwarder) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if f.bus == nil || len(f.pubs) == 0 {
		close(done)
		return done
	}
	sub := f.bus.Subscribe()
	go func() {
		defer close(done)
		defer f.bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				f.forward(ctx, ev)
			}
		}
	}()
	return done
}

func (f *Forwarder) forward(ctx context.Context, ev events.Event) {
	for _, p := range f.pubs {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.Publish(pctx, ev)
		cancel()
		if err != nil {
			f.log.Errorf("publish %s %s via %s: %v", ev.Type, ev.Subject, p.Name(), err)
			monitoring.CaptureException(err, map[string]string{"module": "events", "publisher": p.Name(), "event_type": string(ev.Type)})
			continue
		}
		f.log.Debugw("event forwarded", map[string]any{"type": string(ev.Type), "subject": ev.Subject, "publisher": p.Name()})
	}
}

// Close closes every publisher.
func (f *Forwarder) Close() error {
	var first error
	for _, p := range f.pubs {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
