package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/ridefleet/config"
	coremon "github.com/kilianp07/ridefleet/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. Without a DSN it returns a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
	})
	if err != nil {
		return nil, err
	}
	return newSentryMonitor(sentry.CurrentHub(), cfg.Tags), nil
}

func newSentryMonitor(hub *sentry.Hub, tags map[string]string) *sentryMonitor {
	base := map[string]string{"service": "ridefleet"}
	for k, v := range tags {
		base[k] = v
	}
	return &sentryMonitor{hub: hub, tags: base}
}

type sentryMonitor struct {
	hub  *sentry.Hub
	tags map[string]string
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range s.tags {
			scope.SetTag(k, v)
		}
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) RecoverPanic(v any) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, val := range s.tags {
			scope.SetTag(k, val)
		}
		s.hub.Recover(v)
	})
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
