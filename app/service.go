// Package app assembles the fleet engine and its infrastructure from the
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/ridefleet/api"
	"github.com/kilianp07/ridefleet/config"
	"github.com/kilianp07/ridefleet/core/audit"
	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/fleet"
	coremetrics "github.com/kilianp07/ridefleet/core/metrics"
	coremon "github.com/kilianp07/ridefleet/core/monitoring"
	corestore "github.com/kilianp07/ridefleet/core/store"
	infraevents "github.com/kilianp07/ridefleet/infra/events"
	"github.com/kilianp07/ridefleet/infra/lock"
	"github.com/kilianp07/ridefleet/infra/logger"
	"github.com/kilianp07/ridefleet/infra/metrics"
	"github.com/kilianp07/ridefleet/infra/monitoring"
	infrastore "github.com/kilianp07/ridefleet/infra/store"
	"github.com/kilianp07/ridefleet/internal/eventbus"
)

// Service owns the engine, its storage and the background relays.
type Service struct {
	Engine *fleet.Engine

	cfg        *config.Config
	log        logger.Logger
	store      *corestore.Store
	closeLocks func() error
	audit      audit.Store
	bus        *eventbus.TypedBus[events.Event]
	sink       coremetrics.MetricsSink
	forwarder  *infraevents.Forwarder
	cancel     context.CancelFunc
	relays     []<-chan struct{}
	handler    http.Handler
	closeLog   func() error
	closeOnce  sync.Once
	closeErr   error
}

// New wires every component named in cfg, starts the metrics collector and
// event forwarder, then applies the configured seed.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	closeLog, err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, log: logger.New("service"), closeLog: closeLog, closeLocks: func() error { return nil }}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.store, err = infrastore.Open(cfg.Store); err != nil {
		return nil, err
	}
	locks, closeLocks, err := lock.Open(ctx, cfg.Locks)
	if err != nil {
		return nil, fmt.Errorf("locks: %w", err)
	}
	s.closeLocks = closeLocks
	if s.audit, err = audit.Open(cfg.Audit.Backend, cfg.Audit.Path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	pubs, err := infraevents.NewPublishers(cfg.Events.Publishers)
	if err != nil {
		return nil, fmt.Errorf("event publishers: %w", err)
	}

	s.bus = eventbus.NewTyped[events.Event]()
	s.forwarder = infraevents.NewForwarder(s.bus, pubs, logger.New("events"))
	s.Engine, err = fleet.New(s.store, locks, logger.New("fleet"),
		fleet.WithEventBus(s.bus),
		fleet.WithAuditStore(s.audit),
		fleet.WithMetricsSink(s.sink),
	)
	if err != nil {
		return nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.relays = append(s.relays,
		metrics.StartEventCollector(relayCtx, s.bus, s.sink, logger.New("metrics")),
		s.forwarder.Start(relayCtx),
	)

	if err := s.seed(ctx); err != nil {
		return nil, err
	}
	s.handler = api.NewRouter(s.Engine, api.Options{
		JWTSecret:      cfg.HTTP.JWTSecret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.New("http"))
	return s, nil
}

func (s *Service) seed(ctx context.Context) error {
	var seed fleet.Seed
	switch {
	case s.cfg.Seed.File != "":
		var err error
		if seed, err = fleet.LoadSeed(s.cfg.Seed.File); err != nil {
			return err
		}
	case s.cfg.Seed.Demo:
		seed = fleet.DefaultSeed()
	default:
		return nil
	}
	res, err := s.Engine.Bootstrap(ctx, seed)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.log.Infof("bootstrap created %d drivers, %d passengers, %d online", res.Drivers, res.Passengers, res.Online)
	return nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run serves the API, and /metrics when configured, until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is required to serve the API")
	}
	errCh := make(chan error, 2)
	if addr := s.cfg.Metrics.PrometheusAddress; addr != "" {
		coremon.Go(func() {
			if err := metrics.StartPromServer(ctx, addr, nil, s.log); err != nil {
				errCh <- fmt.Errorf("prom server: %w", err)
			}
		})
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Address,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout(),
		WriteTimeout:      s.cfg.HTTP.WriteTimeout(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	coremon.Go(func() {
		s.log.Infof("api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("api shutdown: %v", err)
	}
	return runErr
}

// Close drains the relays, then releases publishers, audit, locks and
// storage. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *Service) close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	for _, done := range s.relays {
		<-done
	}
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.forwarder != nil {
		errs = append(errs, s.forwarder.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	errs = append(errs, s.closeLocks())
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	coremon.Flush(2 * time.Second)
	if s.closeLog != nil {
		errs = append(errs, s.closeLog())
	}
	return errors.Join(errs...)
}
