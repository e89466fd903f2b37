// Package app wires the dispatch engine to its transports and stores.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/autoaid/api/bookings"
	"github.com/kilianp07/autoaid/api/mechanics"
	"github.com/kilianp07/autoaid/app/plugins"
	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/config"
	"github.com/kilianp07/autoaid/core/booking"
	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/dispatch"
	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	coremon "github.com/kilianp07/autoaid/core/monitoring"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/core/registry"
	"github.com/kilianp07/autoaid/infra/logger"
	"github.com/kilianp07/autoaid/infra/metrics"
	inframon "github.com/kilianp07/autoaid/infra/monitoring"
	"github.com/kilianp07/autoaid/infra/mqtt"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

// Notifier delivers offers to mechanics and notices to customers.
type Notifier interface {
	offer.Notifier
	dispatch.CustomerNotifier
}

// Service owns the registry, the booking repository, the offer broker and
// the coordinator together with their transports.
type Service struct {
	cfg *config.Config

	Registry    *registry.Registry
	Bookings    *booking.Repository
	Broker      *offer.Broker
	Coordinator *dispatch.Coordinator
	Notifier    Notifier
	Handler     http.Handler

	journal journal.Store
	client  *mqtt.PahoClient
	bus     *eventbus.Bus
	sink    coremetrics.MetricsSink
	log     logger.Logger
}

// New creates a Service from the configuration. Without an MQTT broker the
// notifications are only logged.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	dir, err := plugins.NewDirectory(cfg.Registry.Directory)
	if err != nil {
		return nil, err
	}
	reg := registry.New(dir, cfg.Registry, logger.New("registry"))

	store, err := journal.New(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	bus := eventbus.New()
	repo := booking.NewRepository(reg, logger.New("booking"))
	repo.SetJournal(store)
	repo.SetBus(bus)

	svc := &Service{cfg: cfg, Registry: reg, Bookings: repo, journal: store, bus: bus, log: logg}
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			svc.closeStores()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.client = client
		svc.Notifier = client
	} else {
		logg.Warnf("mqtt broker not configured, notifications are only logged")
		svc.Notifier = mqtt.NewLogNotifier(100)
	}

	svc.Broker = offer.NewBroker(svc.Notifier, dispatch.Acceptor{Repo: repo}, logger.New("offer"))
	svc.Broker.SetBus(bus)

	coord, err := dispatch.NewCoordinator(cfg.Dispatch, reg, repo, svc.Broker, logger.New("dispatch"))
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	coord.SetCustomerNotifier(svc.Notifier)
	coord.SetBus(bus)
	svc.Coordinator = coord

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	coord.SetMetrics(sink)
	svc.sink = sink

	if svc.client != nil {
		if err := svc.client.Listen(coord); err != nil {
			svc.Close()
			return nil, fmt.Errorf("mqtt listen: %w", err)
		}
	}
	svc.Handler = svc.routes()
	return svc, nil
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	opts := bookings.Options{Journal: s.journal, HistoryToken: s.cfg.HTTP.HistoryToken}
	var verifier mechanics.Verifier
	if s.cfg.Auth.Enabled() {
		tokens := auth.NewTokenService(s.cfg.Auth)
		opts.Verifier = tokens
		verifier = tokens
	}
	bookings.Register(mux, s.Coordinator, opts)
	mechanics.Register(mux, s.Coordinator, s.Registry, verifier)
	if s.cfg.Metrics.PromAddr == "" {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run serves the API and runs the janitor until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	coremon.Go(map[string]string{"module": "janitor"}, func() {
		s.Coordinator.Run(ctx, s.cfg.Registry.SweepInterval(), s.cfg.Offer.Retention())
	})
	if addr := s.cfg.Metrics.PromAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("serving api on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("api shutdown: %v", err)
	}
	return nil
}

// Close stops the searches and releases transports and stores.
func (s *Service) Close() error {
	if s.Coordinator != nil {
		s.Coordinator.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	err := s.closeStores()
	coremon.Flush(2 * time.Second)
	return err
}

func (s *Service) closeStores() error {
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("event bus dropped %d events for slow subscribers", n)
	}
	s.bus.Close()
	return s.journal.Close()
}
