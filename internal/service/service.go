// Package service wires the router's collaborators and owns their
// lifecycles: cache, reference-data store, dedup ledger, transformers,
// broker, consumer and the HTTP front door.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/config"
	"fieldrouter/internal/consumer"
	"fieldrouter/internal/dedup"
	"fieldrouter/internal/dispatch"
	"fieldrouter/internal/handlers"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/middleware"
	"fieldrouter/internal/models"
	"fieldrouter/internal/pipeline"
	"fieldrouter/internal/refdata"
	"fieldrouter/internal/transform"
)

// Service is the high-level coordinator for consuming, routing and
// dispatching observations.
type Service struct {
	cfg *config.Config

	backend    cache.Backend
	nc         *nats.Conn
	consumer   *consumer.Consumer
	pipeline   *pipeline.Pipeline
	gateway    *dispatch.Gateway
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Service with the given config.
func New(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Run starts background goroutines and blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")
	log.Info().Str("environment", s.cfg.Environment).Msg("service starting")

	if err := s.init(ctx); err != nil {
		return err
	}

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// init builds every collaborator. Construction order follows dependency
// order; anything failing here aborts startup.
func (s *Service) init(ctx context.Context) error {
	log := logger.WithComponent("service")

	// Startup sanity: every stream type must decode, every registered
	// destination pairing must transform.
	if err := models.ValidatePayloadTable(); err != nil {
		return fmt.Errorf("payload table invalid: %w", err)
	}

	if s.cfg.Redis.Addr != "" {
		s.backend = cache.NewRedis(cache.RedisConfig{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			Timeout:  s.cfg.Redis.Timeout,
		})
		log.Info().Str("addr", s.cfg.Redis.Addr).Msg("using redis cache")
	} else {
		s.backend = cache.NewMemory()
		log.Warn().Msg("no redis address configured, using in-process cache")
	}

	client, err := refdata.NewHTTPClient(refdata.HTTPConfig{
		BaseURL: s.cfg.Portal.BaseURL,
		Token:   s.cfg.Portal.Token,
		Timeout: s.cfg.Portal.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to build reference-data client: %w", err)
	}
	store := refdata.NewStore(s.backend, client, s.cfg.Cache.TTL)

	ledger := dedup.NewStore(s.backend, s.cfg.Dedup.TTL, s.cfg.Dedup.MaxWait)

	tz, err := transform.NewTimezoneResolver()
	if err != nil {
		// Local timestamps fall back to the configured or UTC zone.
		log.Warn().Err(err).Msg("timezone resolver unavailable")
		tz = nil
	}
	smart := transform.NewSmart(store, transform.NewSmartHTTPClient(s.cfg.Portal.Timeout), tz)
	registry := transform.NewRegistry(smart)
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("transformer registry invalid: %w", err)
	}

	nc, err := nats.Connect(s.cfg.NATS.URL,
		nats.Name("fieldrouter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	s.nc = nc

	broker, err := dispatch.NewNATSBroker(nc)
	if err != nil {
		return fmt.Errorf("failed to build broker: %w", err)
	}
	s.gateway = dispatch.NewGateway(broker, dispatch.Config{
		Environment:     s.cfg.Environment,
		DeadLetterTopic: s.cfg.NATS.DeadLetterTopic,
		MaxAttempts:     s.cfg.Dispatch.MaxAttempts,
	})

	s.pipeline = pipeline.New(store, ledger, registry, s.gateway, s.cfg.Pipeline.MaxMessageAge)

	s.consumer, err = consumer.New(nc, s.pipeline, s.gateway, consumer.Config{
		Stream:         s.cfg.NATS.Stream,
		Subject:        s.cfg.NATS.Subject,
		Durable:        s.cfg.NATS.Durable,
		MaxDeliver:     s.cfg.NATS.MaxDeliver,
		Workers:        s.cfg.NATS.Workers,
		ProcessTimeout: s.cfg.Pipeline.ProcessTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to build consumer: %w", err)
	}

	s.initHTTPServer()
	return nil
}

// initHTTPServer initializes the HTTP server with handlers
func (s *Service) initHTTPServer() {
	mux := http.NewServeMux()

	pushHandler := handlers.NewPushHandler(handlers.PushConfig{
		Pipeline:    s.pipeline,
		Gateway:     s.gateway,
		MaxBodySize: s.cfg.Server.MaxBodySize,
		Timeout:     s.cfg.Pipeline.ProcessTimeout,
	})
	mux.Handle("/push", middleware.Chain(
		pushHandler,
		middleware.Recovery,
		middleware.Logging,
	))

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (s *Service) shutdown() error {
	log := logger.WithComponent("service")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		s.consumer.Stop()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("consumer stopped gracefully")
	case <-time.After(s.cfg.Server.ShutdownTimeout):
		log.Warn().Msg("consumer shutdown timeout - forcing exit")
	}

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("nats drain error")
		}
	}
	if err := s.backend.Close(); err != nil {
		log.Error().Err(err).Msg("cache close error")
	}

	s.wg.Wait()
	log.Info().Msg("service stopped gracefully")
	return nil
}

// reportStats periodically logs throughput counters.
func (s *Service) reportStats(ctx context.Context) {
	log := logger.WithComponent("service")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			consumerStats := s.consumer.Stats()
			gatewayStats := s.gateway.Stats()

			log.Info().
				Uint64("consumer_processed", consumerStats.Processed).
				Uint64("consumer_retried", consumerStats.Retried).
				Uint64("consumer_dead_lettered", consumerStats.DeadLettered).
				Uint64("gateway_published", gatewayStats.Published).
				Uint64("gateway_failed", gatewayStats.Failed).
				Uint64("gateway_bytes", gatewayStats.BytesWritten).
				Int("queue_size", consumerStats.QueueSize).
				Msg("stats")
		}
	}
}

// statsHandler returns current statistics
func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	consumerStats := s.consumer.Stats()
	gatewayStats := s.gateway.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"consumer": {
			"processed": %d,
			"retried": %d,
			"dead_lettered": %d,
			"queue_size": %d
		},
		"gateway": {
			"published": %d,
			"failed": %d,
			"bytes_written": %d
		}
	}`,
		consumerStats.Processed,
		consumerStats.Retried,
		consumerStats.DeadLettered,
		consumerStats.QueueSize,
		gatewayStats.Published,
		gatewayStats.Failed,
		gatewayStats.BytesWritten,
	)
}

// healthHandler handles health check requests
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.nc == nil || !s.nc.IsConnected() {
		http.Error(w, "unhealthy: broker disconnected", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}
