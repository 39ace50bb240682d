package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/convodesk/convodesk/agent"
	"github.com/convodesk/convodesk/api/handlers"
	"github.com/convodesk/convodesk/config"
	"github.com/convodesk/convodesk/dialog"
	"github.com/convodesk/convodesk/internal/metrics"
	"github.com/convodesk/convodesk/internal/server"
	"github.com/convodesk/convodesk/internal/telemetry"
	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/llm/openai"
)

// Server wires the full service: provider, registry, orchestrator, store,
// manager, HTTP surface, and background housekeeping.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	provider  llm.Provider
	registry  *agent.Registry
	store     dialog.Store
	manager   *dialog.Manager
	collector *metrics.Collector
	httpSrv   *server.Manager
	otel      *telemetry.Providers

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
}

// NewServer assembles all components from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	otelProviders, err := telemetry.Init(cfg.TelemetrySettings(), logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	var collector *metrics.Collector
	promRegistry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		promRegistry.MustRegister(collectors.NewGoCollector())
		collector = metrics.NewCollector(cfg.Metrics.Namespace, promRegistry, logger)
	}

	provider := llm.NewResilientProvider(
		openai.New(cfg.ProviderSettings(), logger),
		cfg.ResilienceSettings(),
		logger,
	)

	registry := agent.NewRegistry(logger)
	for _, s := range []*agent.Specialist{
		agent.NewGeneral(provider, logger),
		agent.NewSales(provider, logger),
		agent.NewTechnical(provider, logger),
		agent.NewEscalation(provider, logger),
	} {
		if err := registry.Register(s, s.Capability()); err != nil {
			return nil, fmt.Errorf("register handler: %w", err)
		}
	}

	router := agent.NewIntentRouter(provider, registry, cfg.RouterSettings(), logger)
	orchestrator := agent.NewOrchestrator(registry, router, cfg.OrchestratorSettings(), logger)
	compactor := dialog.NewCompactor(cfg.CompactorSettings(), nil, logger)

	store, err := dialog.NewStore(cfg.StoreSettings(), logger)
	if err != nil {
		return nil, fmt.Errorf("open dialog store: %w", err)
	}

	manager := dialog.NewManager(store, orchestrator, compactor,
		cfg.ManagerSettings(), collector, logger)

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		registry:  registry,
		store:     store,
		manager:   manager,
		collector: collector,
		otel:      otelProviders,
	}

	handler := srv.buildRoutes(promRegistry)
	srv.httpSrv = server.NewManager(handler, cfg.ServerSettings(), logger)
	return srv, nil
}

func (s *Server) buildRoutes(promRegistry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.CheckFunc("store", s.store.Ping))
	health.RegisterCheck(handlers.CheckFunc("provider", func(ctx context.Context) error {
		status, err := s.provider.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("provider unhealthy")
		}
		return nil
	}))

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewDialogHandler(s.manager, s.logger).Register(mux)
	handlers.NewAgentsHandler(s.registry, s.logger).Register(mux)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	skipAuth := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		chain = append(chain, MetricsMiddleware(s.collector))
	}
	if s.cfg.Telemetry.Enabled {
		chain = append(chain, OTelTracing())
	}
	if s.cfg.Server.RateLimit > 0 {
		chain = append(chain, RateLimiter(context.Background(),
			s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger))
	}
	if s.cfg.Auth.Enabled {
		chain = append(chain, JWTAuth(s.cfg.Auth.JWTSecret, skipAuth, s.logger))
	}

	return Chain(mux, chain...)
}

// Start launches the HTTP listener and the housekeeping loop.
func (s *Server) Start() error {
	if err := s.httpSrv.Start(); err != nil {
		return err
	}

	if s.cfg.Manager.CleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cleanupCancel = cancel
		s.cleanupDone = make(chan struct{})
		go s.cleanupLoop(ctx)
	}
	return nil
}

// cleanupLoop periodically closes inactive dialogs and purges old closed
// ones.
func (s *Server) cleanupLoop(ctx context.Context) {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cfg.Manager.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if closed, err := s.manager.CleanupInactive(ctx); err != nil {
				s.logger.Warn("inactive cleanup failed", zap.Error(err))
			} else if closed > 0 {
				s.logger.Info("closed inactive dialogs", zap.Int("count", closed))
			}

			if s.cfg.Manager.PurgeClosedAge > 0 {
				if purged, err := s.manager.PurgeClosed(ctx, s.cfg.Manager.PurgeClosedAge); err != nil {
					s.logger.Warn("purge failed", zap.Error(err))
				} else if purged > 0 {
					s.logger.Info("purged closed dialogs", zap.Int("count", purged))
				}
			}
		}
	}
}

// WaitForShutdown blocks until a signal or serve error, then shuts down.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-s.httpSrv.Errors():
		if err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := s.Shutdown(context.Background()); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
	}
}

// Shutdown stops housekeeping, drains HTTP, flushes telemetry, and closes
// the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
		<-s.cleanupDone
		s.cleanupCancel = nil
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	if s.otel != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(flushCtx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", zap.Error(err))
	}
	return nil
}
