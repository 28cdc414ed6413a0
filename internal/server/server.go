// Package server provides the operational HTTP surface: health probes,
// metrics and cache administration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/lewisedginton/financial_qa/internal/cache"
	"github.com/lewisedginton/financial_qa/internal/conversation"
	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/health"
	"github.com/lewisedginton/financial_qa/pkg/httpmiddleware"
	"github.com/lewisedginton/financial_qa/pkg/logger"
	"github.com/lewisedginton/financial_qa/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// Config controls listeners and background work.
type Config struct {
	Port               int
	MetricsEnabled     bool
	MetricsPort        int
	HealthCheckTimeout time.Duration
	// Targets ending in cache.WildcardSuffix are prefixes.
	InvalidateTargets  []string
	InvalidateInterval time.Duration
}

// Deps are the components the server exposes.
type Deps struct {
	Cache             *cache.Manager
	Store             *conversation.Store
	CacheFiles        storage.FileProvider
	ConversationFiles storage.FileProvider
	Metrics           *metrics.Metrics // nil disables /metrics
	Log               logger.Logger
}

// Server encapsulates the HTTP server and its lifecycle
type Server struct {
	cfg     Config
	deps    Deps
	log     logger.Logger
	checker *health.Checker
	router  chi.Router
}

// New wires routes and readiness checks.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Cache == nil || deps.Store == nil {
		return nil, fmt.Errorf("cache and conversation store are required")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNopLogger()
	}
	if !cfg.MetricsEnabled {
		deps.Metrics = nil
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithFields(logger.StringField("component", "server")),
		checker: health.New(
			health.WithTimeout(cfg.HealthCheckTimeout),
			health.WithLogger(deps.Log),
		),
	}
	if deps.CacheFiles != nil {
		s.checker.Add(health.Readiness, probeCheck("cache_storage", deps.CacheFiles))
	}
	if deps.ConversationFiles != nil {
		s.checker.Add(health.Readiness, probeCheck("conversation_storage", deps.ConversationFiles))
		s.checker.Add(health.Readiness, indexCheck(deps.ConversationFiles))
	}
	s.router = s.createRouter()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) createRouter() chi.Router {
	r := chi.NewRouter()
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.HTTPMiddleware())
	}
	httpmiddleware.Apply(r, httpmiddleware.DefaultConfig(s.deps.Log))

	r.Get("/healthz", s.checker.Handler(health.Liveness))
	r.Get("/readyz", s.checker.Handler(health.Readiness))
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/cache/stats", s.cacheStats)
		r.Post("/cache/clear", s.cacheClear)
		r.Post("/cache/invalidate", s.cacheInvalidate)
		r.Get("/conversations", s.listConversations)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. The periodic
// invalidation schedule and the dedicated metrics listener run alongside.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.InvalidateInterval > 0 && len(s.cfg.InvalidateTargets) > 0 {
		sched, err := s.deps.Cache.SchedulePeriodicInvalidation(gctx, s.cfg.InvalidateTargets, s.cfg.InvalidateInterval)
		if err != nil {
			return fmt.Errorf("start invalidation schedule: %w", err)
		}
		defer sched.Stop()
		s.log.Info("Periodic cache invalidation scheduled",
			logger.DurationField("interval", s.cfg.InvalidateInterval),
			logger.Field("targets", s.cfg.InvalidateTargets))
	}

	if s.deps.Metrics != nil && s.cfg.MetricsPort > 0 && s.cfg.MetricsPort != s.cfg.Port {
		g.Go(func() error { return s.deps.Metrics.Listen(gctx, s.cfg.MetricsPort) })
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	g.Go(func() error {
		s.log.Info("Starting HTTP server", logger.StringField("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("Gracefully closing HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.log.Info("Server exited", logger.BoolField("clean", err == nil))
	return err
}
