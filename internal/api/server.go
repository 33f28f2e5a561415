// Package api serves rule evaluation and rule management over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/glrules/internal/metrics"
	"github.com/Veraticus/glrules/internal/ratelimit"
	"github.com/Veraticus/glrules/internal/rules"
	"github.com/Veraticus/glrules/internal/service"
)

// OwnerHeader carries the owner every request acts on behalf of.
const OwnerHeader = "X-Owner-ID"

const maxBodyBytes = 1 << 20

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store     service.Storage
	evaluator *rules.Evaluator
	limiter   *ratelimit.Limiter
	metrics   *metrics.Collector
	registry  *prometheus.Registry
}

// Deps are the collaborators a Server needs. Limiter and Metrics are optional.
type Deps struct {
	Store     service.Storage
	Evaluator *rules.Evaluator
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Collector
	Registry  *prometheus.Registry
}

// Config configures the HTTP listener.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a server. When deps carries no registry a private one is
// created for the metrics collector.
func NewServer(deps Deps) *Server {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		if deps.Metrics != nil {
			deps.Metrics.Register(reg)
		}
	}
	return &Server{
		store:     deps.Store,
		evaluator: deps.Evaluator,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		registry:  reg,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(requireOwner)
		r.Use(s.rateLimit)

		r.Post("/rules/evaluate", s.handleEvaluate)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleCreateRule)
		r.Get("/rules/{id}", s.handleGetRule)
		r.Put("/rules/{id}", s.handleUpdateRule)
		r.Delete("/rules/{id}", s.handleDeleteRule)

		r.Get("/applications", s.handleListApplications)

		r.Get("/corrections", s.handleListCorrections)
		r.Post("/corrections", s.handleCreateCorrection)
		r.Get("/corrections/patterns", s.handleCorrectionPatterns)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(cctx)
	}()

	slog.Info("HTTP server listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		if err := s.metrics.Refresh(r.Context()); err != nil {
			slog.Warn("Failed to refresh store metrics", "error", err)
		}
	}
	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
