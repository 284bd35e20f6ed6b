// Package server exposes the search engine over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-search/kestrel/internal/search"
	"github.com/kestrel-search/kestrel/internal/telemetry"
)

// Server is the HTTP front end for the engine.
type Server struct {
	engine  *search.Engine
	metrics *telemetry.Metrics
	logger  *slog.Logger
	http    *http.Server
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
}

// New builds the server and its routes.
func New(cfg Config, engine *search.Engine, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	s := &Server{engine: engine, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/healthz", s.handleHealth)
	if reg := metrics.Registry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }
