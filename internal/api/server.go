package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/pipeline"
	"github.com/opensource-web3/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pipeline.Engine, overrides *rules.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, overrides, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and observability endpoints (no chain required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// API routes (chain required)
	router.Route("/", func(r chi.Router) {
		r.Use(ChainMiddleware)

		// Transaction scoring
		r.Post("/score", handler.Score)
		r.Post("/score/batch", handler.ScoreBatch)

		// Verdict and submission retrieval
		r.Get("/assessments/{id}", handler.GetAssessment)
		r.Get("/transactions/{id}", handler.GetTransaction)

		// Model lifecycle
		r.Get("/model", handler.GetModel)
		r.Post("/model/reload", handler.ReloadModel)

		// Chain statistics
		r.Get("/stats", handler.Stats)

		// Protection override management
		r.Get("/overrides", handler.ListOverrides)
		r.Post("/overrides", handler.CreateOverride)
		r.Delete("/overrides/{id}", handler.DeleteOverride)
		r.Post("/overrides/reload", handler.ReloadOverrides)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
