package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Probes and metrics
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// On-demand evaluation; idempotent per withdrawal id
	router.Post("/withdrawals/evaluate", handler.Evaluate)

	// Operator routes: writes are attributed via X-Operator-ID
	router.Group(func(r chi.Router) {
		r.Use(OperatorMiddleware)

		r.Get("/snapshots/{id}", handler.GetSnapshot)
		r.Put("/snapshots/{id}/state", handler.UpdateSnapshotState)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", handler.ListRules)
			r.Get("/keys", handler.ListRuleKeys)
			r.Post("/", handler.CreateRule)
			r.Get("/{key}", handler.GetRule)
			r.Put("/{key}", handler.UpdateRule)
			r.Post("/{key}/toggle", handler.ToggleRule)
			r.Delete("/{key}", handler.DeleteRule)
		})

		r.Route("/bonus-policies", func(r chi.Router) {
			r.Get("/", handler.ListPolicies)
			r.Get("/keys", handler.ListPolicyKeywords)
			r.Post("/", handler.CreatePolicy)
			r.Get("/{id}", handler.GetPolicy)
			r.Put("/{id}", handler.UpdatePolicy)
			r.Post("/{id}/toggle", handler.TogglePolicy)
			r.Delete("/{id}", handler.DeletePolicy)
		})
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
