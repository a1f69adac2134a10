// Package server exposes localization, deepcopy, and run management
// over a REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/stagehand/internal/engine"
	"github.com/me/stagehand/internal/localize"
	"github.com/me/stagehand/internal/store"
)

// Server is the stagehand REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	svc       *localize.Service
	store     store.Store
	engine    *engine.Client // optional; run endpoints 502 without it
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithEngine sets the workflow engine client used by run endpoints.
func WithEngine(c *engine.Client) Option {
	return func(s *Server) {
		s.engine = c
	}
}

// New creates a Server with all routes registered. st may be nil when
// run history is not wanted (e.g. in tests of the transfer endpoints).
func New(svc *localize.Service, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		svc:       svc,
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Transfers
		r.Post("/localize", s.handleLocalize)
		r.Post("/deepcopy", s.handleDeepcopy)
		r.Post("/copy", s.handleCopy)

		// Run history and engine proxy
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/metadata", s.handleRunMetadata)
				r.Post("/abort", s.handleAbortRun)
			})
		})

		r.Get("/backends", s.handleBackends)
	})
}
