// Package server exposes the node's HTTP API: task submission, object
// publication, queue introspection, and journal reads.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/nodelet/internal/config"
	"github.com/me/nodelet/internal/scheduler"
	"github.com/me/nodelet/internal/store"
)

// Server is the nodelet REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.NodeConfig
	startTime time.Time
	store     store.Store
	scheduler scheduler.Scheduler
}

// New creates a new Server with all routes registered.
// sched may be nil in tests that only exercise journal reads.
func New(cfg config.NodeConfig, st store.Store, sched scheduler.Scheduler, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		scheduler: sched,
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
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.handleQueueCounts)
			r.Get("/{bucket}", s.handleQueueBucket)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleSubmitTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Get("/transitions", s.handleGetTaskTransitions)
			})
		})

		r.Post("/objects/{id}", s.handlePutObject)
	})
}
