// Package server assembles the HTTP API: routing, middleware, and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/seralabs/telepilot/internal/errors"
	"github.com/seralabs/telepilot/internal/server/handlers"
	"github.com/seralabs/telepilot/internal/server/middleware"
	"github.com/seralabs/telepilot/pkg/jobs"
)

// Option customizes a Server.
type Option func(*Server)

// WithRegistry wires the login job registry. Without it the /api routes are
// not registered.
func WithRegistry(registry *jobs.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithRunsDirs points the run endpoints at the telemetry directories.
func WithRunsDirs(runsDir, reportsDir string) Option {
	return func(s *Server) {
		s.runsDir = runsDir
		s.reportsDir = reportsDir
	}
}

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRequestObserver installs a per-request metrics callback.
func WithRequestObserver(observe func(method, path, code string)) Option {
	return func(s *Server) { s.observe = observe }
}

// WithTimeouts overrides the HTTP server timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// Server is the HTTP front end.
type Server struct {
	host string
	port int

	registry   *jobs.Registry
	runsDir    string
	reportsDir string
	log        *zap.Logger
	observe    func(method, path, code string)

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	router     chi.Router
	httpServer *http.Server
}

// New builds a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		log:          zap.NewNop(),
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestLogger(s.log, s.observe))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, req, http.StatusNotFound,
			apperrors.CodeNotFound, "resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, req, http.StatusMethodNotAllowed,
			apperrors.CodeMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.registry != nil {
		auth := handlers.NewAuthHandler(s.registry)
		sessions := handlers.NewSessionsHandler(s.registry.Sessions())
		runs := handlers.NewRunsHandler(s.runsDir, s.reportsDir)

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth/login", func(r chi.Router) {
				r.Post("/", auth.StartLogin)
				r.Get("/{job_id}", auth.JobStatus)
				r.Post("/{job_id}/otp", auth.SubmitOTP)
				r.Post("/{job_id}/2fa", auth.Submit2FA)
			})
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessions.List)
				r.Delete("/{phone}", sessions.Delete)
			})
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", runs.List)
				r.Get("/{run_name}", runs.Show)
				r.Get("/{run_name}/report", runs.Report)
			})
		})
	}

	return r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the server until it fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
