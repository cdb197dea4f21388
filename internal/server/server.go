package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/internal/store"
	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/internal/vm"
	"github.com/me/procsim/pkg/model"
)

// Kernel is the part of a running kernel the API drives.
type Kernel interface {
	Stats() model.TableStats
	Lookup(pid int) (model.ProcSnapshot, bool)
	HostKill(pid int) error
	HostChangeQueue(pid int, class model.Class) error
	Spawn(name string, prog kernel.Program) (int, error)
	Ticks() int
	Halted() []int
	Running() bool
	Config() config.KernelConfig
}

var _ Kernel = (*kernel.Kernel)(nil)

// MemoryStats reports the page pool.
type MemoryStats interface {
	Stats() vm.Stats
}

// Server is the procsim REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	kernel    Kernel
	store     store.Store // optional; nil disables the /runs endpoints
	memory    MemoryStats // optional
	runID     string      // run being recorded, if any
	env       userprog.Env
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the recorded-history endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithMemory reports the page pool on /health.
func WithMemory(m MemoryStats) Option {
	return func(s *Server) {
		s.memory = m
	}
}

// WithRunID names the run the recorder is writing.
func WithRunID(id string) Option {
	return func(s *Server) {
		s.runID = id
	}
}

// WithProgramEnv sets the environment programs launched through the API are built with.
func WithProgramEnv(env userprog.Env) Option {
	return func(s *Server) {
		s.env = env
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, k Kernel, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		kernel:    k,
		env:       userprog.DefaultEnv(logger),
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
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Live process table
		r.Route("/procs", func(r chi.Router) {
			r.Get("/", s.handleListProcs)
			r.Route("/{pid}", func(r chi.Router) {
				r.Get("/", s.handleGetProc)
				r.Post("/kill", s.handleKillProc)
				r.Put("/queue", s.handleChangeQueue)
			})
		})

		// Programs
		r.Get("/programs", s.handleListPrograms)
		r.Post("/workloads", s.handleLaunchWorkload)

		// Recorded history
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/snapshots", s.handleListSnapshots)
				r.Get("/events", s.handleListEvents)
			})
		})
	})
}
