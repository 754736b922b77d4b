package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/di"
	cycleshandlers "github.com/aristath/sentinel-insights/internal/modules/cycles/handlers"
	insightshandlers "github.com/aristath/sentinel-insights/internal/modules/insights/handlers"
	riskhandlers "github.com/aristath/sentinel-insights/internal/modules/risk/handlers"
	snapshotshandlers "github.com/aristath/sentinel-insights/internal/modules/snapshots/handlers"
	"github.com/aristath/sentinel-insights/internal/scheduler"
)

// statusInterval is how often the status monitor looks for health changes
const statusInterval = 15 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Jobs      *di.JobInstances
	Hub       *StreamHub // Optional, created when nil
}

// Server represents the HTTP server
type Server struct {
	router        *chi.Mux
	server        *http.Server
	log           zerolog.Logger
	cfg           *config.Config
	container     *di.Container
	hub           *StreamHub
	system        *SystemHandlers
	statusMonitor *StatusMonitor
	cancel        context.CancelFunc
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = NewStreamHub(cfg.Log)
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		hub:       hub,
	}
	s.system = NewSystemHandlers(cfg.Container, jobList(cfg.Jobs), hub, cfg.Log)
	s.statusMonitor = NewStatusMonitor(cfg.Container.State, hub, cfg.Log)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func jobList(jobs *di.JobInstances) []scheduler.Job {
	if jobs == nil {
		return nil
	}
	return []scheduler.Job{jobs.Retention, jobs.WALCheckpoints, jobs.DailyMaintenance}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub feeding /api/stream
func (s *Server) Hub() *StreamHub {
	return s.hub
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Websocket stream is kept out of the timeout and compression middleware
		r.Get("/stream", s.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !s.cfg.DevMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/health", s.system.HandleHealth)
			r.Get("/status", s.system.HandleStatus)
			r.Get("/jobs", s.system.HandleJobs)
			r.Post("/jobs/{name}", s.system.HandleTriggerJob)

			riskhandlers.NewHandler(s.container.SnapshotRepo, s.log).RegisterRoutes(r)
			snapshotshandlers.NewHandler(s.container.SnapshotRepo, s.container.Detector, s.log).RegisterRoutes(r)
			insightshandlers.NewHandler(s.container.InsightRepo, s.log).RegisterRoutes(r)
			cycleshandlers.NewHandler(s.container.CycleRepo, s.container.Scheduler, s.log).RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.statusMonitor.Start(ctx, statusInterval)
	s.log.Info().Msg("Status monitor started")

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if s.cancel != nil {
		s.cancel()
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
