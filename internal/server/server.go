// Package server provides the HTTP server and routing for the trading engine.
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

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/di"
	ledgerhandlers "github.com/aristath/autotrader/internal/modules/ledger/handlers"
	markethandlers "github.com/aristath/autotrader/internal/modules/market/handlers"
	portfoliohandlers "github.com/aristath/autotrader/internal/modules/portfolio/handlers"
	riskhandlers "github.com/aristath/autotrader/internal/modules/risk/handlers"
	signalhandlers "github.com/aristath/autotrader/internal/modules/signals/handlers"
	snapshothandlers "github.com/aristath/autotrader/internal/modules/snapshots/handlers"
	tradinghandlers "github.com/aristath/autotrader/internal/modules/trading/handlers"
)

// requestTimeout bounds every API request except the event stream
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       Config
	container *di.Container
	startedAt time.Time

	system       *SystemHandlers
	eventsStream *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg,
		container: cfg.Container,
		startedAt: time.Now(),
	}

	dataDir := ""
	if cfg.Config != nil {
		dataDir = cfg.Config.DataDir
	}
	s.system = NewSystemHandlers(SystemDeps{
		DB:        cfg.Container.LedgerDB,
		Accounts:  cfg.Container.Ledger,
		Jobs:      cfg.Container.Scheduler,
		Queue:     cfg.Container.Intake,
		Backups:   cfg.Container.BackupService,
		DataDir:   dataDir,
		StartedAt: s.startedAt,
	}, cfg.Log)
	s.eventsStream = NewEventsStreamHandler(cfg.Container.EventBus, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/events/stream stays open indefinitely
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Router exposes the configured router for tests
func (s *Server) Router() http.Handler {
	return s.router
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compression (text/event-stream is not in the compressible set)
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	c := s.container
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events/stream", s.eventsStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			tradinghandlers.NewTradingHandlers(c.Trading, s.log).RegisterRoutes(r)
			ledgerhandlers.NewHandler(c.Ledger, s.log).RegisterRoutes(r)
			riskhandlers.NewHandler(c.Ledger, c.Market, c.Limits, s.log).RegisterRoutes(r)
			markethandlers.NewHandler(c.Market, s.log).RegisterRoutes(r)
			portfoliohandlers.NewHandler(c.Ledger, c.MarkToMarket, s.log).RegisterRoutes(r)
			snapshothandlers.NewHandler(c.Snapshots, s.log).RegisterRoutes(r)
			signalhandlers.NewHandler(c.Intake, c.SignalRepo, s.log).RegisterRoutes(r)

			s.system.RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
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
