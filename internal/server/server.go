// Package server provides the HTTP server and routing for folio.
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

	"github.com/niveshlabs/folio/internal/clients/quotes"
	"github.com/niveshlabs/folio/internal/clients/stream"
	"github.com/niveshlabs/folio/internal/config"
	"github.com/niveshlabs/folio/internal/database"
	performancehandlers "github.com/niveshlabs/folio/internal/modules/performance/handlers"
	portfoliohandlers "github.com/niveshlabs/folio/internal/modules/portfolio/handlers"
	snapshothandlers "github.com/niveshlabs/folio/internal/modules/snapshots/handlers"
	valuationhandlers "github.com/niveshlabs/folio/internal/modules/valuation/handlers"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Cfg         *config.Config
	PortfolioDB *database.DB
	SnapshotsDB *database.DB

	QuoteClient  *quotes.Client
	StreamClient *stream.Client

	PortfolioHandlers   *portfoliohandlers.Handler
	ValuationHandlers   *valuationhandlers.Handler
	PerformanceHandlers *performancehandlers.Handler
	SnapshotHandlers    *snapshothandlers.Handler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	systemHandlers *SystemHandlers
	cfg            Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.PortfolioDB, cfg.SnapshotsDB, cfg.StreamClient)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		s.cfg.PortfolioHandlers.RegisterRoutes(r)
		s.cfg.ValuationHandlers.RegisterRoutes(r)
		s.cfg.PerformanceHandlers.RegisterRoutes(r)
		s.cfg.SnapshotHandlers.RegisterRoutes(r)

		marketHandlers := NewMarketHandlers(s.cfg.QuoteClient, s.cfg.StreamClient, s.log)
		marketHandlers.RegisterRoutes(r)

		r.Get("/system/health", s.systemHandlers.HandleHealth)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Cfg.Port).Msg("Starting HTTP server")
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
