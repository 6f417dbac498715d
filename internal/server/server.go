package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/evand/conditional-markets/internal/metrics"
	"github.com/evand/conditional-markets/internal/server/handler"
	"github.com/evand/conditional-markets/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Plans     *handler.PlanHandler
	Reconcile *handler.ReconcileHandler
}

// Server is the headless HTTP API for the conditional markets client.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, metrics, CORS, auth, rate limiting).
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and metrics (no auth required for probes).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/sync", handlers.Markets.SyncMarkets)

	// Plan endpoints.
	mux.HandleFunc("POST /api/plans", handlers.Plans.Simulate)
	mux.HandleFunc("GET /api/plans", handlers.Plans.ListPlans)
	mux.HandleFunc("GET /api/plans/{id}", handlers.Plans.GetPlan)

	// Reconciliation endpoints.
	mux.HandleFunc("POST /api/plans/{id}/reconcile", handlers.Reconcile.Run)
	mux.HandleFunc("GET /api/plans/{id}/reports", handlers.Reconcile.ListByPlan)
	mux.HandleFunc("GET /api/reports", handlers.Reconcile.ListRecent)
	mux.HandleFunc("GET /api/reports/{id}", handlers.Reconcile.GetReport)

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting.
	h = middleware.RateLimit(middleware.DefaultRatePerSec, middleware.DefaultBurst)(h)

	// Apply request logging and prometheus instrumentation.
	h = middleware.Logging(logger)(h)
	h = metrics.Middleware(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
