package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
	"github.com/twistlabs/guardian/internal/server/handler"
	"github.com/twistlabs/guardian/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers the server registers. Handlers for
// components that do not run in the current mode may be nil; their routes are
// simply not registered.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Alerts  *handler.AlertHandler
	Breaker *handler.BreakerHandler
	Fraud   *handler.FraudHandler
	Ops     *handler.OpsHandler
}

// Server is the operator-facing HTTP API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) applied. The rate
// limiter may be nil when no Redis-backed limiter is available.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Alerts != nil {
		mux.HandleFunc("GET /api/alerts", handlers.Alerts.ListAlerts)
		mux.HandleFunc("POST /api/alerts/{id}/ack", handlers.Alerts.AcknowledgeAlert)
	}

	if handlers.Breaker != nil {
		mux.HandleFunc("GET /api/breaker", handlers.Breaker.GetBreaker)
		mux.HandleFunc("POST /api/breaker/trip", handlers.Breaker.TripBreaker)
		mux.HandleFunc("POST /api/breaker/reset", handlers.Breaker.ResetBreaker)
	}

	if handlers.Fraud != nil {
		mux.HandleFunc("GET /api/fraud/cases", handlers.Fraud.ListOpenCases)
		mux.HandleFunc("GET /api/fraud/cases/{id}", handlers.Fraud.GetCase)
		mux.HandleFunc("POST /api/fraud/cases/{id}/resolve", handlers.Fraud.ResolveCase)
	}

	if handlers.Ops != nil {
		mux.HandleFunc("GET /api/operations", handlers.Ops.ListOperations)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
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
