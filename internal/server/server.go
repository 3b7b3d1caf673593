// Package server is the HTTP and WebSocket surface of tradeloop: loop
// status, profile and venue switching, risk history and the trading
// journal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/server/middleware"
	"github.com/alanyoungcy/tradeloop/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AuthToken   string // empty disables authentication
	// RateLimitPerMin caps requests per client IP. Zero disables it.
	RateLimitPerMin int
}

// Handlers aggregates the route handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Profiles *handler.ProfileHandler
	Risk     *handler.RiskHandler
	Venues   *handler.VenueHandler
	Journal  *handler.JournalHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers routes and wraps them in the middleware chain:
// CORS, logging, auth, then rate limiting closest to the handlers.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	}
	if h.Status != nil {
		mux.HandleFunc("GET /api/status", h.Status.GetStatus)
		mux.HandleFunc("POST /api/loop/stop", h.Status.StopLoop)
	}
	if h.Profiles != nil {
		mux.HandleFunc("GET /api/profiles", h.Profiles.ListProfiles)
		mux.HandleFunc("GET /api/profiles/active", h.Profiles.GetActive)
		mux.HandleFunc("POST /api/profiles/active", h.Profiles.SetActive)
		mux.HandleFunc("GET /api/profiles/recommend", h.Profiles.Recommend)
		mux.HandleFunc("GET /api/profiles/compliance", h.Profiles.Compliance)
		mux.HandleFunc("GET /api/profiles/{id}", h.Profiles.GetProfile)
		mux.HandleFunc("PUT /api/profiles/{id}", h.Profiles.PutProfile)
	}
	if h.Risk != nil {
		mux.HandleFunc("GET /api/violations", h.Risk.ListViolations)
		mux.HandleFunc("GET /api/risk/summary", h.Risk.GetSummary)
		mux.HandleFunc("GET /api/risk/equity", h.Risk.GetEquity)
	}
	if h.Venues != nil {
		mux.HandleFunc("GET /api/venues", h.Venues.ListVenues)
		mux.HandleFunc("POST /api/venues/active", h.Venues.SetActive)
	}
	if h.Journal != nil {
		mux.HandleFunc("GET /api/reports", h.Journal.ListReports)
		mux.HandleFunc("GET /api/reports/{day}", h.Journal.GetReport)
		mux.HandleFunc("GET /api/orders", h.Journal.ListOrders)
		mux.HandleFunc("GET /api/orders/{id}", h.Journal.GetOrder)
		mux.HandleFunc("GET /api/audit", h.Journal.ListAudit)
		mux.HandleFunc("GET /api/trades", h.Journal.ListTrades)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var chain http.Handler = mux
	chain = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute, logger)(chain)
	chain = middleware.Auth(cfg.AuthToken, "/api/health")(chain)
	chain = middleware.Logging(logger)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: chain,
		logger:  logger,
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
