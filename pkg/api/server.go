package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/explorer-go/pkg/api/middleware"
	"github.com/0xmhha/explorer-go/pkg/api/websocket"
	"github.com/0xmhha/explorer-go/pkg/request"
)

// Version is reported by the version endpoint
const Version = "1.0.0"

// Server represents the API server
type Server struct {
	config      *Config
	logger      *zap.Logger
	router      *chi.Mux
	server      *http.Server
	sessions    *SessionManager
	builder     *request.Builder
	wsServer    *websocket.Server
	rateLimiter *apimiddleware.RateLimiter
	startedAt   time.Time
}

// NewServer creates a new API server. transport creates the query node
// transport of every new session.
func NewServer(config *Config, logger *zap.Logger, transport TransportFactory) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if transport == nil {
		return nil, fmt.Errorf("transport factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:    config,
		logger:    logger,
		router:    chi.NewRouter(),
		builder:   request.NewBuilder(config.PageSize),
		startedAt: time.Now(),
	}

	var publisher Publisher
	if config.EnableWebSocket {
		s.wsServer = websocket.NewServer(logger, s.checkOrigin)
		publisher = s.wsServer.Hub()
	}
	s.sessions = NewSessionManager(config, transport, publisher, logger)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Request IDs come first so recovered panics can report them
	s.router.Use(middleware.RequestID)
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.rateLimiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(s.rateLimiter.Middleware)
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(apimiddleware.CORS(s.config.AllowedOrigins))
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.config.EnableWebSocket {
		s.logger.Info("WebSocket API enabled", zap.String("path", s.config.WebSocketPath))
		s.router.Get(s.config.WebSocketPath, s.handleWebSocket)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/explore", s.handleExplore)
		r.Get("/view", s.handleView)
		r.Get("/classify", s.handleClassify)
		r.Post("/search", s.handleSearch)
		r.Post("/next", s.handleNext)
		r.Post("/prev", s.handlePrev)
	})
}

// checkOrigin applies the CORS origin list to websocket upgrades
func (s *Server) checkOrigin(r *http.Request) bool {
	if !s.config.EnableCORS {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	Uptime           string `json:"uptime"`
	QueryNode        string `json:"query_node"`
	Sessions         int    `json:"sessions"`
	WebSocketClients int    `json:"websocket_clients"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		QueryNode: s.config.QueryNode,
		Sessions:  s.sessions.Len(),
	}
	if s.wsServer != nil {
		response.WebSocketClients = s.wsServer.Hub().ClientCount()
	}

	writeJSON(w, http.StatusOK, response)
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"version": Version, "name": "explorer-go"})
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.String("query_node", s.config.QueryNode),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Close releases the background workers without touching the listener
func (s *Server) Close() {
	if s.wsServer != nil {
		s.wsServer.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.sessions.Stop()
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Sessions returns the session manager
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}
