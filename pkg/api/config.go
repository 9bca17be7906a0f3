package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/explorer-go/internal/constants"
)

// Config holds API server configuration
type Config struct {
	// Host is the server host (default: localhost)
	Host string

	// Port is the server port (default: 8080)
	Port int

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration

	// EnableCORS enables CORS middleware
	EnableCORS bool

	// AllowedOrigins is a list of allowed CORS origins
	AllowedOrigins []string

	// EnableWebSocket serves session view and alert feeds
	EnableWebSocket bool

	// WebSocketPath is the WebSocket endpoint path (default: /ws)
	WebSocketPath string

	// EnableRateLimit enables rate limiting middleware
	EnableRateLimit bool

	// RateLimitPerSecond is the number of requests allowed per second per IP
	RateLimitPerSecond float64

	// RateLimitBurst is the maximum burst size
	RateLimitBurst int

	// SessionTTL is how long an idle session is kept
	SessionTTL time.Duration

	// SessionCookie names the cookie carrying the session id
	SessionCookie string

	// QueryNode is the default query node of new sessions
	QueryNode string

	// ExternalExplorer is the base of external explorer links
	ExternalExplorer string

	// PageSize is the number of transactions requested per page
	PageSize int
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:               constants.DefaultAPIHost,
		Port:               constants.DefaultAPIPort,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		IdleTimeout:        constants.DefaultIdleTimeout,
		MaxHeaderBytes:     constants.DefaultMaxHeaderBytes,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
		EnableCORS:         false,
		AllowedOrigins:     []string{"*"},
		EnableWebSocket:    true,
		WebSocketPath:      constants.DefaultWebSocketPath,
		EnableRateLimit:    true,
		RateLimitPerSecond: constants.DefaultRateLimitPerSecond,
		RateLimitBurst:     constants.DefaultRateLimitBurst,
		SessionTTL:         constants.DefaultSessionTTL,
		SessionCookie:      constants.DefaultSessionCookie,
		QueryNode:          constants.DefaultQueryNode,
		ExternalExplorer:   constants.DefaultExternalExplorer,
		PageSize:           constants.DefaultPageSize,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.EnableCORS && len(c.AllowedOrigins) == 0 {
		return errors.New("allowed origins cannot be empty when CORS is enabled")
	}
	if c.EnableWebSocket && c.WebSocketPath == "" {
		return errors.New("websocket path cannot be empty")
	}
	if c.EnableRateLimit && (c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("rate limit and burst must be positive when rate limiting is enabled")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.SessionCookie == "" {
		return errors.New("session cookie name cannot be empty")
	}
	if c.QueryNode == "" {
		return errors.New("query node cannot be empty")
	}
	if c.PageSize < constants.MinPageSize || c.PageSize > constants.MaxPageSize {
		return fmt.Errorf("invalid page size: %d", c.PageSize)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
