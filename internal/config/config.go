package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/explorer-go/internal/constants"
)

// Config holds all configuration for the explorer
type Config struct {
	QueryNode  QueryNodeConfig  `yaml:"query_node"`
	Pagination PaginationConfig `yaml:"pagination"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
}

// QueryNodeConfig holds query node transport configuration
type QueryNodeConfig struct {
	// Endpoint is used for user searches until parameters name another node
	Endpoint string `yaml:"endpoint"`
	// ExternalExplorer is the base URL explorer links point at
	ExternalExplorer string `yaml:"external_explorer"`
	// Timeout bounds one request. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout"`
	// WithCredentials keeps session cookies set by the query node
	WithCredentials bool `yaml:"with_credentials"`
	// RateLimit is the outbound request rate. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit_per_second"`
	RateBurst int     `yaml:"rate_limit_burst"`
	UserAgent string  `yaml:"user_agent"`
}

// PaginationConfig holds paging configuration
type PaginationConfig struct {
	PageSize int `yaml:"page_size"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	EnableWebSocket    bool          `yaml:"enable_websocket"`
	EnableCORS         bool          `yaml:"enable_cors"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
	SessionCookie      string        `yaml:"session_cookie"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.QueryNode.WithCredentials = true
	cfg.API.Enabled = true
	cfg.API.EnableWebSocket = true
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero values with defaults. Booleans are defaulted by
// NewConfig only, so an explicit false survives.
func (c *Config) SetDefaults() {
	if c.QueryNode.Endpoint == "" {
		c.QueryNode.Endpoint = constants.DefaultQueryNode
	}
	if c.QueryNode.ExternalExplorer == "" {
		c.QueryNode.ExternalExplorer = constants.DefaultExternalExplorer
	}
	if c.QueryNode.UserAgent == "" {
		c.QueryNode.UserAgent = constants.DefaultUserAgent
	}
	if c.QueryNode.RateLimit > 0 && c.QueryNode.RateBurst == 0 {
		c.QueryNode.RateBurst = 1
	}

	if c.Pagination.PageSize == 0 {
		c.Pagination.PageSize = constants.DefaultPageSize
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.API.SessionTTL == 0 {
		c.API.SessionTTL = constants.DefaultSessionTTL
	}
	if c.API.SessionCookie == "" {
		c.API.SessionCookie = constants.DefaultSessionCookie
	}
	if c.API.EnableCORS && len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
}

// LoadFromEnv overrides configuration from EXPLORER_* environment variables
func (c *Config) LoadFromEnv() error {
	// Query node configuration
	if endpoint := os.Getenv("EXPLORER_QUERY_NODE"); endpoint != "" {
		c.QueryNode.Endpoint = endpoint
	}
	if external := os.Getenv("EXPLORER_EXTERNAL_EXPLORER"); external != "" {
		c.QueryNode.ExternalExplorer = external
	}
	if err := envDuration("EXPLORER_QUERY_NODE_TIMEOUT", &c.QueryNode.Timeout); err != nil {
		return err
	}
	if err := envBool("EXPLORER_QUERY_NODE_WITH_CREDENTIALS", &c.QueryNode.WithCredentials); err != nil {
		return err
	}
	if err := envFloat("EXPLORER_QUERY_NODE_RATE_LIMIT", &c.QueryNode.RateLimit); err != nil {
		return err
	}
	if err := envInt("EXPLORER_QUERY_NODE_RATE_BURST", &c.QueryNode.RateBurst); err != nil {
		return err
	}
	if agent := os.Getenv("EXPLORER_USER_AGENT"); agent != "" {
		c.QueryNode.UserAgent = agent
	}

	// Pagination configuration
	if err := envInt("EXPLORER_PAGE_SIZE", &c.Pagination.PageSize); err != nil {
		return err
	}

	// Log configuration
	if level := os.Getenv("EXPLORER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("EXPLORER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// API configuration
	if err := envBool("EXPLORER_API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	if host := os.Getenv("EXPLORER_API_HOST"); host != "" {
		c.API.Host = host
	}
	if err := envInt("EXPLORER_API_PORT", &c.API.Port); err != nil {
		return err
	}
	if err := envBool("EXPLORER_API_WEBSOCKET", &c.API.EnableWebSocket); err != nil {
		return err
	}
	if err := envBool("EXPLORER_API_CORS_ENABLED", &c.API.EnableCORS); err != nil {
		return err
	}
	if allowedOrigins := os.Getenv("EXPLORER_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}
	if err := envFloat("EXPLORER_API_RATE_LIMIT", &c.API.RateLimitPerSecond); err != nil {
		return err
	}
	if err := envInt("EXPLORER_API_RATE_BURST", &c.API.RateLimitBurst); err != nil {
		return err
	}
	if err := envDuration("EXPLORER_API_SESSION_TTL", &c.API.SessionTTL); err != nil {
		return err
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateURL("query node endpoint", c.QueryNode.Endpoint); err != nil {
		return err
	}
	if c.QueryNode.ExternalExplorer != "" {
		if err := validateURL("external explorer", c.QueryNode.ExternalExplorer); err != nil {
			return err
		}
	}
	if c.QueryNode.Timeout < 0 {
		return fmt.Errorf("query node timeout cannot be negative")
	}
	if c.QueryNode.RateLimit < 0 {
		return fmt.Errorf("query node rate limit cannot be negative")
	}

	if c.Pagination.PageSize < constants.MinPageSize || c.Pagination.PageSize > constants.MaxPageSize {
		return fmt.Errorf("page size must be between %d and %d, got %d",
			constants.MinPageSize, constants.MaxPageSize, c.Pagination.PageSize)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.API.Enabled {
		if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
			return fmt.Errorf("invalid API port %d", c.API.Port)
		}
		if c.API.SessionTTL <= 0 {
			return fmt.Errorf("session ttl must be positive")
		}
		if c.API.RateLimitPerSecond < 0 {
			return fmt.Errorf("API rate limit cannot be negative")
		}
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Address returns the API listen address
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", name, raw)
	}
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	val, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = val
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	val, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = val
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	val, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = val
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	val, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = val
	return nil
}
