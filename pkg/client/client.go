// Package client is the HTTP transport between the explorer and a query node.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/explorer-go/internal/constants"
	"github.com/0xmhha/explorer-go/internal/metrics"
	"github.com/0xmhha/explorer-go/pkg/request"
)

// Client issues request descriptors against query nodes
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64
	logger      *zap.Logger
}

// Config holds client configuration
type Config struct {
	// Timeout bounds a whole request. Zero means no deadline.
	Timeout time.Duration

	// WithCredentials keeps session cookies set by query nodes
	WithCredentials bool

	// RateLimit is the outbound requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	UserAgent    string
	MaxBodyBytes int64

	// HTTPClient overrides the default client. Timeout and WithCredentials
	// are applied on top of it only when it has none of its own.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a new query node client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if httpClient.Timeout == 0 && cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	if cfg.WithCredentials && httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = constants.DefaultUserAgent
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = constants.MaxResponseBytes
	}

	return &Client{
		httpClient:  httpClient,
		limiter:     limiter,
		userAgent:   userAgent,
		maxBodySize: maxBody,
		logger:      logger,
	}, nil
}

// Do sends the request and returns the raw 2xx body. Any other outcome is
// a *TransportError.
func (c *Client) Do(ctx context.Context, desc *request.Descriptor) (json.RawMessage, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}

	kind := desc.Kind.String()
	start := time.Now()
	defer func() {
		metrics.QueryNodeRequestLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.QueryNodeRequestsTotal.WithLabelValues(kind, "rate_limited").Inc()
			return nil, &TransportError{QueryNode: desc.QueryNode, Err: err}
		}
	}

	req, err := c.newRequest(ctx, desc)
	if err != nil {
		metrics.QueryNodeRequestsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, &TransportError{QueryNode: desc.QueryNode, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.QueryNodeRequestsTotal.WithLabelValues(kind, "network_error").Inc()
		c.logger.Warn("query node request failed",
			zap.String("node", desc.QueryNode),
			zap.String("path", desc.Path),
			zap.Error(err))
		return nil, &TransportError{QueryNode: desc.QueryNode, Err: err}
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		metrics.QueryNodeRequestsTotal.WithLabelValues(kind, "read_error").Inc()
		return nil, &TransportError{QueryNode: desc.QueryNode, StatusCode: resp.StatusCode, Err: err}
	}
	metrics.QueryNodeResponseBytes.WithLabelValues(kind).Observe(float64(len(body)))

	status := strconv.Itoa(resp.StatusCode)
	metrics.QueryNodeRequestsTotal.WithLabelValues(kind, status).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("query node returned error status",
			zap.String("node", desc.QueryNode),
			zap.String("path", desc.Path),
			zap.Int("status", resp.StatusCode))
		return nil, &TransportError{
			QueryNode:     desc.QueryNode,
			StatusCode:    resp.StatusCode,
			ServerMessage: serverMessage(body),
			Body:          body,
			Err:           fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	c.logger.Debug("query node request completed",
		zap.String("kind", kind),
		zap.String("path", desc.Path),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return json.RawMessage(body), nil
}

func (c *Client) newRequest(ctx context.Context, desc *request.Descriptor) (*http.Request, error) {
	var body io.Reader
	if desc.Body != nil {
		payload, err := json.Marshal(desc.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// serverMessage extracts the Error field of a structured error body
func serverMessage(body []byte) string {
	var payload struct {
		Error string `json:"Error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
