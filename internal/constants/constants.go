package constants

import "time"

// Query Node Constants
const (
	// DefaultQueryNode is the well-known public query node used when the
	// external parameters name none
	DefaultQueryNode = "https://node.deso.org"

	// DefaultExternalExplorer is the base URL used for external explorer links
	DefaultExternalExplorer = "https://explorer.deso.com"

	// DefaultQueryNodeTimeout is the outbound request timeout. Zero means the
	// transport never imposes its own deadline.
	DefaultQueryNodeTimeout time.Duration = 0

	// DefaultUserAgent is sent with every query node request
	DefaultUserAgent = "explorer-go"

	// MaxResponseBytes caps the size of a query node response body (64 MB)
	MaxResponseBytes = 64 << 20
)

// API Paths on the query node
const (
	// PathTip serves the current chain head
	PathTip = "/api/v1"

	// PathTransactionInfo serves public key, mempool and transaction lookups
	PathTransactionInfo = "/api/v1/transaction-info"

	// PathBlock serves blocks by hash or height
	PathBlock = "/api/v1/block"
)

// Pagination Constants
const (
	// DefaultPageSize is the number of transactions requested per page
	DefaultPageSize = 200

	// MinPageSize is the minimum configurable page size
	MinPageSize = 1

	// MaxPageSize is the maximum configurable page size
	MaxPageSize = 1000
)

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout.
	// Explore requests wait on the query node, so this is generous.
	DefaultWriteTimeout = 120 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default per-IP API rate limit
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default per-IP API burst size
	DefaultRateLimitBurst = 100

	// DefaultSessionTTL is how long an idle explorer session is kept
	DefaultSessionTTL = 30 * time.Minute

	// DefaultSessionCookie is the cookie carrying the explorer session id
	DefaultSessionCookie = "explorer_session"

	// DefaultWebSocketPath is the default WebSocket endpoint path
	DefaultWebSocketPath = "/ws"
)

// WebSocket Constants
const (
	// DefaultWSReadBufferSize is the default WebSocket read buffer size
	DefaultWSReadBufferSize = 1024

	// DefaultWSWriteBufferSize is the default WebSocket write buffer size
	DefaultWSWriteBufferSize = 1024
)
