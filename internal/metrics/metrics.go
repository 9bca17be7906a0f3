package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Explorer counters and histograms, partitioned by query kind.

var (
	// Query node transport
	QueryNodeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "query_node",
		Name:      "requests_total",
		Help:      "Total requests sent to the query node",
	}, []string{"kind", "status"})

	QueryNodeRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "explorer",
		Subsystem: "query_node",
		Name:      "request_duration_seconds",
		Help:      "Query node request duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	QueryNodeResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "explorer",
		Subsystem: "query_node",
		Name:      "response_bytes",
		Help:      "Query node response body size",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
	}, []string{"kind"})

	// Pagination cache
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "pagination",
		Name:      "lookups_total",
		Help:      "Pagination cache lookups by outcome",
	}, []string{"kind", "outcome"})

	CacheResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "pagination",
		Name:      "resets_total",
		Help:      "Pagination cache resets caused by a logical query change",
	})

	// Search controller
	SearchCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "search",
		Name:      "cycles_total",
		Help:      "Completed fetch cycles by final status",
	}, []string{"kind", "status"})

	StaleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "search",
		Name:      "stale_responses_total",
		Help:      "Responses discarded because a newer cycle started",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "search",
		Name:      "alerts_total",
		Help:      "User-visible alerts by error class",
	}, []string{"class"})

	// API
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "explorer",
		Subsystem: "api",
		Name:      "active_sessions",
		Help:      "Explorer sessions currently held by the API server",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "explorer",
		Subsystem: "api",
		Name:      "websocket_clients",
		Help:      "Connected websocket clients",
	})
)
