package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livepoll"

// Broadcaster Metrics
var (
	// BroadcasterActivePolls tracks polls with at least one live session
	BroadcasterActivePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcaster_active_polls",
			Help:      "Number of polls with at least one live session",
		},
	)

	// BroadcasterLiveSessions tracks registered live sessions across all polls
	BroadcasterLiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcaster_live_sessions",
			Help:      "Number of live sessions across all polls",
		},
	)

	// BroadcasterDeliveriesTotal tracks per-session delivery outcomes (delivered/dropped/stale)
	BroadcasterDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcaster_deliveries_total",
			Help:      "Per-session snapshot deliveries by result",
		},
		[]string{"result"},
	)

	// BroadcasterEvictionsTotal tracks sessions removed because delivery failed
	BroadcasterEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcaster_evictions_total",
			Help:      "Sessions evicted after a failed delivery by reason",
		},
		[]string{"reason"},
	)

	// BroadcasterPublishDuration tracks time spent handing one snapshot to all sessions
	BroadcasterPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcaster_publish_duration_seconds",
			Help:      "Time to hand one snapshot to every session of a poll",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks time to write one message to a socket
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "websocket_message_send_duration_seconds",
			Help:      "Time to write one WebSocket message",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_ping_failures_total",
			Help:      "Total WebSocket ping write failures",
		},
	)

	// WebSocketConnectionsRejected tracks upgrades refused by connection limits
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_connections_rejected_total",
			Help:      "WebSocket connections rejected by reason",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionDuration tracks how long live sessions stay open
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "websocket_connection_duration_seconds",
			Help:      "Lifetime of WebSocket connections",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)
)

// Poll Metrics
var (
	// VotesTotal tracks vote outcomes (applied/not_found/invalid_option/rate_limited/error)
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes by result",
		},
		[]string{"result"},
	)

	// PollsCreatedTotal tracks successfully created polls
	PollsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "Total polls created",
		},
	)

	// SnapshotCacheTotal tracks GetPoll cache lookups (hit/miss)
	SnapshotCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache lookups by result",
		},
		[]string{"result"},
	)
)

// Relay Metrics
var (
	// RelayMessagesTotal tracks snapshots crossing Redis (direction=out|in)
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Snapshots relayed through Redis by direction and result",
		},
		[]string{"direction", "result"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by statement kind
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks failed database queries by statement kind
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/platform/errors
