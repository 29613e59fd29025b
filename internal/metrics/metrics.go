package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_open_connections",
			Help: "Currently attached connections",
		},
	)

	OnlineIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_online_identities",
			Help: "Identities with at least one live connection",
		},
	)

	// Event metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_events_received_total",
			Help: "Inbound events decoded",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_events_dropped_total",
			Help: "Inbound events dropped without effect",
		},
		[]string{"reason"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_frames_dropped_total",
			Help: "Outbound frames dropped because a connection's buffer was full",
		},
	)

	// Business metrics
	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_relayed_total",
			Help: "Messages persisted and fanned out",
		},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_send_failures_total",
			Help: "Sends rejected because persistence failed",
		},
	)

	ReceiptsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_receipts_recorded_total",
			Help: "New delivery receipts recorded",
		},
		[]string{"event"}, // "delivered" or "seen"
	)

	AgentReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_agent_replies_total",
			Help: "Scripted participant replies sent",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_persist_latency_seconds",
			Help:    "Store latency on the relay path",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, 1},
		},
		[]string{"op"},
	)
)
