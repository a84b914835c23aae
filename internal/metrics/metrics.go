package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection and routing metrics
var (
	// ConnectionsActive tracks live WebSocket connections held by the hub
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptparty_connections_active",
			Help: "Number of live WebSocket connections",
		},
	)

	// InboundMessagesTotal counts decoded client messages by kind
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_inbound_messages_total",
			Help: "Inbound client messages by kind",
		},
		[]string{"kind"},
	)

	// InboundRateLimitedTotal counts messages dropped by the per-connection limiter
	InboundRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptparty_inbound_rate_limited_total",
			Help: "Inbound messages dropped by the per-connection rate limiter",
		},
	)

	// DeliveriesTotal counts outbound deliveries by status (sent/skipped)
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_deliveries_total",
			Help: "Outbound message deliveries by status",
		},
		[]string{"status"},
	)
)

// Round metrics
var (
	RoundsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptparty_rounds_started_total",
			Help: "Rounds started",
		},
	)

	RoundStartsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptparty_round_starts_rejected_total",
			Help: "Round starts rejected because the tournament is closed or missing",
		},
	)

	// AnswersTotal counts submissions by outcome
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_answers_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"outcome"},
	)
)

// Image job metrics
var (
	ImageJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptparty_image_jobs_in_flight",
			Help: "Image generation jobs currently running",
		},
	)

	ImageJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_image_jobs_total",
			Help: "Finished image generation jobs by outcome",
		},
		[]string{"outcome"},
	)

	ImageJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptparty_image_job_duration_seconds",
			Help:    "Image generation job duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	// CircuitBreakerState tracks the provider breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptparty_circuit_breaker_state",
			Help: "Image provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_circuit_breaker_state_changes_total",
			Help: "Image provider circuit breaker transitions by new state",
		},
		[]string{"component", "state"},
	)
)

// Event log metrics
var (
	EventLogDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptparty_event_log_dropped_total",
			Help: "Audit entries dropped because the writer queue was full or closed",
		},
	)

	EventLogWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptparty_event_log_write_errors_total",
			Help: "Audit entry write failures by sink",
		},
		[]string{"sink"},
	)
)
