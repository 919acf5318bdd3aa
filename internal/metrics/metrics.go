package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invoice_oracle"

var (
	// Protocol
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "transitions_total",
		Help:      "Total protocol operations by outcome",
	}, []string{"op", "result"})

	TransitionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "transition_duration_seconds",
		Help:      "Protocol operation duration including the store transaction",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"op"})

	AuditDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "audit_decisions_total",
		Help:      "Total randomness callbacks by audit decision",
	}, []string{"decision"})

	EscrowVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "escrow_volume_base_units_total",
		Help:      "Total base units moved into escrow and settled to vendors",
	}, []string{"direction"})

	// Orchestrator
	PollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "poll_cycles_total",
		Help:      "Total orchestrator poll cycles",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "poll_errors_total",
		Help:      "Total poll cycles that failed to list pending requests",
	})

	PollLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "poll_duration_seconds",
		Help:      "Orchestrator poll cycle duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "pending_requests",
		Help:      "Pending extraction requests seen by the last poll cycle",
	})

	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "extractions_total",
		Help:      "Total extraction attempts by result",
	}, []string{"result"})

	SuppressedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "suppressed_requests_total",
		Help:      "Total pending requests skipped after a terminal failure",
	})

	// OCR
	OCRRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ocr",
		Name:      "requests_total",
		Help:      "Total OCR calls by result",
	}, []string{"result"})

	OCRLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ocr",
		Name:      "request_duration_seconds",
		Help:      "OCR call duration",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	OCRRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ocr",
		Name:      "rate_limit_waits_total",
		Help:      "Total OCR calls that waited for the rate limiter",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ocr",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})

	// Ledger
	LedgerSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "submissions_total",
		Help:      "Total submitted operations by backend and result",
	}, []string{"backend", "op", "result"})

	LedgerSubmissionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "submission_retries_total",
		Help:      "Total transient submission failures that were retried",
	}, []string{"backend"})

	RandomnessRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vrf",
		Name:      "requests_total",
		Help:      "Total randomness requests by fulfilment result",
	}, []string{"result"})

	// Database pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Cumulative count of waits for PostgreSQL connections from pool",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts delivered by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by the cooldown window",
	}, []string{"type"})

	// Admin
	AdminThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin",
		Name:      "throttled_total",
		Help:      "Total admin API calls refused by the rate limiter, by traffic class",
	}, []string{"class"})
)

// ObserveDBStats copies pool statistics into the pool gauges.
func ObserveDBStats(stats sql.DBStats) {
	DBPoolOpen.Set(float64(stats.OpenConnections))
	DBPoolInUse.Set(float64(stats.InUse))
	DBPoolWaitCount.Set(float64(stats.WaitCount))
}
