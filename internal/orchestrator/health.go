package orchestrator

import (
	"slices"
	"sync"
	"time"
)

// HealthStatus is the orchestrator's health as seen by the admin API.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusStopped   HealthStatus = "STOPPED"

	// DefaultUnhealthyThreshold is the number of consecutive failed poll
	// cycles before the orchestrator is unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the P95 cycle latency above which
	// the orchestrator is degraded.
	DefaultDegradedLatencyThreshold = 30 * time.Second

	latencyWindowSize = 10
)

// Health tracks poll cycle outcomes. A cycle fails when the pending request
// list cannot be read; failures of single requests do not count.
type Health struct {
	mu                       sync.RWMutex
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	lastError                string
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
	now                      func() time.Time
}

func NewHealth(unhealthyThreshold int) *Health {
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = DefaultUnhealthyThreshold
	}
	return &Health{
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       unhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
		now:                      time.Now,
	}
}

func (h *Health) SetStatus(status HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// RecordSuccess records a completed cycle and its latency. It returns true
// when the cycle recovers the orchestrator from unhealthy.
func (h *Health) RecordSuccess(latency time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.lastError = ""
	h.observe(latency)
	if h.isLatencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordFailure records a failed cycle. It returns true when this failure
// makes the orchestrator unhealthy.
func (h *Health) RecordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if err != nil {
		h.lastError = err.Error()
	}
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

// Must be called with mu held.
func (h *Health) observe(d time.Duration) {
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, d)
}

// Must be called with mu held.
func (h *Health) isLatencyDegraded() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	return h.percentileLatency(95) > h.degradedLatencyThreshold
}

// Must be called with mu held.
func (h *Health) percentileLatency(pct int) time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(h.recentLatencies)
	slices.Sort(sorted)
	idx := (pct*n - 1) / 100
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Status:              string(h.status),
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
		LastError:           h.lastError,
		P95Latency:          h.percentileLatency(95).String(),
	}
}

// HealthSnapshot is a point-in-time view of orchestrator health (JSON-safe).
type HealthSnapshot struct {
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	P95Latency          string     `json:"p95_latency"`
}
