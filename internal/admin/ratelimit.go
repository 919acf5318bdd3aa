package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emperorhan/invoice-oracle/internal/metrics"
)

const (
	idleLimiterTTL = 10 * time.Minute
	sweepInterval  = time.Minute
)

// trafficClass groups admin routes that share a budget.
type trafficClass string

const (
	classLookup     trafficClass = "lookup"
	classMetrics    trafficClass = "metrics"
	classUnsuppress trafficClass = "unsuppress"
)

type budget struct {
	every rate.Limit
	burst int
}

var defaultBudgets = map[trafficClass]budget{
	classLookup:  {every: 1, burst: 5},
	classMetrics: {every: 5, burst: 10},
	// Each unsuppress makes the next poll pay for another OCR call.
	classUnsuppress: {every: rate.Every(6 * time.Second), burst: 3},
}

const unsuppressPrefix = "/admin/v1/requests/"

// classify maps a request to its traffic class and to the scope its budget
// is counted against. Unsuppress is scoped to the claimant so that spreading
// retries of one stuck request over several clients does not multiply OCR
// spend; everything else is scoped to the client.
func classify(r *http.Request) (trafficClass, string) {
	if r.Method == http.MethodPost {
		if rest, ok := strings.CutPrefix(r.URL.Path, unsuppressPrefix); ok {
			if claimant, ok := strings.CutSuffix(rest, "/unsuppress"); ok && claimant != "" {
				return classUnsuppress, "claimant:" + claimant
			}
		}
	}
	if r.URL.Path == "/metrics" {
		return classMetrics, "client:" + extractClientIP(r)
	}
	return classLookup, "client:" + extractClientIP(r)
}

type scopedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles admin API traffic per class and scope.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*scopedLimiter
	budgets  map[trafficClass]budget
	logger   *slog.Logger
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter with the default budgets. Stop releases
// its sweeper.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		limiters: make(map[string]*scopedLimiter),
		budgets:  defaultBudgets,
		logger:   logger.With("component", "admin_ratelimit"),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-idleLimiterTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Len reports how many scopes currently hold a limiter.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) allow(class trafficClass, scope string) bool {
	key := string(class) + "|" + scope
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		b := rl.budgets[class]
		l = &scopedLimiter{limiter: rate.NewLimiter(b.every, b.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = rl.now()
	return l.limiter.Allow()
}

func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, scope := classify(r)
		if !rl.allow(class, scope) {
			metrics.AdminThrottledTotal.WithLabelValues(string(class)).Inc()
			rl.logger.Warn("admin API call throttled",
				"class", class,
				"scope", scope,
				"method", r.Method,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
