package ocr

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/emperorhan/invoice-oracle/internal/metrics"
)

// Limiter is a token bucket in front of the OCR endpoint. Free OCR plans
// reject bursts, so a backlog of pending requests is drained at a fixed rate.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows rps calls per second with a burst of burst calls. A
// non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until one call is allowed or ctx is done. Reserve is used so
// exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return errors.New("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.OCRRateLimitWaits.Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
