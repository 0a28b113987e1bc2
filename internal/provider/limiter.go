package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"eventScope/internal/metrics"
)

// Limiter is a token bucket shared by every call made through one provider.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter allows rps requests per second with burst capacity. A
// non-positive rps disables limiting.
func NewLimiter(rps float64, burst int, name string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst), name: name}
}

// Wait suspends until a token is available or ctx is done. Exactly one token
// is consumed per successful call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.ProviderRateLimitWaits.WithLabelValues(l.name).Inc()
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
