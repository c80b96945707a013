// Package ratelimit throttles outbound host reads with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter. A zero or negative rate disables limiting, in
// which case every call returns immediately.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
}

// New creates a limiter allowing rps requests per second with a burst of one.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) String() string {
	if !l.Enabled() {
		return "rate limiting disabled"
	}
	if l.rps < 1 {
		interval := time.Duration(float64(time.Second) / l.rps)
		return fmt.Sprintf("1 request per %v", interval.Round(time.Millisecond))
	}
	return fmt.Sprintf("%.2f rps", l.rps)
}
