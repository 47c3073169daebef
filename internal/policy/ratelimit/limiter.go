// Package ratelimit paces requests issued by the collection loop so the
// data source sees at most one request per configured interval.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum delay between consecutive requests. Pacing is
// a scheduling contract owned by the orchestrator, not by a single fetch.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a Limiter with the given minimum inter-request delay.
// A non-positive delay disables pacing.
func New(minDelay time.Duration) *Limiter {
	if minDelay <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(minDelay), 1)}
}

// Wait blocks until the next request may be issued or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
