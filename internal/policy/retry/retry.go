// Package retry implements the bounded, jittered backoff policy applied to
// transient fetch failures.
package retry

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// Policy decides whether a failed fetch attempt is retried and how long to
// wait before the next attempt.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Config holds retry policy knobs, injected from configuration rather than
// hardcoded so the policy stays testable with fakes.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// New builds a Policy, applying sane defaults for zero values.
func New(cfg Config) *Policy {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// ShouldRetry reports whether the attempt (0-based) should be retried.
// Only transient failures are retried; permanent failures such as non-429
// client errors or malformed URLs fail immediately.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	var fe *pipeline.FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// Backoff returns the jittered wait before the given attempt's retry.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
