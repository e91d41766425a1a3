// Package ratelimit paces calls to external AI providers.
//
// A Limiter is a token bucket with an additional back-off window that is
// opened when a provider answers 429. The provider decorators in this
// package wait on the limiter before every call and open the back-off
// window when the wrapped call fails with domain.ErrRateLimited.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBackoff is applied when a provider does not say how long to wait.
const DefaultBackoff = 60 * time.Second

// Config holds rate limiting configuration for one provider.
type Config struct {
	// RequestsPerMinute is the sustained rate. Zero or negative disables pacing.
	RequestsPerMinute int

	// BurstSize is the maximum burst size. Defaults to 1.
	BurstSize int
}

// Limiter provides rate limiting for provider requests.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// New creates a limiter. A non-positive rate yields an unlimited bucket
// that still honours back-off windows.
func New(cfg Config) *Limiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &Limiter{
		limiter: rate.NewLimiter(limit, cfg.BurstSize),
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any back-off period set by Backoff.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		timer := time.NewTimer(time.Until(retryAt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// Backoff blocks all callers for d. A non-positive d uses DefaultBackoff.
func (l *Limiter) Backoff(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d <= 0 {
		d = DefaultBackoff
	}
	until := time.Now().Add(d)
	if until.After(l.retryAt) {
		l.retryAt = until
	}
}

// Allow reports whether a request may be made immediately.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return l.limiter.Allow()
}
