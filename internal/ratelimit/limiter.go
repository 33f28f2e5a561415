// Package ratelimit provides per-key token bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBurst is used when a non-positive burst is configured.
const DefaultBurst = 5

// Decision is the outcome of a rate limit check.
type Decision struct {
	RetryAfter time.Duration
	Allowed    bool
}

// Limiter keeps one token bucket per key, typically an owner ID.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	now          func() time.Time
	defaultRate  rate.Limit
	defaultBurst int
	mu           sync.RWMutex
}

// NewLimiter creates a limiter allowing requestsPerSecond per key with the
// given burst. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = DefaultBurst
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		now:          time.Now,
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Check consumes a token for key if one is available. When none is, the
// decision reports how long until the next token without consuming it.
func (l *Limiter) Check(key string) Decision {
	now := l.now()
	r := l.getLimiter(key).ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return Decision{Allowed: true}
	}

	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfter: delay}
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.Check(key).Allowed
}

// SetKeyRate sets a custom rate limit for a specific key.
func (l *Limiter) SetKeyRate(key string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[key] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Len returns the number of keys being tracked.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter
	return limiter
}
