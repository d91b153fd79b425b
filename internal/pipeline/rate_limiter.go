package pipeline

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a politeness delay per host
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a new rate limiter with the given default delay
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    defaultDelay,
	}
}

// Wait blocks until a request to the given URL's host is permitted
func (r *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	return r.getLimiter(parsed.Host).Wait(ctx)
}

// getLimiter gets or creates a rate limiter for a host
func (r *RateLimiter) getLimiter(host string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[host]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := r.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(r.delay), 1)
	r.limiters[host] = limiter

	return limiter
}
