package retrieval

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter applies a per-host rate limit so concurrent fetches do not
// hammer a single site.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	perHost  rate.Limit
	burst    int
}

func NewHostLimiter(requestsPerHost float64, burst int) *HostLimiter {
	if requestsPerHost <= 0 {
		requestsPerHost = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(requestsPerHost),
		burst:    burst,
	}
}

// Wait blocks until the host's limiter admits a request or the context is
// cancelled.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	return l.limiter(host).Wait(ctx)
}

// Allow reports whether a request to host may proceed right now.
func (l *HostLimiter) Allow(host string) bool {
	return l.limiter(host).Allow()
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring the write lock.
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.perHost, l.burst)
	l.limiters[host] = limiter
	return limiter
}
