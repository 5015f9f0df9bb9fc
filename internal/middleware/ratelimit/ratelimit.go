// Package ratelimit throttles requests per client IP with token buckets.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	hits         atomic.Int64

	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	now             func() time.Time
}

type clientInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
	// IdleTimeout drops buckets for clients not seen for this long.
	IdleTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             10,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

// NewLimiter creates a new rate limiter and starts its cleanup goroutine.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}

	rl := &Limiter{
		clients:         make(map[string]*clientInfo),
		stopCleanup:     make(chan struct{}),
		limit:           rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:           config.Burst,
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		now:             time.Now,
	}
	go rl.startCleanup()
	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	now := rl.now()
	client, exists := rl.clients[clientIP]
	if !exists {
		client = &clientInfo{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientIP] = client
	}
	client.lastSeen = now
	rl.mu.Unlock()

	if client.limiter.AllowN(now, 1) {
		return true
	}
	rl.hits.Add(1)
	return false
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTimeout)
	for ip, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

// GetMetrics returns current rate limiting metrics
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   rl.hits.Load(),
		ClientCount: int64(rl.ActiveClients()),
	}
}

// IsMutating reports whether the request changes server state. Use it as
// the skip predicate to limit only writes.
func IsMutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Middleware creates HTTP middleware for rate limiting. Requests for which
// apply returns false pass through untouched; a nil apply limits everything.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, apply func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apply != nil && !apply(r) {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.Allow(extractIP(r)) {
				if onLimit != nil {
					onLimit(w, r)
				} else {
					w.Header().Set("Retry-After", "60")
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
