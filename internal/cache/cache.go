// Package cache holds the per-user lifecycle managers kept by the HTTP server.
package cache

import (
	"context"
	"time"

	"budgetbuddy/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically drops expired entries from registered caches so
// their eviction hooks run even when nobody reads the key again.
type Janitor struct {
	caches      []Cleaner
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewJanitor(logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Default(log.ComponentCache)
	}
	return &Janitor{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the janitor. Call before Start.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

// Start begins periodic cleanup of all registered caches
func (j *Janitor) Start(interval time.Duration) {
	go j.cleanup(interval)
}

func (j *Janitor) cleanup(interval time.Duration) {
	defer close(j.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.CleanNow(); n > 0 {
				j.logger.DebugContext(context.Background(), "Cleaned expired cache entries", "count", n)
			}
		case <-j.stopCleanup:
			return
		}
	}
}

// CleanNow runs one cleanup pass and returns the number of removed entries.
func (j *Janitor) CleanNow() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup goroutine. It must be called at most once, after Start.
func (j *Janitor) Stop() {
	close(j.stopCleanup)
	<-j.cleanupDone
}
