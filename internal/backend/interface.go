package backend

import (
	"context"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/ports"
)

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the opened store, the optional event client and
// the cleanup for both.
type BackendResult struct {
	Store ports.RemoteStore
	// Events is nil when AMQP is not configured or unreachable.
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Ping reports whether the store is reachable. Stores without a Ping are
// always ready.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
