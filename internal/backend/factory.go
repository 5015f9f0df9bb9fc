// Package backend opens the remote store and the optional event client
// selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/remote/memory"
	"budgetbuddy/internal/remote/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		res = f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachEvents(ctx, config, res)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := sqlite.Open(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) *BackendResult {
	f.logger.InfoContext(ctx, "Initialized memory backend")
	return &BackendResult{
		Store:   memory.New(),
		Cleanup: func() error { return nil },
	}
}

// attachEvents connects the AMQP client when configured. A broker that is
// down only disables events.
func (f *DefaultFactory) attachEvents(ctx context.Context, config Config, res *BackendResult) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	storeCleanup := res.Cleanup
	res.Events = client
	res.Cleanup = func() error {
		return errors.Join(client.Close(), storeCleanup())
	}
}
