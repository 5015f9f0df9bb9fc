package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/cli"
	apphttp "budgetbuddy/internal/http"
	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.OpenBackend(context.Background(), logger, cfg)

	// A nil *amqp.Client must not become a non-nil Publisher.
	var publisher amqp.Publisher
	if res.Events != nil {
		publisher = res.Events
	}

	srv := apphttp.NewServer(":"+cfg.Port,
		apphttp.Config{
			ManagerCacheSize:   cfg.ManagerCacheSize,
			ManagerCacheTTL:    cfg.ManagerCacheTTL,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			RateLimitBurst:     cfg.RateLimitBurst,
		},
		apphttp.Deps{
			Remote:    res.Store,
			Accounts:  identity.NewDirectory(res.Store, identity.WithDirectoryLogger(logger)),
			Tokens:    identity.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, res.Store),
			Publisher: publisher,
			Ready:     res.Ping,
			Logger:    logger,
		})

	ctx, done := cli.GracefulShutdown(logger, cli.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting budgetbuddy server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
