package main

import (
	"context"
	"errors"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/cli"
	"budgetbuddy/internal/config"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/sheets"
	gsheet "budgetbuddy/internal/sheets/google"
	"budgetbuddy/internal/store"
	"budgetbuddy/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting rollover-worker")
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend is process-local; the worker only sees its own data")
	}

	res := cli.OpenBackend(context.Background(), logger, cfg)

	var exporter sheets.PeriodExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			_ = res.Cleanup()
			return
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	opts := []worker.Option{worker.WithLogger(logger)}
	if res.Events != nil {
		opts = append(opts, worker.WithPublisher(res.Events))
	}
	if exporter != nil {
		opts = append(opts, worker.WithExporter(exporter))
	}
	w := worker.NewRolloverWorker(store.NewUserStore(res.Store, store.WithLogger(logger)),
		worker.Config{Interval: cfg.RolloverInterval, Concurrency: cfg.RolloverConcurrency}, opts...)

	ctx, done := cli.GracefulShutdown(logger, cli.ShutdownTimeout, func(ctx context.Context) {
		if err := w.Stop(ctx); err != nil {
			logger.Error("Worker stop error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start rollover worker", log.FieldError, err)
		return
	}

	// Archive events from the API and from our own sweeps drive the export.
	if res.Events != nil && exporter != nil {
		go consume(ctx, logger, res.Events, w)
	} else {
		logger.Info("Skipping period event consumption", "events", res.Events != nil, "export", exporter != nil)
	}

	cli.WaitForShutdown(ctx, done)
}

func consume(ctx context.Context, logger *log.Logger, events *amqp.Client, w *worker.RolloverWorker) {
	err := events.ConsumePeriodEvents(ctx, w.HandlePeriodEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Period event consumption failed", log.FieldError, err)
	}
}
