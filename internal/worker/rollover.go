// Package worker runs server-side period maintenance: archiving expired
// periods, repairing half-finished archives and exporting archived periods.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/sheets"
)

// PeriodStore is the user-explicit store access the worker needs.
type PeriodStore interface {
	UsersWithActivePeriods(ctx context.Context) ([]string, error)
	CurrentPeriod(ctx context.Context, uid string) (*core.BudgetPeriod, error)
	HistoricalPeriods(ctx context.Context, uid string) ([]core.BudgetPeriod, error)
	Archive(ctx context.Context, uid string, p core.BudgetPeriod) bool
	RepairArchived(ctx context.Context, uid string) ([]string, error)
}

type Config struct {
	// Interval between sweeps (default: 1h)
	Interval time.Duration
	// Concurrency bounds how many users are swept at once (default: 4)
	Concurrency int
}

func DefaultConfig() Config {
	return Config{Interval: time.Hour, Concurrency: 4}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Users    int
	Archived int
	Repaired int
	Failed   int
}

// RolloverWorker applies the period expiry rule for every user, without
// waiting for that user's client to load its current period.
type RolloverWorker struct {
	store     PeriodStore
	publisher amqp.Publisher
	exporter  sheets.PeriodExporter
	config    Config
	now       func() time.Time
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*RolloverWorker)

// WithPublisher publishes period.archived events for periods the sweep archives.
func WithPublisher(p amqp.Publisher) Option {
	return func(w *RolloverWorker) { w.publisher = p }
}

// WithExporter enables HandlePeriodEvent's sheet export.
func WithExporter(e sheets.PeriodExporter) Option {
	return func(w *RolloverWorker) { w.exporter = e }
}

func WithClock(now func() time.Time) Option {
	return func(w *RolloverWorker) { w.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(w *RolloverWorker) { w.logger = l.WithComponent(log.ComponentWorker) }
}

func NewRolloverWorker(store PeriodStore, config Config, opts ...Option) *RolloverWorker {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	w := &RolloverWorker{
		store:  store,
		config: config,
		now:    time.Now,
		logger: log.Default(log.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs a sweep immediately and then on every interval. It returns an
// error if the worker is already running.
func (w *RolloverWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("rollover worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Rollover worker started",
		"interval", w.config.Interval,
		"concurrency", w.config.Concurrency)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (w *RolloverWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Rollover worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Rollover worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *RolloverWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RolloverWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweepAndLog(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepAndLog(ctx)
		}
	}
}

func (w *RolloverWorker) sweepAndLog(ctx context.Context) {
	res, err := w.Sweep(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Rollover sweep failed", log.FieldError, err)
		return
	}
	w.logger.InfoContext(ctx, "Rollover sweep complete",
		"users", res.Users,
		"archived", res.Archived,
		"repaired", res.Repaired,
		"failed", res.Failed,
		"next_check", w.now().Add(w.config.Interval).Format("15:04:05"))
}

// Sweep archives every user's expired current period and removes active
// copies of periods already in history. Per-user failures are counted and
// logged; only listing users can fail the sweep.
func (w *RolloverWorker) Sweep(ctx context.Context) (SweepResult, error) {
	users, err := w.store.UsersWithActivePeriods(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list users: %w", err)
	}

	var archived, repaired, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, uid := range users {
		g.Go(func() error {
			a, r, err := w.sweepUser(gctx, uid)
			archived.Add(int64(a))
			repaired.Add(int64(r))
			if err != nil {
				failed.Add(1)
				log.LogError(gctx, "Rollover failed for user", err, log.ComponentWorker, log.OpRollover,
					log.NewFields().WithUser(uid))
			}
			// Per-user errors must not cancel the other users.
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Users:    len(users),
		Archived: int(archived.Load()),
		Repaired: int(repaired.Load()),
		Failed:   int(failed.Load()),
	}, nil
}

func (w *RolloverWorker) sweepUser(ctx context.Context, uid string) (archived, repaired int, err error) {
	ids, err := w.store.RepairArchived(ctx, uid)
	repaired = len(ids)
	if err != nil {
		return 0, repaired, fmt.Errorf("repair archived periods: %w", err)
	}

	cur, err := w.store.CurrentPeriod(ctx, uid)
	if err != nil {
		return 0, repaired, fmt.Errorf("load current period: %w", err)
	}
	if cur == nil || !cur.IsExpired(w.now()) {
		return 0, repaired, nil
	}

	if !w.store.Archive(ctx, uid, *cur) {
		return 0, repaired, fmt.Errorf("archive period %s failed", cur.ID)
	}
	w.logger.InfoContext(ctx, "Archived expired period",
		log.NewFields().WithUser(uid).WithPeriod(cur.ID, cur.StartDate.String(), cur.EndDate.String()).ToSlice()...)

	if w.publisher != nil {
		msg := amqp.NewPeriodEventMessage(amqp.PeriodArchived, uid, *cur)
		if err := w.publisher.PublishPeriodEvent(ctx, msg); err != nil {
			w.logger.WarnContext(ctx, "Failed to publish archive event", log.FieldPeriodID, cur.ID, log.FieldError, err)
		}
	}
	return 1, repaired, nil
}

// HandlePeriodEvent exports archived periods to the configured sheet.
// Events for periods no longer in history are dropped.
func (w *RolloverWorker) HandlePeriodEvent(ctx context.Context, msg *amqp.PeriodEventMessage) error {
	if msg.Type != amqp.PeriodArchived {
		w.logger.DebugContext(ctx, "Ignoring period event", log.FieldEventType, string(msg.Type), log.FieldPeriodID, msg.PeriodID)
		return nil
	}
	if w.exporter == nil {
		w.logger.DebugContext(ctx, "No exporter configured, skipping export", log.FieldPeriodID, msg.PeriodID)
		return nil
	}

	history, err := w.store.HistoricalPeriods(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("load historical periods: %w", err)
	}
	for _, p := range history {
		if p.ID != msg.PeriodID {
			continue
		}
		ref, err := w.exporter.ExportPeriod(ctx, msg.UserID, p)
		if err != nil {
			return fmt.Errorf("export period: %w", err)
		}
		w.logger.InfoContext(ctx, "Exported archived period",
			log.FieldUserID, msg.UserID, log.FieldPeriodID, p.ID, "sheets_ref", ref)
		return nil
	}

	w.logger.WarnContext(ctx, "Archived period not found in history, dropping event",
		log.FieldUserID, msg.UserID, log.FieldPeriodID, msg.PeriodID)
	return nil
}
