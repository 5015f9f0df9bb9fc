// Package lifecycle orchestrates budget period creation, loading, expiry and
// rollover for one user, exposing the results as observable state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/observable"
)

var (
	ErrNoCurrentPeriod = errors.New("no current budget period")
	ErrSaveFailed      = errors.New("failed to save budget period")
	ErrArchiveFailed   = errors.New("failed to archive budget period")
	ErrItemNotFound    = errors.New("line item not found")
	ErrClosed          = errors.New("manager closed")
	ErrActivePeriod    = errors.New("an active period already exists, start a new period instead")
)

// Store is the persistence the manager drives.
type Store interface {
	LoadCurrentPeriod(ctx context.Context) (*core.BudgetPeriod, error)
	LoadHistoricalPeriods(ctx context.Context) ([]core.BudgetPeriod, error)
	SaveBudgetPeriod(ctx context.Context, p core.BudgetPeriod) bool
	SaveHistoricalPeriod(ctx context.Context, p core.BudgetPeriod) bool
}

// Notifier is told about period transitions after they are persisted.
type Notifier interface {
	PeriodCreated(ctx context.Context, p core.BudgetPeriod)
	PeriodArchived(ctx context.Context, p core.BudgetPeriod)
}

type nopNotifier struct{}

func (nopNotifier) PeriodCreated(context.Context, core.BudgetPeriod)  {}
func (nopNotifier) PeriodArchived(context.Context, core.BudgetPeriod) {}

// Manager owns the observable period state for one user.
//
// Remote calls run on background goroutines. Every state change is applied
// on a single dispatcher goroutine, so readers never observe a partially
// applied operation. Published periods are shared: treat them as read-only.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	// lifeMu guards closed and wg.Add so no goroutine is added once Close waits.
	lifeMu sync.Mutex
	closed bool
	wg     sync.WaitGroup

	store    Store
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
	newID    func() string

	disp       *observable.Dispatcher
	current    *observable.State[*core.BudgetPeriod]
	historical *observable.State[[]core.BudgetPeriod]
	loading    *observable.State[bool]

	// Load tickets are issued when a load is called. Writes draw theirs on
	// the dispatcher when they publish, so a write supersedes every load
	// issued before it. The applied marks and inflightLoads are only
	// touched on the dispatcher.
	currentSeq     atomic.Uint64
	historySeq     atomic.Uint64
	appliedCurrent uint64
	appliedHistory uint64
	inflightLoads  int

	// mutMu serializes every write of the current period: creates,
	// rollovers and line-item edits. Each write publishes before releasing it.
	mutMu sync.Mutex

	ready *Task
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l.WithComponent(log.ComponentLifecycle) }
}

// New creates a manager and starts loading the current and historical
// periods concurrently. Loading is true until the current period load ends.
// ctx bounds every remote call the manager makes.
func New(ctx context.Context, store Store, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		ctx:        ctx,
		cancel:     cancel,
		store:      store,
		notifier:   nopNotifier{},
		logger:     log.Default(log.ComponentLifecycle),
		now:        time.Now,
		newID:      core.NewID,
		disp:       observable.NewDispatcher(),
		current:    observable.NewState[*core.BudgetPeriod](nil),
		historical: observable.NewState([]core.BudgetPeriod{}),
		loading:    observable.NewState(true),
		ready:      newTask(),
	}
	for _, opt := range opts {
		opt(m)
	}

	var g errgroup.Group
	current := m.LoadCurrentPeriod()
	history := m.LoadHistoricalPeriods()
	g.Go(func() error { return current.Wait(ctx) })
	g.Go(func() error { return history.Wait(ctx) })
	go func() { m.ready.finish(g.Wait()) }()

	return m
}

// Current is the active period, or nil when there is none.
func (m *Manager) Current() observable.Observable[*core.BudgetPeriod] { return m.current }

// Historical is the archived periods ordered by archive time ascending.
func (m *Manager) Historical() observable.Observable[[]core.BudgetPeriod] { return m.historical }

// Loading is true while a current period load is in flight.
func (m *Manager) Loading() observable.Observable[bool] { return m.loading }

// Ready completes when the initial loads started by New have been published.
func (m *Manager) Ready() *Task { return m.ready }

// Close cancels in-flight remote calls and stops the dispatcher after
// pending publications have run.
func (m *Manager) Close() {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return
	}
	m.closed = true
	m.lifeMu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.disp.Close()
}

// spawn runs fn on a background goroutine tracked by Close.
func (m *Manager) spawn(fn func()) bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

// publish runs fn on the dispatcher and then completes t with err.
func (m *Manager) publish(t *Task, fn func() error) {
	ok := m.disp.Post(func() {
		t.finish(fn())
	})
	if !ok {
		t.finish(ErrClosed)
	}
}

// publishAndWait is publish for callers that must observe the change
// before continuing.
func (m *Manager) publishAndWait(t *Task, fn func() error) {
	m.publish(t, fn)
	<-t.Done()
}

func periodFields(p core.BudgetPeriod) []any {
	return log.NewFields().WithPeriod(p.ID, p.StartDate.String(), p.EndDate.String()).ToSlice()
}

// LoadCurrentPeriod fetches the newest active period. An expired period is
// archived and current is left unset. When nothing is found the current
// value is left as it was.
func (m *Manager) LoadCurrentPeriod() *Task {
	t := newTask()
	ticket := m.currentSeq.Add(1)

	if !m.disp.Post(func() {
		m.inflightLoads++
		m.loading.Set(true)
	}) {
		t.finish(ErrClosed)
		return t
	}

	finish := func(apply func() error) {
		m.publish(t, func() error {
			m.inflightLoads--
			if m.inflightLoads <= 0 {
				m.inflightLoads = 0
				m.loading.Set(false)
			}
			return apply()
		})
	}

	started := m.spawn(func() {
		p, err := m.store.LoadCurrentPeriod(m.ctx)
		if err != nil {
			m.logger.ErrorContext(m.ctx, "Failed to load current period", log.FieldError, err)
			finish(func() error { return fmt.Errorf("load current period: %w", err) })
			return
		}
		if p == nil {
			m.logger.DebugContext(m.ctx, "No active budget period")
			finish(func() error { return nil })
			return
		}

		if p.IsExpired(m.now()) {
			expired := *p
			m.logger.InfoContext(m.ctx, "Current period expired, archiving", periodFields(expired)...)
			if !m.store.SaveHistoricalPeriod(m.ctx, expired) {
				finish(func() error {
					m.clearCurrentIf(expired.ID)
					return ErrArchiveFailed
				})
				return
			}
			m.notifier.PeriodArchived(m.ctx, expired)
			_ = m.LoadHistoricalPeriods().Wait(m.ctx)
			finish(func() error {
				m.clearCurrentIf(expired.ID)
				return nil
			})
			return
		}

		loaded := p.Clone()
		finish(func() error {
			if ticket <= m.appliedCurrent {
				m.logger.DebugContext(m.ctx, "Dropping stale current period load", log.FieldPeriodID, loaded.ID)
				return nil
			}
			m.appliedCurrent = ticket
			m.current.Set(&loaded)
			return nil
		})
	})
	if !started {
		finish(func() error { return ErrClosed })
	}
	return t
}

// clearCurrentIf unsets current when it still shows period id. Runs on the dispatcher.
func (m *Manager) clearCurrentIf(id string) {
	if cur := m.current.Value(); cur != nil && cur.ID == id {
		m.current.Set(nil)
	}
}

// LoadHistoricalPeriods fetches and publishes the archived periods. On
// failure the previous list is kept.
func (m *Manager) LoadHistoricalPeriods() *Task {
	t := newTask()
	ticket := m.historySeq.Add(1)

	started := m.spawn(func() {
		list, err := m.store.LoadHistoricalPeriods(m.ctx)
		if err != nil {
			m.logger.ErrorContext(m.ctx, "Failed to load historical periods", log.FieldError, err)
			m.publish(t, func() error { return fmt.Errorf("load historical periods: %w", err) })
			return
		}
		m.publish(t, func() error {
			if ticket <= m.appliedHistory {
				return nil
			}
			m.appliedHistory = ticket
			m.historical.Set(list)
			return nil
		})
	})
	if !started {
		t.finish(ErrClosed)
	}
	return t
}

// CreateCleanPeriod persists a new empty period and publishes it as current.
// onComplete, when non-nil, runs on the dispatcher with the outcome. It
// must not wait on other manager tasks.
func (m *Manager) CreateCleanPeriod(start, end core.Date, onComplete func(bool)) *Task {
	t := newTask()
	report := func(err error) error {
		if onComplete != nil {
			onComplete(err == nil)
		}
		return err
	}

	if err := core.ValidatePeriodRange(start, end); err != nil {
		m.logger.WarnContext(m.ctx, "Rejected period with invalid range",
			log.FieldStartDate, start.String(), log.FieldEndDate, end.String(), log.FieldError, err)
		m.publish(t, func() error { return report(err) })
		return t
	}

	started := m.spawn(func() {
		m.mutMu.Lock()
		defer m.mutMu.Unlock()

		p, err := m.createPeriod(start, end)
		m.publishAndWait(t, func() error {
			if err == nil {
				m.applyWrite(p)
			}
			return report(err)
		})
	})
	if !started {
		m.publish(t, func() error { return report(ErrClosed) })
	}
	return t
}

// createPeriod builds and saves a clean period. Runs off the dispatcher.
func (m *Manager) createPeriod(start, end core.Date) (core.BudgetPeriod, error) {
	p := core.NewBudgetPeriod(m.newID(), start, end)
	if !m.store.SaveBudgetPeriod(m.ctx, p) {
		m.logger.ErrorContext(m.ctx, "Failed to create budget period", periodFields(p)...)
		return core.BudgetPeriod{}, ErrSaveFailed
	}
	m.logger.InfoContext(m.ctx, "Budget period created", periodFields(p)...)
	m.notifier.PeriodCreated(m.ctx, p)
	return p, nil
}

// applyWrite publishes p as current and marks every load issued so far as
// stale. Runs on the dispatcher while the writer holds mutMu.
func (m *Manager) applyWrite(p core.BudgetPeriod) {
	m.appliedCurrent = m.currentSeq.Add(1)
	m.current.Set(&p)
}

// StartNewPeriod archives the current period, if any, then creates and
// publishes a fresh one. When the archive fails no new period is created,
// so the user never holds two active periods.
func (m *Manager) StartNewPeriod(start, end core.Date) *Task {
	return m.rollover("rollover", start, end, false)
}

// OpenPeriod starts a period when the user has none in progress. An expired
// current period is archived first. It fails with ErrActivePeriod while a
// non-expired period is current. The check and the create happen under the
// same lock as every other write, so concurrent calls cannot both create.
func (m *Manager) OpenPeriod(start, end core.Date) *Task {
	return m.rollover("open", start, end, true)
}

func (m *Manager) rollover(op string, start, end core.Date, refuseActive bool) *Task {
	t := newTask()
	if err := core.ValidatePeriodRange(start, end); err != nil {
		m.logger.WarnContext(m.ctx, "Rejected period with invalid range",
			log.FieldOperation, op, log.FieldStartDate, start.String(), log.FieldEndDate, end.String(), log.FieldError, err)
		t.finish(err)
		return t
	}

	started := m.spawn(func() {
		m.mutMu.Lock()
		defer m.mutMu.Unlock()

		cur := m.current.Value()
		if refuseActive && cur != nil && !cur.IsExpired(m.now()) {
			t.finish(ErrActivePeriod)
			return
		}

		var archived *core.BudgetPeriod
		if cur != nil {
			old := cur.Clone()
			if !m.store.SaveHistoricalPeriod(m.ctx, old) {
				m.logger.ErrorContext(m.ctx, "Rollover aborted, previous period not archived",
					append(periodFields(old), log.FieldOperation, op)...)
				t.finish(ErrArchiveFailed)
				return
			}
			m.notifier.PeriodArchived(m.ctx, old)
			archived = &old
		}

		p, err := m.createPeriod(start, end)
		if archived != nil {
			_ = m.LoadHistoricalPeriods().Wait(m.ctx)
		}
		m.publishAndWait(t, func() error {
			if archived != nil {
				m.clearCurrentIf(archived.ID)
			}
			if err != nil {
				return err
			}
			m.applyWrite(p)
			return nil
		})
	})
	if !started {
		t.finish(ErrClosed)
	}
	return t
}
