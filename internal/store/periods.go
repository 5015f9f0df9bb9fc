// Package store persists budget periods, categories and invoices for the
// authenticated user on a RemoteStore.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

const (
	ActivePath     = "budgetPeriods"
	HistoricalPath = "historicalPeriods"
	CategoriesPath = "categories"
	InvoicesPath   = "invoices"
)

// PeriodStore scopes every call to the user returned by its UserSource.
// Without a user, reads yield no data and writes report false.
type PeriodStore struct {
	remote ports.RemoteStore
	users  ports.UserSource
	now    func() time.Time
	logger *log.Logger
}

type Option func(*PeriodStore)

// WithClock overrides the clock used for archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *PeriodStore) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *PeriodStore) { s.logger = l.WithComponent(log.ComponentStore) }
}

func New(rs ports.RemoteStore, users ports.UserSource, opts ...Option) *PeriodStore {
	s := &PeriodStore{
		remote: rs,
		users:  users,
		now:    time.Now,
		logger: log.Default(log.ComponentStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PeriodStore) userID(ctx context.Context) (string, bool) {
	u, ok := s.users.CurrentUser(ctx)
	if !ok || u == nil || u.ID == "" {
		return "", false
	}
	return u.ID, true
}

// LoadCurrentPeriod returns the active period with the latest start date.
// It returns nil with no error when there is no user, no active period, or
// the newest record is malformed. Remote failures are returned wrapped.
func (s *PeriodStore) LoadCurrentPeriod(ctx context.Context) (*core.BudgetPeriod, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		s.logger.DebugContext(ctx, "No authenticated user, skipping current period load")
		return nil, nil
	}

	children, err := s.remote.Query(ctx, remote.Join(ActivePath, uid), ports.Query{
		OrderBy:     fieldStartDate,
		LimitToLast: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("query active periods: %w", err)
	}
	if len(children) == 0 {
		return nil, nil
	}

	p, err := DecodePeriod(children[0].Value)
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping malformed active period",
			log.FieldUserID, uid, "key", children[0].Key, log.FieldError, err)
		return nil, nil
	}
	return &p, nil
}

// LoadHistoricalPeriods returns archived periods ordered by archive time
// ascending. Malformed records are skipped. Remote failures are returned
// wrapped with an empty list.
func (s *PeriodStore) LoadHistoricalPeriods(ctx context.Context) ([]core.BudgetPeriod, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		return []core.BudgetPeriod{}, nil
	}

	children, err := s.remote.Query(ctx, remote.Join(HistoricalPath, uid), ports.Query{OrderBy: fieldArchivedAt})
	if err != nil {
		return []core.BudgetPeriod{}, fmt.Errorf("query historical periods: %w", err)
	}

	out := make([]core.BudgetPeriod, 0, len(children))
	for _, c := range children {
		p, err := DecodePeriod(c.Value)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed historical period",
				log.FieldUserID, uid, "key", c.Key, log.FieldError, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveBudgetPeriod upserts p as the user's active record.
func (s *PeriodStore) SaveBudgetPeriod(ctx context.Context, p core.BudgetPeriod) bool {
	uid, ok := s.userID(ctx)
	if !ok {
		s.logger.WarnContext(ctx, "Cannot save period without an authenticated user", log.FieldPeriodID, p.ID)
		return false
	}
	if err := s.remote.Set(ctx, remote.Join(ActivePath, uid, p.ID), EncodePeriod(p)); err != nil {
		log.LogError(ctx, "Failed to save budget period", err, log.ComponentStore, log.OpUpdate,
			log.NewFields().WithUser(uid).WithPeriod(p.ID, p.StartDate.String(), p.EndDate.String()))
		return false
	}
	s.logger.InfoContext(ctx, "Budget period saved",
		log.FieldUserID, uid, log.FieldPeriodID, p.ID,
		log.FieldStartDate, p.StartDate.String(), log.FieldEndDate, p.EndDate.String())
	return true
}

// SaveHistoricalPeriod writes p under the historical collection and then
// deletes the active copy. The two writes are not atomic: when the delete
// fails the period exists in both collections until the rollover worker's
// repair pass removes the active copy. The historical write is keyed by id,
// so retrying is safe.
func (s *PeriodStore) SaveHistoricalPeriod(ctx context.Context, p core.BudgetPeriod) bool {
	uid, ok := s.userID(ctx)
	if !ok {
		s.logger.WarnContext(ctx, "Cannot archive period without an authenticated user", log.FieldPeriodID, p.ID)
		return false
	}
	return s.archive(ctx, uid, p)
}

func (s *PeriodStore) archive(ctx context.Context, uid string, p core.BudgetPeriod) bool {
	p.Expired = true
	if p.ArchivedAt.IsZero() {
		p.ArchivedAt = s.now()
	}
	fields := log.NewFields().WithUser(uid).WithPeriod(p.ID, p.StartDate.String(), p.EndDate.String())

	if err := s.remote.Set(ctx, remote.Join(HistoricalPath, uid, p.ID), EncodePeriod(p)); err != nil {
		log.LogError(ctx, "Failed to write historical period", err, log.ComponentStore, log.OpArchive, fields)
		return false
	}
	if err := s.remote.Delete(ctx, remote.Join(ActivePath, uid, p.ID)); err != nil {
		log.LogError(ctx, "Historical period written but active copy not deleted; period is duplicated",
			err, log.ComponentStore, log.OpArchive, fields)
		return false
	}

	s.logger.InfoContext(ctx, "Budget period archived", fields.ToSlice()...)
	return true
}

// UserStore gives the rollover worker direct, user-explicit access to the
// same collections. It bypasses the UserSource.
type UserStore struct {
	remote ports.RemoteStore
	ps     *PeriodStore
}

func NewUserStore(rs ports.RemoteStore, opts ...Option) *UserStore {
	return &UserStore{remote: rs, ps: New(rs, noUser{}, opts...)}
}

type noUser struct{}

func (noUser) CurrentUser(context.Context) (*ports.User, bool) { return nil, false }

// UsersWithActivePeriods lists the user ids owning at least one active record.
func (u *UserStore) UsersWithActivePeriods(ctx context.Context) ([]string, error) {
	keys, err := u.remote.Keys(ctx, ActivePath)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return keys, nil
}

// ActivePeriods returns every decodable active record of uid, oldest start first.
func (u *UserStore) ActivePeriods(ctx context.Context, uid string) ([]core.BudgetPeriod, error) {
	children, err := u.remote.Query(ctx, remote.Join(ActivePath, uid), ports.Query{OrderBy: fieldStartDate})
	if err != nil {
		return nil, fmt.Errorf("query active periods: %w", err)
	}
	out := make([]core.BudgetPeriod, 0, len(children))
	for _, c := range children {
		p, err := DecodePeriod(c.Value)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// HistoricalPeriods returns uid's archived periods ordered by archive time.
func (u *UserStore) HistoricalPeriods(ctx context.Context, uid string) ([]core.BudgetPeriod, error) {
	return u.ps.withUser(uid).LoadHistoricalPeriods(ctx)
}

// CurrentPeriod returns uid's newest active period, if any.
func (u *UserStore) CurrentPeriod(ctx context.Context, uid string) (*core.BudgetPeriod, error) {
	return u.ps.withUser(uid).LoadCurrentPeriod(ctx)
}

// Archive moves p to uid's historical collection.
func (u *UserStore) Archive(ctx context.Context, uid string, p core.BudgetPeriod) bool {
	return u.ps.archive(ctx, uid, p)
}

// RepairArchived deletes active copies of periods already present in
// history, closing the gap left by a failed archive delete. It returns the
// ids it repaired.
func (u *UserStore) RepairArchived(ctx context.Context, uid string) ([]string, error) {
	children, err := u.remote.Query(ctx, remote.Join(ActivePath, uid), ports.Query{})
	if err != nil {
		return nil, fmt.Errorf("query active periods: %w", err)
	}
	var repaired []string
	for _, c := range children {
		_, err := u.remote.Get(ctx, remote.Join(HistoricalPath, uid, c.Key))
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return repaired, fmt.Errorf("get historical period %s: %w", c.Key, err)
		}
		if err := u.remote.Delete(ctx, remote.Join(ActivePath, uid, c.Key)); err != nil {
			return repaired, fmt.Errorf("delete duplicated active period %s: %w", c.Key, err)
		}
		u.ps.logger.InfoContext(ctx, "Removed active copy of archived period",
			log.FieldUserID, uid, log.FieldPeriodID, c.Key, log.FieldOperation, log.OpRepair)
		repaired = append(repaired, c.Key)
	}
	return repaired, nil
}

// withUser returns a shallow copy of s pinned to uid.
func (s *PeriodStore) withUser(uid string) *PeriodStore {
	c := *s
	c.users = fixedUser(uid)
	return &c
}

type fixedUser string

func (f fixedUser) CurrentUser(context.Context) (*ports.User, bool) {
	if f == "" {
		return nil, false
	}
	return &ports.User{ID: string(f)}, true
}
