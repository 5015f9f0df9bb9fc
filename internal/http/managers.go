package http

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/lifecycle"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/store"
)

// userSession is the per-user state the server keeps warm between requests.
type userSession struct {
	user    ports.User
	store   *store.PeriodStore
	manager *lifecycle.Manager
}

// managerRegistry owns one lifecycle manager per active user. Managers are
// closed when they leave the cache, and onEvict is told so live websocket
// feeds for that user can be dropped.
type managerRegistry struct {
	ctx       context.Context
	remote    ports.RemoteStore
	publisher amqp.Publisher
	logger    *log.Logger
	now       func() time.Time

	sessions *cache.LRUCache[*userSession]
	group    singleflight.Group
	onEvict  func(userID string)
}

// newManagerRegistry builds a registry whose managers live until ctx is
// cancelled or they are evicted. A nil publisher disables period events.
func newManagerRegistry(ctx context.Context, rs ports.RemoteStore, pub amqp.Publisher, size int, ttl time.Duration, now func() time.Time, logger *log.Logger) *managerRegistry {
	r := &managerRegistry{
		ctx:       ctx,
		remote:    rs,
		publisher: pub,
		logger:    logger,
		now:       now,
	}
	r.sessions = cache.NewLRUCache[*userSession](size, ttl,
		cache.WithEvictHook[*userSession](func(userID string, s *userSession) {
			s.manager.Close()
			r.logger.Debug("Closed idle period manager", log.FieldUserID, userID)
			if r.onEvict != nil {
				r.onEvict(userID)
			}
		}),
		cache.WithLRUClock[*userSession](now),
	)
	return r
}

// get returns the session for u, creating it on first use. Concurrent
// first requests for one user share a single manager.
func (r *managerRegistry) get(u ports.User) *userSession {
	if s, ok := r.sessions.Get(u.ID); ok {
		return s
	}
	v, _, _ := r.group.Do(u.ID, func() (any, error) {
		if s, ok := r.sessions.Get(u.ID); ok {
			return s, nil
		}
		s := r.open(u)
		r.sessions.Set(u.ID, s)
		return s, nil
	})
	return v.(*userSession)
}

func (r *managerRegistry) open(u ports.User) *userSession {
	userLogger := r.logger.With(log.FieldUserID, u.ID)
	ps := store.New(r.remote, identity.StaticUser(u),
		store.WithClock(r.now),
		store.WithLogger(userLogger),
	)

	opts := []lifecycle.Option{
		lifecycle.WithClock(r.now),
		lifecycle.WithLogger(userLogger),
	}
	if r.publisher != nil {
		opts = append(opts, lifecycle.WithNotifier(amqp.NewPeriodNotifier(r.publisher, u.ID, userLogger)))
	}
	r.logger.Debug("Opened period manager", log.FieldUserID, u.ID)
	return &userSession{
		user:    u,
		store:   ps,
		manager: lifecycle.New(r.ctx, ps, opts...),
	}
}

// do runs fn against u's session after its initial load finished. A
// manager closed by eviction mid-request is replaced once and fn retried.
func (r *managerRegistry) do(ctx context.Context, u ports.User, fn func(*userSession) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		s := r.get(u)
		// The initial load may fail; handlers decide whether to reload.
		if waitErr := s.manager.Ready().Wait(ctx); waitErr != nil && ctx.Err() != nil {
			return waitErr
		}
		err = fn(s)
		if !errors.Is(err, lifecycle.ErrClosed) {
			return err
		}
		r.logger.DebugContext(ctx, "Period manager closed mid-request, retrying", log.FieldUserID, u.ID)
	}
	return err
}

// size reports how many managers are open.
func (r *managerRegistry) size() int {
	return r.sessions.Size()
}

// closeAll closes every manager.
func (r *managerRegistry) closeAll() {
	r.sessions.Purge()
}
