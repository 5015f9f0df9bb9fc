// Package session wraps an identity provider and exposes whether a user is
// signed in as observable state.
package session

import (
	"context"

	"budgetbuddy/internal/log"
	"budgetbuddy/internal/observable"
	"budgetbuddy/internal/ports"
)

// Gateway re-derives LoggedIn from the provider after every call. Login and
// register failures are logged and otherwise only visible through the
// unchanged flag.
type Gateway struct {
	provider ports.IdentityProvider
	loggedIn *observable.State[bool]
	logger   *log.Logger
}

type Option func(*Gateway)

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.logger = l.WithComponent(log.ComponentSession) }
}

func NewGateway(ctx context.Context, provider ports.IdentityProvider, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		logger:   log.Default(log.ComponentSession),
	}
	for _, opt := range opts {
		opt(g)
	}
	_, ok := provider.CurrentUser(ctx)
	g.loggedIn = observable.NewState(ok)
	return g
}

func (g *Gateway) LoggedIn() observable.Observable[bool] {
	return g.loggedIn
}

// CurrentUser is the provider's current principal.
func (g *Gateway) CurrentUser(ctx context.Context) (*ports.User, bool) {
	return g.provider.CurrentUser(ctx)
}

func (g *Gateway) Login(ctx context.Context, email, password string) {
	if err := g.provider.SignIn(ctx, email, password); err != nil {
		g.logger.WarnContext(ctx, "Login failed", log.FieldError, err)
	}
	g.refresh(ctx)
}

func (g *Gateway) Register(ctx context.Context, email, password string) {
	if err := g.provider.CreateAccount(ctx, email, password); err != nil {
		g.logger.WarnContext(ctx, "Registration failed", log.FieldError, err)
	}
	g.refresh(ctx)
}

func (g *Gateway) Logout(ctx context.Context) {
	if err := g.provider.SignOut(ctx); err != nil {
		g.logger.WarnContext(ctx, "Logout failed", log.FieldError, err)
	}
	g.refresh(ctx)
}

func (g *Gateway) refresh(ctx context.Context) {
	u, ok := g.provider.CurrentUser(ctx)
	if ok {
		g.logger.DebugContext(ctx, "Session active", log.FieldUserID, u.ID)
	}
	g.loggedIn.Set(ok)
}
