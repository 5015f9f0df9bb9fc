package identity

import (
	"context"
	"sync"

	"budgetbuddy/internal/ports"
)

// Session is one client's view of the provider: it remembers who signed in.
// It implements ports.IdentityProvider.
type Session struct {
	dir  *Directory
	mu   sync.RWMutex
	user *ports.User
}

var _ ports.IdentityProvider = (*Session)(nil)

func NewSession(dir *Directory) *Session {
	return &Session{dir: dir}
}

// ResumeSession starts a session already signed in as u, e.g. after a
// bearer token was verified.
func ResumeSession(dir *Directory, u ports.User) *Session {
	return &Session{dir: dir, user: &u}
}

func (s *Session) SignIn(ctx context.Context, email, password string) error {
	u, err := s.dir.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}
	s.set(&u)
	return nil
}

// CreateAccount registers and signs in.
func (s *Session) CreateAccount(ctx context.Context, email, password string) error {
	u, err := s.dir.Register(ctx, email, password)
	if err != nil {
		return err
	}
	s.set(&u)
	return nil
}

func (s *Session) SignOut(context.Context) error {
	s.set(nil)
	return nil
}

func (s *Session) CurrentUser(context.Context) (*ports.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *Session) set(u *ports.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// StaticUser is a UserSource that always returns the same user. Server-side
// callers use it once a request has been authenticated.
type StaticUser ports.User

func (s StaticUser) CurrentUser(context.Context) (*ports.User, bool) {
	if s.ID == "" {
		return nil, false
	}
	u := ports.User(s)
	return &u, true
}
