package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote/memory"
)

func newDirectory(t *testing.T) (*Directory, *memory.Store) {
	t.Helper()
	mem := memory.New()
	return NewDirectory(mem, WithBcryptCost(bcrypt.MinCost), WithDirectoryLogger(log.Discard())), mem
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dir, _ := newDirectory(t)

	u, err := dir.Register(ctx, " Alice@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := dir.Register(ctx, "alice@example.com", "another1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, err := dir.Authenticate(ctx, "ALICE@example.com", "secret1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate = %+v, %v", got, err)
	}
	if _, err := dir.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := dir.Authenticate(ctx, "bob@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	dir, _ := newDirectory(t)
	cases := []struct {
		email, password string
		want            error
	}{
		{"not-an-email", "secret1", ErrInvalidEmail},
		{"", "secret1", ErrInvalidEmail},
		{"Bob <bob@example.com>", "secret1", ErrInvalidEmail},
		{"bob@example.com", "123", ErrWeakPassword},
	}
	for _, tc := range cases {
		if _, err := dir.Register(ctx, tc.email, tc.password); !errors.Is(err, tc.want) {
			t.Errorf("Register(%q) = %v, want %v", tc.email, err, tc.want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	dir, _ := newDirectory(t)
	s := NewSession(dir)

	if _, ok := s.CurrentUser(ctx); ok {
		t.Fatalf("new session should be anonymous")
	}
	if err := s.CreateAccount(ctx, "carol@example.com", "secret1"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	u, ok := s.CurrentUser(ctx)
	if !ok || u.Email != "carol@example.com" {
		t.Fatalf("expected signed in after register, got %+v", u)
	}
	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := s.CurrentUser(ctx); ok {
		t.Fatalf("expected anonymous after sign out")
	}
	if err := s.SignIn(ctx, "carol@example.com", "nope"); err == nil {
		t.Fatalf("expected sign in failure")
	}
	if err := s.SignIn(ctx, "carol@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	resumed := ResumeSession(dir, *u)
	if got, ok := resumed.CurrentUser(ctx); !ok || got.ID != u.ID {
		t.Fatalf("resumed session = %+v", got)
	}
}

func TestStaticUser(t *testing.T) {
	if _, ok := (StaticUser{}).CurrentUser(context.Background()); ok {
		t.Fatalf("empty static user must be anonymous")
	}
	u, ok := StaticUser{ID: "u1"}.CurrentUser(context.Background())
	if !ok || u.ID != "u1" {
		t.Fatalf("static user = %+v", u)
	}
}

func TestTokenIssueParseRevoke(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	tm := NewTokenManager("test-secret", "budgetbuddy", time.Hour, mem)
	issued, err := tm.Issue(ports.User{ID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tm.Parse(ctx, issued.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := claims.User(); got.ID != "u1" || got.Email != "u1@example.com" {
		t.Fatalf("claims user = %+v", got)
	}

	other := NewTokenManager("other-secret", "budgetbuddy", time.Hour, mem)
	if _, err := other.Parse(ctx, issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	wrongIssuer := NewTokenManager("test-secret", "someone-else", time.Hour, mem)
	if _, err := wrongIssuer.Parse(ctx, issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer failure, got %v", err)
	}

	if err := tm.Revoke(ctx, claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := tm.Parse(ctx, issued.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	tm := NewTokenManager("s", "budgetbuddy", time.Minute, nil)
	base := time.Now()
	tm.now = func() time.Time { return base }
	issued, err := tm.Issue(ports.User{ID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tm.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := tm.Parse(ctx, issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry failure, got %v", err)
	}
}
