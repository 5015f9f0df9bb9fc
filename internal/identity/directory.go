// Package identity is a self-hosted identity provider: accounts live in the
// remote store with bcrypt password hashes, and clients hold JWT access tokens.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

const (
	UsersPath         = "users"
	MinPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Directory stores accounts under users/{sha256(lowercase email)}.
type Directory struct {
	remote ports.RemoteStore
	cost   int
	logger *log.Logger
}

type DirectoryOption func(*Directory)

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) DirectoryOption {
	return func(d *Directory) { d.cost = cost }
}

func WithDirectoryLogger(l *log.Logger) DirectoryOption {
	return func(d *Directory) { d.logger = l.WithComponent(log.ComponentIdentity) }
}

func NewDirectory(rs ports.RemoteStore, opts ...DirectoryOption) *Directory {
	d := &Directory{
		remote: rs,
		cost:   bcrypt.DefaultCost,
		logger: log.Default(log.ComponentIdentity),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// Register creates an account. The existence check and the write are not
// atomic; two simultaneous registrations of one email end with the last write.
func (d *Directory) Register(ctx context.Context, email, password string) (ports.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return ports.User{}, err
	}
	if len(password) < MinPasswordLength {
		return ports.User{}, ErrWeakPassword
	}

	path := remote.Join(UsersPath, emailKey(email))
	if _, err := d.remote.Get(ctx, path); err == nil {
		return ports.User{}, ErrEmailTaken
	} else if !errors.Is(err, ports.ErrNotFound) {
		return ports.User{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return ports.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := ports.User{ID: core.NewID(), Email: email}
	err = d.remote.Set(ctx, path, ports.Record{
		"id":           u.ID,
		"email":        u.Email,
		"passwordHash": string(hash),
		"createdAt":    time.Now().UnixMilli(),
	})
	if err != nil {
		return ports.User{}, fmt.Errorf("save account: %w", err)
	}

	d.logger.InfoContext(ctx, "Account registered", log.FieldUserID, u.ID)
	return u, nil
}

// Authenticate checks the password and returns the account's user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (ports.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return ports.User{}, ErrInvalidCredentials
	}
	rec, err := d.remote.Get(ctx, remote.Join(UsersPath, emailKey(email)))
	if errors.Is(err, ports.ErrNotFound) {
		return ports.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return ports.User{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, _ := rec["passwordHash"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ports.User{}, ErrInvalidCredentials
	}
	id, _ := rec["id"].(string)
	if id == "" {
		return ports.User{}, fmt.Errorf("account record for %s has no id", email)
	}
	return ports.User{ID: id, Email: email}, nil
}
