package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

const RevokedTokensPath = "revokedTokens"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed access token and its metadata.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenManager issues HS256 access tokens whose subject is the user id.
// Revoked token ids are kept in the remote store until they expire.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	remote ports.RemoteStore
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, ttl time.Duration, rs ports.RemoteStore) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		remote: rs,
		now:    time.Now,
	}
}

func (m *TokenManager) Issue(u ports.User) (IssuedToken, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	id := uuid.NewString()

	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   u.ID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Token: signed, ID: id, ExpiresAt: expiresAt}, nil
}

// Parse validates the token signature, issuer, expiry and revocation.
func (m *TokenManager) Parse(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if m.remote != nil && claims.ID != "" {
		_, err := m.remote.Get(ctx, remote.Join(RevokedTokensPath, claims.ID))
		switch {
		case err == nil:
			return nil, ErrTokenRevoked
		case !errors.Is(err, ports.ErrNotFound):
			return nil, fmt.Errorf("check revocation: %w", err)
		}
	}
	return claims, nil
}

// User extracts the principal from validated claims.
func (c *Claims) User() ports.User {
	return ports.User{ID: c.Subject, Email: c.Email}
}

// Revoke blocks further use of the token described by claims.
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if m.remote == nil || claims == nil || claims.ID == "" {
		return nil
	}
	var exp int64
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.UnixMilli()
	}
	err := m.remote.Set(ctx, remote.Join(RevokedTokensPath, claims.ID), ports.Record{
		"subject":   claims.Subject,
		"expiresAt": exp,
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
