// Package auth authenticates API requests with bearer access tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
)

type ContextKey string

const claimsKey ContextKey = "auth_claims"

// TokenParser validates an access token.
type TokenParser interface {
	Parse(ctx context.Context, token string) (*identity.Claims, error)
}

// Middleware rejects requests without a valid token and stores the claims
// in the request context. Tokens are read from the Authorization header; a
// token query parameter is accepted when allowQuery is true, because
// browsers cannot set headers on websocket upgrades.
type Middleware struct {
	parser  TokenParser
	onError func(w http.ResponseWriter, r *http.Request, status int, msg string)
}

func NewMiddleware(parser TokenParser, onError func(w http.ResponseWriter, r *http.Request, status int, msg string)) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, msg string) {
			http.Error(w, msg, status)
		}
	}
	return &Middleware{parser: parser, onError: onError}
}

func (m *Middleware) Require(next http.Handler) http.Handler {
	return m.handler(next, false)
}

func (m *Middleware) RequireAllowQuery(next http.Handler) http.Handler {
	return m.handler(next, true)
}

func (m *Middleware) handler(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := BearerToken(r)
		if token == "" && allowQuery {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="budgetbuddy"`)
			m.onError(w, r, http.StatusUnauthorized, "missing access token")
			return
		}

		claims, err := m.parser.Parse(ctx, token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrTokenRevoked) {
				log.FromContext(ctx).InfoContext(ctx, "Rejected access token",
					log.FieldComponent, log.ComponentSecurity, log.FieldError, err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="budgetbuddy", error="invalid_token"`)
				m.onError(w, r, http.StatusUnauthorized, "invalid access token")
				return
			}
			log.LogError(ctx, "Token verification failed", err, log.ComponentSecurity, log.OpRead, nil)
			m.onError(w, r, http.StatusServiceUnavailable, "token verification unavailable")
			return
		}

		ctx = context.WithValue(ctx, claimsKey, claims)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ClaimsFromContext returns the claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (*identity.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*identity.Claims)
	return c, ok
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (ports.User, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return ports.User{}, false
	}
	return c.User(), true
}
