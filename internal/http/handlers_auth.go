package http

import (
	"context"
	"net/http"
	"time"

	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/middleware/auth"
	"budgetbuddy/internal/ports"
)

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, email, password string) (ports.User, error)
	Authenticate(ctx context.Context, email, password string) (ports.User, error)
}

// Tokens issues, validates and revokes access tokens.
type Tokens interface {
	auth.TokenParser
	Issue(u ports.User) (identity.IssuedToken, error)
	Revoke(ctx context.Context, claims *identity.Claims) error
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	u, err := s.accounts.Register(ctx, sanitizeInput(req.Email), req.Password)
	if err != nil {
		s.logFailure(ctx, "Registration failed", err, log.OpCreate)
		ErrorFor(err).Write(w)
		return
	}
	s.writeToken(w, r, u, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	u, err := s.accounts.Authenticate(ctx, sanitizeInput(req.Email), req.Password)
	if err != nil {
		s.logFailure(ctx, "Login failed", err, log.OpRead)
		ErrorFor(err).Write(w)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "User signed in", log.FieldUserID, u.ID)
	s.writeToken(w, r, u, http.StatusOK)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, u ports.User, status int) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		log.LogError(r.Context(), "Failed to issue access token", err, log.ComponentSecurity, log.OpCreate,
			log.NewFields().WithUser(u.ID))
		InternalServerError("could not issue token").Write(w)
		return
	}
	NewJSONResponse().Status(status).JSON(tokenDTO{
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserDTO(u),
	}).Write(w)
}

// handleLogout revokes the presented token and drops the user's manager.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		UnauthorizedError("not authenticated").Write(w)
		return
	}
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		log.LogError(ctx, "Failed to revoke token", err, log.ComponentSecurity, log.OpDelete,
			log.NewFields().WithUser(claims.Subject))
		ServiceUnavailableError("could not sign out").Write(w)
		return
	}
	s.registry.sessions.Delete(claims.Subject)
	log.FromContext(ctx).InfoContext(ctx, "User signed out")
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		UnauthorizedError("not authenticated").Write(w)
		return
	}
	NewJSONResponse().JSON(toUserDTO(u)).Write(w)
}
