// Package ports defines the two external boundaries the budgeting core
// depends on: the keyed hierarchical remote store and the identity provider.
package ports

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// User is the authenticated principal. ID scopes every stored record.
type User struct {
	ID    string
	Email string
}

// Record is one stored node value: a map of primitives, nested maps and slices.
type Record = map[string]any

// Child is a direct child of a path, as returned by Query.
type Child struct {
	Key   string
	Value Record
}

// Query selects the children of a path.
// OrderBy names a child field to sort on ascending; empty means order by key.
// LimitToLast keeps only the last n children after ordering; zero keeps all.
type Query struct {
	OrderBy     string
	LimitToLast int
}

// RemoteStore is a keyed hierarchical document store. Paths are slash
// separated, e.g. "budgetPeriods/{uid}/{pid}".
type RemoteStore interface {
	Get(ctx context.Context, path string) (Record, error)
	Set(ctx context.Context, path string, value Record) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, path string, q Query) ([]Child, error)
	// Keys lists the direct child keys of path.
	Keys(ctx context.Context, path string) ([]string, error)
}

// UserSource yields the currently authenticated user, if any.
type UserSource interface {
	CurrentUser(ctx context.Context) (*User, bool)
}

// IdentityProvider is the authentication boundary.
type IdentityProvider interface {
	UserSource
	SignIn(ctx context.Context, email, password string) error
	CreateAccount(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}
