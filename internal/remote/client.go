// Package remote defines the data and auth client contract the stores
// consume. Implementations are injected; nothing in this package talks to a
// backend itself.
package remote

import (
	"context"
	"time"

	"example.com/timetrack/internal/domain"
)

// Row is a single record of a named collection.
type Row map[string]any

// Filter is an equality match over collection columns. A nil value matches
// SQL NULL rather than being skipped.
type Filter map[string]any

// DataClient is the generic CRUD capability over named collections.
type DataClient interface {
	// Get returns all rows matching filter.
	Get(ctx context.Context, collection string, filter Filter) ([]Row, error)
	// GetSingle returns the one row matching filter, or nil when none does.
	// When several rows match, the most recently created wins.
	GetSingle(ctx context.Context, collection string, filter Filter) (Row, error)
	// Insert stores row and returns it as persisted.
	Insert(ctx context.Context, collection string, row Row) (Row, error)
	// Update applies updates to the row matching filter and returns the
	// updated row, or nil when nothing matched.
	Update(ctx context.Context, collection string, updates Row, filter Filter) (Row, error)
	// Delete removes the row matching filter and returns it, or nil when
	// nothing matched.
	Delete(ctx context.Context, collection string, filter Filter) (Row, error)
}

// Session is an authenticated session with its bearer token.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *domain.User
}

// Auth state change events delivered to OnAuthStateChange listeners.
const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// Subscription is a handle for an auth state listener.
type Subscription interface {
	Unsubscribe()
}

// AuthClient is the authentication capability.
type AuthClient interface {
	SignUp(ctx context.Context, email, password string) (*domain.User, *Session, error)
	SignIn(ctx context.Context, email, password string) (*domain.User, *Session, error)
	SignOut(ctx context.Context) error
	// GetUser returns the identity of the current session, nil when signed out.
	GetUser(ctx context.Context) (*domain.User, error)
	// GetSession returns the current session, nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn func(event string, session *Session)) Subscription
}

// Client combines the data and auth capabilities.
type Client interface {
	DataClient
	AuthClient
}
