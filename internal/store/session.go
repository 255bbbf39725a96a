// Package store holds the state containers coordinating optimistic local
// state against the remote client. Remote failures never escape a store;
// they land in its error slot as a friendly message key.
package store

import (
	"context"
	"sync"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
)

// SessionStore holds the current user identity and authentication status.
type SessionStore struct {
	auth remote.AuthClient

	mu       sync.Mutex
	user     *domain.User
	loggedIn bool
	err      string
}

// NewSessionStore constructs a SessionStore over the auth client.
func NewSessionStore(auth remote.AuthClient) *SessionStore {
	return &SessionStore{auth: auth}
}

// User returns the current identity, nil when signed out.
func (s *SessionStore) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// LoggedIn reports whether a user is present.
func (s *SessionStore) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Err returns the friendly message key of the last failed operation, empty
// when the last operation succeeded.
func (s *SessionStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetUser records an identity locally. It is also the entry point for
// auth-state listeners.
func (s *SessionStore) SetUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.loggedIn = user != nil
}

// ClearUser drops the local identity.
func (s *SessionStore) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.loggedIn = false
}

// Register creates an account and signs in. It returns the new user, or nil
// with the failure recorded in the error slot.
func (s *SessionStore) Register(ctx context.Context, email, password string) *domain.User {
	s.setErr("")

	user, _, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		s.ClearUser()
		s.setErr(remote.Classify(err))
		return nil
	}
	s.SetUser(user)
	return user
}

// Login signs in with existing credentials. It returns the user, or nil with
// the failure recorded in the error slot.
func (s *SessionStore) Login(ctx context.Context, email, password string) *domain.User {
	s.setErr("")

	user, _, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		s.ClearUser()
		s.setErr(remote.Classify(err))
		return nil
	}
	s.SetUser(user)
	return user
}

// Logout signs out remotely and clears the local identity regardless of the
// remote outcome, so a failed sign-out can never leave a stale identity.
func (s *SessionStore) Logout(ctx context.Context) {
	s.setErr("")

	if err := s.auth.SignOut(ctx); err != nil {
		s.setErr(remote.Classify(err))
	}
	s.ClearUser()
}

// FetchUser re-fetches the current identity and synchronizes local state.
func (s *SessionStore) FetchUser(ctx context.Context) *domain.User {
	s.setErr("")

	user, err := s.auth.GetUser(ctx)
	if err != nil {
		s.ClearUser()
		s.setErr(remote.Classify(err))
		return nil
	}
	if user == nil {
		s.ClearUser()
		return nil
	}
	s.SetUser(user)
	return user
}

// RestoreSession rehydrates identity from a persisted session without fresh
// credentials, clearing it when no session exists.
func (s *SessionStore) RestoreSession(ctx context.Context) {
	s.setErr("")

	session, err := s.auth.GetSession(ctx)
	if err != nil {
		s.ClearUser()
		s.setErr(remote.Classify(err))
		return
	}
	if session == nil || session.User == nil {
		s.ClearUser()
		return
	}
	s.SetUser(session.User)
}

// Listen subscribes the store to auth-state notifications so external
// sign-ins and sign-outs keep the identity in sync. The returned function
// unsubscribes.
func (s *SessionStore) Listen() func() {
	sub := s.auth.OnAuthStateChange(func(event string, session *remote.Session) {
		if session != nil && session.User != nil {
			s.SetUser(session.User)
			return
		}
		s.ClearUser()
	})
	return sub.Unsubscribe
}

func (s *SessionStore) setErr(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = key
}
