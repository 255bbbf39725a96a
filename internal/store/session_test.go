package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
)

// fakeAuthClient scripts auth outcomes and fans out state changes like the
// identity service does.
type fakeAuthClient struct {
	user      *domain.User
	session   *remote.Session
	signUpErr error
	signInErr error
	signOutErr error
	getUserErr error

	signedOut bool
	listeners []func(event string, session *remote.Session)
}

func (f *fakeAuthClient) SignUp(ctx context.Context, email, password string) (*domain.User, *remote.Session, error) {
	if f.signUpErr != nil {
		return nil, nil, f.signUpErr
	}
	return f.user, f.session, nil
}

func (f *fakeAuthClient) SignIn(ctx context.Context, email, password string) (*domain.User, *remote.Session, error) {
	if f.signInErr != nil {
		return nil, nil, f.signInErr
	}
	return f.user, f.session, nil
}

func (f *fakeAuthClient) SignOut(ctx context.Context) error {
	f.signedOut = true
	return f.signOutErr
}

func (f *fakeAuthClient) GetUser(ctx context.Context) (*domain.User, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	return f.user, nil
}

func (f *fakeAuthClient) GetSession(ctx context.Context) (*remote.Session, error) {
	return f.session, nil
}

func (f *fakeAuthClient) OnAuthStateChange(fn func(event string, session *remote.Session)) remote.Subscription {
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	return fakeSubscription(func() { f.listeners[idx] = nil })
}

func (f *fakeAuthClient) notify(event string, session *remote.Session) {
	for _, fn := range f.listeners {
		if fn != nil {
			fn(event, session)
		}
	}
}

type fakeSubscription func()

func (s fakeSubscription) Unsubscribe() { s() }

func someUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "a@example.com", CreatedAt: time.Now().UTC()}
}

func TestLoginSetsUser(t *testing.T) {
	ctx := context.Background()
	client := &fakeAuthClient{user: someUser()}
	sess := NewSessionStore(client)

	user := sess.Login(ctx, "a@example.com", "secret1")
	if user == nil {
		t.Fatal("expected a user")
	}
	if !sess.LoggedIn() {
		t.Fatal("loggedIn must be true after login")
	}
	if sess.Err() != "" {
		t.Fatalf("unexpected error key %q", sess.Err())
	}
}

func TestLoginFailureClearsUserAndRecordsKey(t *testing.T) {
	ctx := context.Background()
	client := &fakeAuthClient{signInErr: errors.New("invalid email or password")}
	sess := NewSessionStore(client)
	sess.SetUser(someUser())

	if sess.Login(ctx, "a@example.com", "wrong") != nil {
		t.Fatal("expected nil on failed login")
	}
	if sess.LoggedIn() {
		t.Fatal("identity must be cleared on auth failure")
	}
	// Auth failures carry no data-layer code and classify as network failures.
	if sess.Err() != remote.KeyNetworkFailure {
		t.Fatalf("error key = %q, want %q", sess.Err(), remote.KeyNetworkFailure)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	client := &fakeAuthClient{signUpErr: &remote.Error{Code: remote.CodeUniqueViolation, Message: "email taken"}}
	sess := NewSessionStore(client)

	if sess.Register(ctx, "a@example.com", "secret1") != nil {
		t.Fatal("expected nil on duplicate registration")
	}
	if sess.Err() != remote.KeyUniqueViolation {
		t.Fatalf("error key = %q, want %q", sess.Err(), remote.KeyUniqueViolation)
	}
}

func TestLogoutAlwaysClearsIdentity(t *testing.T) {
	ctx := context.Background()
	client := &fakeAuthClient{signOutErr: errors.New("network down")}
	sess := NewSessionStore(client)
	sess.SetUser(someUser())

	sess.Logout(ctx)
	if !client.signedOut {
		t.Fatal("remote sign-out was not attempted")
	}
	if sess.LoggedIn() {
		t.Fatal("identity must be cleared even when remote sign-out fails")
	}
}

func TestFetchUserSynchronizesState(t *testing.T) {
	ctx := context.Background()
	client := &fakeAuthClient{user: someUser()}
	sess := NewSessionStore(client)

	if sess.FetchUser(ctx) == nil {
		t.Fatal("expected a user")
	}
	if !sess.LoggedIn() {
		t.Fatal("loggedIn must track the fetched user")
	}

	client.user = nil
	sess.FetchUser(ctx)
	if sess.LoggedIn() {
		t.Fatal("identity must be cleared when the remote reports no user")
	}
}

func TestRestoreSession(t *testing.T) {
	ctx := context.Background()
	user := someUser()
	client := &fakeAuthClient{session: &remote.Session{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour), User: user}}
	sess := NewSessionStore(client)

	sess.RestoreSession(ctx)
	if got := sess.User(); got == nil || got.ID != user.ID {
		t.Fatalf("restored user = %+v, want %s", got, user.ID)
	}

	client.session = nil
	sess.RestoreSession(ctx)
	if sess.LoggedIn() {
		t.Fatal("identity must be cleared when no session exists")
	}
}

func TestListenTracksAuthStateChanges(t *testing.T) {
	user := someUser()
	client := &fakeAuthClient{}
	sess := NewSessionStore(client)

	unsubscribe := sess.Listen()

	client.notify(remote.EventSignedIn, &remote.Session{User: user})
	if !sess.LoggedIn() {
		t.Fatal("listener must set the user on sign-in")
	}

	client.notify(remote.EventSignedOut, nil)
	if sess.LoggedIn() {
		t.Fatal("listener must clear the user on sign-out")
	}

	unsubscribe()
	client.notify(remote.EventSignedIn, &remote.Session{User: user})
	if sess.LoggedIn() {
		t.Fatal("unsubscribed listener must not mutate the store")
	}
}
