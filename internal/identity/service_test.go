package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"example.com/timetrack/internal/auth"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
)

type memoryUserStore struct {
	users  map[string]domain.User // keyed by email
	hashes map[string]string
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		users:  make(map[string]domain.User),
		hashes: make(map[string]string),
	}
}

func (m *memoryUserStore) CreateUser(ctx context.Context, user domain.User, passwordHash string) error {
	if _, exists := m.users[user.Email]; exists {
		return &remote.Error{Code: remote.CodeUniqueViolation, Message: "email taken"}
	}
	m.users[user.Email] = user
	m.hashes[user.Email] = passwordHash
	return nil
}

func (m *memoryUserStore) UserByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, "", nil
	}
	return &user, m.hashes[email], nil
}

func (m *memoryUserStore) UserByID(ctx context.Context, id string) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func newTestService() *Service {
	return NewService(newMemoryUserStore(), Config{
		Auth:       auth.Config{Secret: "test-secret", Issuer: "timetrack-test"},
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	user, session, err := svc.SignUp(ctx, "  A@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if session == nil || session.AccessToken == "" {
		t.Fatal("sign up must open a session")
	}

	claims, err := auth.Parse(session.AccessToken, auth.Config{Secret: "test-secret", Issuer: "timetrack-test"})
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("token subject = %q, want %q", claims.Subject, user.ID)
	}

	again, _, err := svc.SignIn(ctx, "a@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if again.ID != user.ID {
		t.Fatal("sign in returned a different user")
	}
}

func TestSignUpRejectsShortPasswordAndDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, _, err := svc.SignUp(ctx, "a@example.com", "tiny"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("err = %v, want ErrPasswordTooShort", err)
	}

	if _, _, err := svc.SignUp(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	_, _, err := svc.SignUp(ctx, "a@example.com", "secret2")
	if !remote.IsCode(err, remote.CodeUniqueViolation) {
		t.Fatalf("err = %v, want unique violation", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, _, err := svc.SignUp(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "a@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.SignIn(ctx, "unknown@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if session, _ := svc.GetSession(ctx); session != nil {
		t.Fatal("no session expected before sign in")
	}

	user, _, err := svc.SignUp(ctx, "a@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	session, err := svc.GetSession(ctx)
	if err != nil || session == nil {
		t.Fatalf("GetSession = %v, %v", session, err)
	}

	fetched, err := svc.GetUser(ctx)
	if err != nil || fetched == nil || fetched.ID != user.ID {
		t.Fatalf("GetUser = %+v, %v", fetched, err)
	}

	if err := svc.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if session, _ := svc.GetSession(ctx); session != nil {
		t.Fatal("session must be gone after sign out")
	}
	if user, _ := svc.GetUser(ctx); user != nil {
		t.Fatal("user must be gone after sign out")
	}
}

func TestExpiredSessionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	// Mint tokens that are already expired.
	svc.cfg.TokenTTL = -time.Minute

	if _, _, err := svc.SignUp(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session, _ := svc.GetSession(ctx); session != nil {
		t.Fatal("expired session must be discarded")
	}
}

func TestAuthStateNotifications(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	var events []string
	sub := svc.OnAuthStateChange(func(event string, session *remote.Session) {
		events = append(events, event)
	})

	if _, _, err := svc.SignUp(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := svc.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	sub.Unsubscribe()
	if _, _, err := svc.SignIn(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	want := []string{remote.EventSignedIn, remote.EventSignedOut}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}
