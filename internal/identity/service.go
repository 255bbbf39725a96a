// Package identity implements the auth side of the remote client contract:
// account creation, credential sign-in, and session tracking with auth-state
// notifications.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"example.com/timetrack/internal/auth"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/observability"
	"example.com/timetrack/internal/remote"
)

// MinPasswordLength is the weakest password accepted at sign-up.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrPasswordTooShort is returned at sign-up for undersized passwords.
	ErrPasswordTooShort = errors.New("password too short")
)

// UserStore is the account persistence the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.User, passwordHash string) error
	UserByEmail(ctx context.Context, email string) (*domain.User, string, error)
	UserByID(ctx context.Context, id string) (*domain.User, error)
}

// Config tunes the identity service.
type Config struct {
	Auth       auth.Config
	TokenTTL   time.Duration
	BcryptCost int
}

// Service issues sessions against stored accounts. It remembers the most
// recent session so an embedded client can restore identity without fresh
// credentials; HTTP callers are stateless and carry their token per request.
type Service struct {
	store UserStore
	cfg   Config

	mu           sync.Mutex
	session      *remote.Session
	listeners    map[int]func(event string, session *remote.Session)
	nextListener int
}

// NewService constructs a Service.
func NewService(store UserStore, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:     store,
		cfg:       cfg,
		listeners: make(map[int]func(event string, session *remote.Session)),
	}
}

// SignUp creates an account and opens a session for it. A duplicate email
// surfaces as a remote unique-violation error.
func (s *Service) SignUp(ctx context.Context, email, password string) (*domain.User, *remote.Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if len(password) < MinPasswordLength {
		return nil, nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user, string(hash)); err != nil {
		return nil, nil, err
	}

	session, err := s.startSession(&user)
	if err != nil {
		return nil, nil, err
	}
	observability.RecordAuthEvent("sign_up")
	return &user, session, nil
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.User, *remote.Session, error) {
	user, hash, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(user)
	if err != nil {
		return nil, nil, err
	}
	observability.RecordAuthEvent("sign_in")
	return user, session, nil
}

// SignOut drops the current session. Signing out without a session is a
// no-op rather than an error.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	had := s.session != nil
	s.session = nil
	fns := s.snapshotListeners()
	s.mu.Unlock()

	if had {
		observability.RecordAuthEvent("sign_out")
		for _, fn := range fns {
			fn(remote.EventSignedOut, nil)
		}
	}
	return nil
}

// GetUser re-fetches the identity of the current session from the account
// store. It returns nil when signed out or when the session has expired.
func (s *Service) GetUser(ctx context.Context) (*domain.User, error) {
	session, err := s.GetSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return s.store.UserByID(ctx, session.User.ID)
}

// GetSession returns the current session, nil when signed out. An expired
// session is discarded.
func (s *Service) GetSession(ctx context.Context) (*remote.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, nil
	}
	if time.Now().After(s.session.ExpiresAt) {
		s.session = nil
		return nil, nil
	}
	return s.session, nil
}

// OnAuthStateChange registers fn for sign-in/sign-out notifications. The
// returned subscription stops delivery once unsubscribed.
func (s *Service) OnAuthStateChange(fn func(event string, session *remote.Session)) remote.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return &subscription{svc: s, id: id}
}

type subscription struct {
	svc *Service
	id  int
}

func (sub *subscription) Unsubscribe() {
	sub.svc.mu.Lock()
	defer sub.svc.mu.Unlock()
	delete(sub.svc.listeners, sub.id)
}

func (s *Service) startSession(user *domain.User) (*remote.Session, error) {
	token, expiresAt, err := auth.Sign(user.ID, user.Email, s.cfg.Auth, s.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	session := &remote.Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        user,
	}

	s.mu.Lock()
	s.session = session
	fns := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(remote.EventSignedIn, session)
	}
	return session, nil
}

// snapshotListeners must be called with the mutex held.
func (s *Service) snapshotListeners() []func(event string, session *remote.Session) {
	fns := make([]func(event string, session *remote.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
