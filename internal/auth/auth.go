// Package auth implements email/password accounts with cookie-carried JWT
// sessions that can be revoked before they expire.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/storage"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

var (
	ErrEmailInUse         = errors.New("Email already in use")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrInvalidEmail       = errors.New("Invalid email address")
	ErrWeakPassword       = fmt.Errorf("Password must be between %d and %d characters", minPasswordLength, maxPasswordLength)
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// RevocationStore keeps revoked session ids until the session would have expired.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type Service struct {
	users       UserStore
	hasher      PasswordHasher
	sessions    *SessionManager
	revocations RevocationStore
	logger      *log.Logger

	// dummyHash is compared against when the email is unknown so that both
	// sign-in failures take the same time.
	dummyHash string
}

func NewService(users UserStore, hasher PasswordHasher, sessions *SessionManager, revocations RevocationStore, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		users:       users,
		hasher:      hasher,
		sessions:    sessions,
		revocations: revocations,
		logger:      logger.WithComponent(log.ComponentAuth),
		dummyHash:   dummy,
	}, nil
}

// SessionTTL is the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

// SignUp creates an account and opens a session for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (core.User, string, error) {
	email = core.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return core.User{}, "", err
	}
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return core.User{}, "", ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return core.User{}, "", ErrEmailInUse
		}
		return core.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, _, err := s.sessions.Issue(user)
	if err != nil {
		return core.User{}, "", err
	}

	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, user.ID, log.FieldOperation, log.OpSignUp)
	return user, token, nil
}

// SignIn checks the credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("load user: %w", err)
		}
		_ = s.hasher.Compare(s.dummyHash, password)
		s.logger.WarnContext(ctx, "Sign in failed", log.FieldOperation, log.OpSignIn, log.FieldReason, "unknown_email")
		return "", ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Sign in failed", log.FieldOperation, log.OpSignIn, log.FieldUserID, user.ID, log.FieldReason, "wrong_password")
		return "", ErrInvalidCredentials
	}

	token, _, err := s.sessions.Issue(user)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "User signed in", log.FieldUserID, user.ID, log.FieldOperation, log.OpSignIn)
	return token, nil
}

// CurrentUser resolves a session token to its user. Every failure is
// reported as ErrUnauthenticated, wrapped around the cause.
func (s *Service) CurrentUser(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, ErrUnauthenticated
	}
	claims, err := s.sessions.Parse(token)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: revocation lookup: %v", ErrUnauthenticated, err)
	}
	if revoked {
		return core.User{}, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return user, nil
}

// SignOut revokes the session carried by token. Invalid tokens are already
// signed out.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.sessions.Parse(token)
	if err != nil {
		return nil
	}
	expiresAt := time.Now().Add(s.sessions.TTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revocations.MarkRevoked(ctx, claims.ID, expiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.InfoContext(ctx, "User signed out", log.FieldUserID, claims.Subject, log.FieldOperation, log.OpSignOut)
	return nil
}

// DeleteUser removes the account.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "User deleted", log.FieldUserID, userID, log.FieldOperation, log.OpDelete)
	return nil
}

func validateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") || len(email) > 254 {
		return ErrInvalidEmail
	}
	return nil
}
