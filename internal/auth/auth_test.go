package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"notaspese/internal/storage"
)

type ServiceTestSuite struct {
	suite.Suite
	repo        *storage.SQLiteRepository
	sessions    *SessionManager
	revocations *MemoryRevocationStore
	svc         *Service
	ctx         context.Context
}

func (s *ServiceTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "auth.db"))
	require.NoError(s.T(), err)
	s.repo = repo

	s.sessions, err = NewSessionManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(s.T(), err)
	s.revocations = NewMemoryRevocationStore(100, time.Hour)

	s.svc, err = NewService(repo, NewBcryptHasher(bcrypt.MinCost), s.sessions, s.revocations, nil)
	require.NoError(s.T(), err)
	s.ctx = context.Background()
}

func (s *ServiceTestSuite) TearDownTest() {
	s.repo.Close()
}

func (s *ServiceTestSuite) TestSignUpThenCurrentUser() {
	user, token, err := s.svc.SignUp(s.ctx, " Alice@Example.com ", "password123")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice@example.com", user.Email)
	assert.NotEqual(s.T(), "password123", user.PasswordHash)

	current, err := s.svc.CurrentUser(s.ctx, token)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, current.ID)
}

func (s *ServiceTestSuite) TestSignUpDuplicateEmail() {
	_, _, err := s.svc.SignUp(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)

	_, _, err = s.svc.SignUp(s.ctx, "ALICE@example.com", "password456")
	assert.ErrorIs(s.T(), err, ErrEmailInUse)
	assert.Equal(s.T(), "Email already in use", err.Error())
}

func (s *ServiceTestSuite) TestSignUpValidation() {
	_, _, err := s.svc.SignUp(s.ctx, "not-an-email", "password123")
	assert.ErrorIs(s.T(), err, ErrInvalidEmail)

	_, _, err = s.svc.SignUp(s.ctx, "bob@example.com", "short")
	assert.ErrorIs(s.T(), err, ErrWeakPassword)
}

func (s *ServiceTestSuite) TestSignIn() {
	_, _, err := s.svc.SignUp(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)

	token, err := s.svc.SignIn(s.ctx, "ALICE@example.com", "password123")
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), token)

	_, err = s.svc.SignIn(s.ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)

	_, err = s.svc.SignIn(s.ctx, "nobody@example.com", "password123")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *ServiceTestSuite) TestSignOutRevokesSession() {
	_, token, err := s.svc.SignUp(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.svc.SignOut(s.ctx, token))

	_, err = s.svc.CurrentUser(s.ctx, token)
	assert.ErrorIs(s.T(), err, ErrUnauthenticated)

	// A fresh sign in is unaffected
	other, err := s.svc.SignIn(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)
	_, err = s.svc.CurrentUser(s.ctx, other)
	assert.NoError(s.T(), err)
}

func (s *ServiceTestSuite) TestSignOutWithGarbageToken() {
	assert.NoError(s.T(), s.svc.SignOut(s.ctx, "garbage"))
}

func (s *ServiceTestSuite) TestCurrentUserRejectsBadTokens() {
	_, err := s.svc.CurrentUser(s.ctx, "")
	assert.ErrorIs(s.T(), err, ErrUnauthenticated)

	_, err = s.svc.CurrentUser(s.ctx, "not.a.jwt")
	assert.ErrorIs(s.T(), err, ErrUnauthenticated)

	other, err := NewSessionManager([]byte("another-secret-another-secret-xx"), time.Hour)
	require.NoError(s.T(), err)
	user, _, err := s.svc.SignUp(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)
	forged, _, err := other.Issue(user)
	require.NoError(s.T(), err)
	_, err = s.svc.CurrentUser(s.ctx, forged)
	assert.ErrorIs(s.T(), err, ErrUnauthenticated)
}

func (s *ServiceTestSuite) TestDeletedUserIsUnauthenticated() {
	user, token, err := s.svc.SignUp(s.ctx, "alice@example.com", "password123")
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.svc.DeleteUser(s.ctx, user.ID))

	_, err = s.svc.CurrentUser(s.ctx, token)
	assert.ErrorIs(s.T(), err, ErrUnauthenticated)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestSessionManager_Expiry(t *testing.T) {
	m, err := NewSessionManager([]byte("secret"), time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token, expiresAt, err := m.Issue(userFixture())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), expiresAt)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	now = now.Add(2 * time.Minute)
	_, err = m.Parse(token)
	assert.Error(t, err)
}

func TestNewSessionManagerRequiresSecret(t *testing.T) {
	_, err := NewSessionManager(nil, time.Hour)
	assert.Error(t, err)

	m, err := NewEphemeralSessionManager(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.TTL())
}

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRevocationStore(10, time.Hour)

	revoked, err := s.IsRevoked(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.MarkRevoked(ctx, "sid", time.Now().Add(time.Hour)))
	revoked, _ = s.IsRevoked(ctx, "sid")
	assert.True(t, revoked)
}

func TestRedisRevocationStore(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := ConnectRedis(ctx, redisURL)
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisRevocationStore(client)
	sid := "test-" + time.Now().Format("150405.000000000")

	revoked, err := s.IsRevoked(ctx, sid)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.MarkRevoked(ctx, sid, time.Now().Add(time.Minute)))
	revoked, err = s.IsRevoked(ctx, sid)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.TTL(ctx, revokedKeyPrefix+sid).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute, "unexpected ttl %v", ttl)
}

func TestConnectRedisInvalidURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "http://localhost:6379")
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("password123")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "password123"))
	assert.True(t, errors.Is(h.Compare(hash, "nope"), bcrypt.ErrMismatchedHashAndPassword))
}
