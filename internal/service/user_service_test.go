package service

import (
	"context"
	"testing"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/internal/testutil"
	"ai-chat-app/backend/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnder struct {
	ended []string
}

func (r *recordingEnder) EndSession(_ context.Context, sessionID string) {
	r.ended = append(r.ended, sessionID)
}

func newUserService(t *testing.T) (*UserService, *jwt.Service, *recordingEnder) {
	t.Helper()
	db := testutil.NewDB(t, repository.Migrate)
	jwtSvc := jwt.NewService("test-secret", time.Hour)
	ender := &recordingEnder{}
	return NewUserService(repository.NewGormUserRepository(db), jwtSvc, ender), jwtSvc, ender
}

func register(t *testing.T, svc *UserService) *LoginResult {
	t.Helper()
	res, err := svc.Register(context.Background(), &models.RegisterRequest{
		Name:     "Alice",
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterIssuesSession(t *testing.T) {
	svc, jwtSvc, _ := newUserService(t)

	res := register(t, svc)
	assert.NotZero(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEqual(t, "secret1", res.User.Password)

	claims, err := jwtSvc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, res.SessionID, claims.SessionID)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _, _ := newUserService(t)
	register(t, svc)
	ctx := context.Background()

	_, err := svc.Register(ctx, &models.RegisterRequest{Name: "A", Username: "other", Email: "alice@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Register(ctx, &models.RegisterRequest{Name: "A", Username: "alice", Email: "new@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLoginMintsFreshSessions(t *testing.T) {
	svc, _, _ := newUserService(t)
	register(t, svc)
	ctx := context.Background()

	first, err := svc.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, &models.LoginRequest{Email: " ALICE@example.com ", Password: "secret1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.False(t, second.User.LastLogin.IsZero())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newUserService(t)
	register(t, svc)
	ctx := context.Background()

	_, err := svc.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMeAndLogout(t *testing.T) {
	svc, _, ender := newUserService(t)
	res := register(t, svc)
	ctx := context.Background()

	user, err := svc.Me(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.Me(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	svc.Logout(ctx, res.SessionID)
	assert.Equal(t, []string{res.SessionID}, ender.ended)
}
