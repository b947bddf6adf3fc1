package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/pkg/jwt"
)

var (
	ErrUserAlreadyExists  = errors.New("User with this email or username already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrUserNotFound       = errors.New("User not found")
)

// SessionEnder tears down per-session state on logout
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID string)
}

// LoginResult is a freshly issued login session
type LoginResult struct {
	User      *models.User
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// UserService handles accounts and login sessions
type UserService struct {
	users    repository.UserRepository
	jwt      *jwt.Service
	sessions SessionEnder
	now      func() time.Time
}

// NewUserService creates a new user service. sessions may be nil.
func NewUserService(users repository.UserRepository, jwtService *jwt.Service, sessions SessionEnder) *UserService {
	return &UserService{
		users:    users,
		jwt:      jwtService,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account and logs it in
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*LoginResult, error) {
	email := models.NormalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	exists, err := s.users.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	user := &models.User{
		Name:      strings.TrimSpace(req.Name),
		Username:  username,
		Email:     email,
		Password:  req.Password,
		LastLogin: s.now(),
	}
	// the exists check can race another registration
	if err := s.users.Create(ctx, user); errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrUserAlreadyExists
	} else if err != nil {
		return nil, err
	}

	return s.issue(user)
}

// Login checks credentials and starts a new login session
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = now

	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*LoginResult, error) {
	token, sid, err := s.jwt.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:      user,
		Token:     token,
		SessionID: sid,
		ExpiresAt: s.now().Add(s.jwt.Expiry()),
	}, nil
}

// Me returns the account behind the current session
func (s *UserService) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Logout ends the login session
func (s *UserService) Logout(ctx context.Context, sessionID string) {
	if s.sessions != nil && sessionID != "" {
		s.sessions.EndSession(ctx, sessionID)
	}
}
