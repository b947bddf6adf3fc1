// Package jwt issues and verifies the HS256 session tokens carried in the
// "token" cookie.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Issuer is stamped into every token and required on validation
const Issuer = "ai-chat-app"

// Claims carried by a session token. SessionID identifies one login and keys
// the server-side session cache.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Option customizes a Service
type Option func(*Service)

// WithPreviousSecret keeps accepting tokens signed with a rotated-out secret
// until they expire. New tokens always use the current secret.
func WithPreviousSecret(secret string) Option {
	return func(s *Service) {
		if secret != "" {
			s.previous = []byte(secret)
		}
	}
}

// WithLeeway tolerates clock skew on exp/nbf/iat
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// Service signs and validates session tokens
type Service struct {
	secret   []byte
	previous []byte
	expiry   time.Duration
	leeway   time.Duration
	now      func() time.Time
}

// NewService creates a token service. An empty secret falls back to a
// development key; zero expiry means seven days.
func NewService(secret string, expiry time.Duration, opts ...Option) *Service {
	if secret == "" {
		secret = "devJwtSecretDoNotUseInProduction"
	}
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	s := &Service{secret: []byte(secret), expiry: expiry, leeway: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expiry is the lifetime of issued tokens
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// GenerateToken issues a token for a fresh login session and returns it with the session id.
func (s *Service) GenerateToken(userID uint, email, username string) (token, sessionID string, err error) {
	now := s.now()
	sessionID = uuid.NewString()
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Username:  username,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

// ValidateToken verifies signature, issuer and lifetime and returns the claims
func (s *Service) ValidateToken(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)

	claims, err := s.parse(parser, raw, s.secret)
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) && s.previous != nil {
		claims, err = s.parse(parser, raw, s.previous)
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.UserID == 0 || claims.SessionID == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) parse(p *jwt.Parser, raw string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := p.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil })
	return claims, err
}
