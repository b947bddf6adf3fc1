package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	// UserIDKey is the key for the authenticated user id in request contexts
	UserIDKey contextKey = "userID"
	// SessionIDKey is the key for the login-session id in request contexts
	SessionIDKey contextKey = "sessionID"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    uint
	SessionID string
	Username  string
}

// WithIdentity stores the caller in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, SessionIDKey, id.SessionID)
}

// GetUserID extracts the user id from a context, 0 when absent
func GetUserID(ctx context.Context) uint {
	if ctx == nil {
		return 0
	}
	if id, ok := ctx.Value(UserIDKey).(uint); ok {
		return id
	}
	return 0
}

// GetSessionID extracts the login-session id from a context
func GetSessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sid, ok := ctx.Value(SessionIDKey).(string); ok {
		return sid
	}
	return ""
}

// CurrentIdentity returns the identity set by the auth middleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get("identity")
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
