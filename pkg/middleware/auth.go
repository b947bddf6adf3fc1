package middleware

import (
	stderrors "errors"
	"strconv"
	"strings"

	"ai-chat-app/backend/pkg/errors"
	"ai-chat-app/backend/pkg/jwt"
	"ai-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const challenge = `Bearer realm="ai-chat"`

// TokenFromRequest reads the session token from the cookie, falling back to an
// Authorization header with the Bearer scheme.
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SessionAuth rejects requests without a valid session token and
// puts the caller's identity on the gin and request contexts.
func SessionAuth(jwtService *jwt.Service, cookieName string, log *logger.Logger) gin.HandlerFunc {
	deny := func(c *gin.Context, code, msg string) {
		c.Header("WWW-Authenticate", challenge)
		c.Error(errors.NewUnauthorizedError(code, msg))
		c.Abort()
	}

	return func(c *gin.Context) {
		raw := TokenFromRequest(c, cookieName)
		if raw == "" {
			deny(c, errors.CodeAuthRequired, "Access token required")
			return
		}

		claims, err := jwtService.ValidateToken(raw)
		switch {
		case stderrors.Is(err, jwt.ErrExpiredToken):
			deny(c, errors.CodeTokenExpired, "Session expired, please log in again")
			return
		case err != nil:
			log.Warn("Invalid session token", "error", err.Error(), "path", c.Request.URL.Path)
			deny(c, errors.CodeInvalidToken, "Invalid or expired token")
			return
		}

		id := Identity{UserID: claims.UserID, SessionID: claims.SessionID, Username: claims.Username}
		c.Set("identity", id)
		c.Set("userID", claims.UserID)

		ctx := WithIdentity(c.Request.Context(), id)
		reqLog := logger.FromContextOr(ctx, log).
			WithUserID(strconv.FormatUint(uint64(id.UserID), 10)).
			WithSession(id.SessionID)
		c.Set("logger", reqLog)
		c.Request = c.Request.WithContext(logger.IntoContext(ctx, reqLog))

		c.Next()
	}
}
