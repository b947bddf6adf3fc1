package api

import (
	"errors"
	"net/http"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/service"
	apperrors "ai-chat-app/backend/pkg/errors"
	"ai-chat-app/backend/pkg/jwt"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// CookieOptions control the session cookie
type CookieOptions struct {
	Name   string
	MaxAge int
	Secure bool
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service    *service.UserService
	jwtService *jwt.Service
	cookie     CookieOptions
	logger     *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(userService *service.UserService, jwtService *jwt.Service, cookie CookieOptions, log *logger.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	if cookie.MaxAge == 0 {
		cookie.MaxAge = int(jwtService.Expiry().Seconds())
	}
	return &AuthHandler{
		service:    userService,
		jwtService: jwtService,
		cookie:     cookie,
		logger:     log,
	}
}

// RegisterRoutes mounts /auth; auth guards the routes that need a session
func (h *AuthHandler) RegisterRoutes(group *gin.RouterGroup, auth gin.HandlerFunc) {
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.POST("/logout", h.Logout)
	group.GET("/me", auth, h.Me)
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(h.cookie.sameSite())
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequestWithDetails(apperrors.CodeValidation, "All fields are required", err.Error()))
		return
	}

	res, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.Error(apperrors.NewConflictError(apperrors.CodeConflict, "User already exists"))
			return
		}
		c.Error(apperrors.Storage("Error registering user", err))
		return
	}

	h.setCookie(c, res.Token, h.cookie.MaxAge)
	h.logger.Info("User registered", "user_id", res.User.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    res.User.ToResponse(),
		"token":   res.Token,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Validation("Email and password are required"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.Error(apperrors.NewUnauthorizedError(apperrors.CodeInvalidToken, "Invalid credentials"))
			return
		}
		c.Error(apperrors.Storage("Error logging in", err))
		return
	}

	h.setCookie(c, res.Token, h.cookie.MaxAge)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    res.User.ToResponse(),
		"token":   res.Token,
	})
}

// Logout handles POST /auth/logout. It always clears the cookie; a valid
// token additionally tears down that session's cached history.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := middleware.TokenFromRequest(c, h.cookie.Name); token != "" {
		if claims, err := h.jwtService.ValidateToken(token); err == nil {
			h.service.Logout(c.Request.Context(), claims.SessionID)
		}
	}

	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	user, err := h.service.Me(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.Error(apperrors.NewNotFoundError(apperrors.CodeNotFound, "User not found"))
			return
		}
		c.Error(apperrors.Storage("Error getting user info", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}
