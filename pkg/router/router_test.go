package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/internal/testutil"
	"ai-chat-app/backend/pkg/config"
	"ai-chat-app/backend/pkg/di"
	"ai-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponder struct {
	fail bool
}

func (s *stubResponder) Generate(_ context.Context, msg string, _ []models.Message) (string, error) {
	if s.fail {
		return "", errors.New("provider down")
	}
	return "reply to " + msg, nil
}

func (s *stubResponder) Ping(context.Context) error {
	if s.fail {
		return errors.New("provider down")
	}
	return nil
}

func (s *stubResponder) Model() string { return "gemini-2.0-flash" }

func newTestRouter(t *testing.T, responder *stubResponder, tweaks ...func(*config.Config)) *Router {
	t.Helper()
	r := newBareRouter(t, responder, tweaks...)
	r.SetupRoutes()
	return r
}

// newBareRouter has middleware installed but no routes yet
func newBareRouter(t *testing.T, responder *stubResponder, tweaks ...func(*config.Config)) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Server.Env = "test"
	cfg.JWT.Secret = "router-test-secret"
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	cfg.Security.MessageRateLimit = 1000
	cfg.Security.MessageRateBurst = 1000
	cfg.Security.AllowedOrigins = []string{"http://localhost:3000"}
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	db := testutil.NewDB(t, repository.Migrate)
	container, err := di.New(cfg, db, logger.Discard(), di.WithResponder(responder))
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(container)
}

type client struct {
	t      *testing.T
	r      *Router
	cookie *http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.r.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func registered(t *testing.T, r *Router) *client {
	t.Helper()
	c := &client{t: t, r: r}
	w := c.do(http.MethodPost, "/auth/register", `{"name":"Alice","username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, ck := range w.Result().Cookies() {
		if ck.Name == "token" {
			c.cookie = ck
		}
	}
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)
	return c
}

func TestChatRoutesRequireSession(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	anon := &client{t: t, r: r}

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/chat/message"},
		{http.MethodGet, "/chat/history"},
		{http.MethodDelete, "/chat/clear"},
		{http.MethodGet, "/chat/stats"},
		{http.MethodGet, "/chat/health"},
	} {
		w := anon.do(tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
	}

	bad := &client{t: t, r: r, cookie: &http.Cookie{Name: "token", Value: "garbage"}}
	w := bad.do(http.MethodGet, "/chat/history", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatFlow(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	c := registered(t, r)

	w := c.do(http.MethodPost, "/chat/message", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sent models.SendMessageResponse
	decode(t, w, &sent)
	assert.Equal(t, "hello", sent.UserMessage.Content)
	assert.Equal(t, "reply to hello", sent.AIMessage.Content)
	assert.NotEmpty(t, sent.UserMessage.ExternalID)
	assert.NotEmpty(t, sent.ChatID)

	w = c.do(http.MethodGet, "/chat/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history models.HistoryResponse
	decode(t, w, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, 2, history.TotalCount)
	assert.False(t, history.HasMore)
	assert.Equal(t, sent.AIMessage.ExternalID, history.Messages[1].ExternalID)

	w = c.do(http.MethodGet, "/chat/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.ChatMetadata
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, len("hello")+len("reply to hello"), stats.TotalTokens)

	w = c.do(http.MethodPut, "/chat/messages/"+sent.UserMessage.ExternalID, `{"content":"hello!"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodDelete, "/chat/messages/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = c.do(http.MethodPut, "/chat/title", `{"title":"Greetings"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodDelete, "/chat/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Chat history cleared successfully")

	w = c.do(http.MethodGet, "/chat/history", "")
	decode(t, w, &history)
	assert.Empty(t, history.Messages)
	assert.Equal(t, 0, history.TotalCount)
}

func TestSendMessageValidation(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	c := registered(t, r)

	w := c.do(http.MethodPost, "/chat/message", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Message content is required")

	w = c.do(http.MethodGet, "/chat/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = c.do(http.MethodGet, "/chat/history?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodGet, "/chat/stats", "")
	var stats models.ChatMetadata
	decode(t, w, &stats)
	assert.Equal(t, 0, stats.TotalMessages)
}

func TestProviderFailureStillSends(t *testing.T) {
	responder := &stubResponder{fail: true}
	r := newTestRouter(t, responder)
	c := registered(t, r)

	w := c.do(http.MethodPost, "/chat/message", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var sent models.SendMessageResponse
	decode(t, w, &sent)
	assert.Equal(t, "provider down", sent.AIMessage.Metadata.Error)

	w = c.do(http.MethodGet, "/chat/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var h models.AIHealth
	decode(t, w, &h)
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, "gemini", h.Service)
	assert.Equal(t, "provider down", h.Error)
}

func TestAuthRoutes(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	c := registered(t, r)

	w := c.do(http.MethodPost, "/auth/register", `{"name":"A","username":"alice","email":"other@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodPost, "/auth/register", `{"name":"A","email":"x@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	anon := &client{t: t, r: r}
	w = anon.do(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = anon.do(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cleared *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "token" {
			cleared = ck
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.MaxAge < 0)
}

func TestLogoutDropsSessionCache(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	c := registered(t, r)

	c.do(http.MethodPost, "/chat/message", `{"content":"hello"}`)
	c.do(http.MethodGet, "/chat/history", "")

	claims, err := r.Container.JWTService.ValidateToken(c.cookie.Value)
	require.NoError(t, err)
	_, ok := r.Container.SessionCache.Get(context.Background(), claims.SessionID)
	require.True(t, ok)

	c.do(http.MethodPost, "/auth/logout", "")
	_, ok = r.Container.SessionCache.Get(context.Background(), claims.SessionID)
	assert.False(t, ok)
}

func TestSystemRoutes(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})
	anon := &client{t: t, r: r}

	w := anon.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AI Chat API is running")

	w = anon.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)

	w = anon.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := newTestRouter(t, &stubResponder{})

	req := httptest.NewRequest(http.MethodOptions, "/chat/message", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/chat/message", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSendBudgetIsPerUser(t *testing.T) {
	r := newTestRouter(t, &stubResponder{}, func(cfg *config.Config) {
		cfg.Security.MessageRateLimit = 1
		cfg.Security.MessageRateBurst = 2
	})
	c := registered(t, r)

	for i := 0; i < 2; i++ {
		w := c.do(http.MethodPost, "/chat/message", `{"content":"hi"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := c.do(http.MethodPost, "/chat/message", `{"content":"one more"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// reads are not charged against the send budget
	w = c.do(http.MethodGet, "/chat/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenAPIValidation(t *testing.T) {
	r := newBareRouter(t, &stubResponder{})
	require.NoError(t, r.AddOpenAPIValidation(""))
	r.SetupRoutes()
	c := registered(t, r)

	w := c.do(http.MethodGet, "/chat/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = c.do(http.MethodGet, "/chat/history?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodGet, "/api/docs/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}
