package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-chat-app/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret1" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid credentials","error":{"code":"UNAUTHORIZED"}}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "tok-123", Path: "/", HttpOnly: true})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":  models.UserResponse{ID: 7, Email: req.Email},
			"token": "tok-123",
		})
	})
	mux.HandleFunc("/chat/history", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("token")
		if err != nil || ck.Value != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Authentication required"}`))
			return
		}
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		_ = json.NewEncoder(w).Encode(models.HistoryResponse{
			Messages:   []models.Message{{ExternalID: "m1", Content: "hi", Role: models.RoleUser}},
			TotalCount: 11,
			HasMore:    true,
		})
	})
	mux.HandleFunc("/chat/clear", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"message":"Chat history cleared successfully"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientCarriesSessionCookie(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewHTTPClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.History(ctx, 5, 10)
	assert.True(t, IsUnauthorized(err))

	user, err := c.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), user.ID)
	assert.Equal(t, "tok-123", c.Token())

	page, err := c.History(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ExternalID)
	assert.True(t, page.HasMore)

	require.NoError(t, c.Clear(ctx))
}

func TestHTTPClientParsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "alice@example.com", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "Invalid credentials", apiErr.Error())
}

func TestHTTPClientRestoresToken(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)

	c.SetToken("tok-123")
	_, err = c.History(context.Background(), 5, 10)
	require.NoError(t, err)
}
