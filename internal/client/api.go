package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"ai-chat-app/backend/internal/models"
)

// API is the server surface the Store drives
type API interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.UserResponse, error)
	Login(ctx context.Context, email, password string) (*models.UserResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.UserResponse, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error)
	History(ctx context.Context, limit, offset int) (*models.HistoryResponse, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (*models.ChatMetadata, error)
	Health(ctx context.Context) (*models.AIHealth, error)
}

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// IsUnauthorized reports whether err is a 401 from the server
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// HTTPClient talks to the chat server, carrying the session cookie in a jar.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	cookieName string
}

// NewHTTPClient creates a client for baseURL, e.g. http://localhost:5000
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		cookieName: "token",
	}, nil
}

// Token returns the current session token, empty when signed out
func (c *HTTPClient) Token() string {
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name == c.cookieName {
			return ck.Value
		}
	}
	return ""
}

// SetToken restores a saved session token
func (c *HTTPClient) SetToken(token string) {
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  c.cookieName,
		Value: token,
		Path:  "/",
	}})
}

type userEnvelope struct {
	User models.UserResponse `json:"user"`
}

func (c *HTTPClient) Register(ctx context.Context, req models.RegisterRequest) (*models.UserResponse, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.UserResponse, error) {
	var out userEnvelope
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *HTTPClient) Me(ctx context.Context) (*models.UserResponse, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	var out models.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/chat/message", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) History(ctx context.Context, limit, offset int) (*models.HistoryResponse, error) {
	var out models.HistoryResponse
	path := fmt.Sprintf("/chat/history?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/chat/clear", nil, nil)
}

func (c *HTTPClient) Stats(ctx context.Context) (*models.ChatMetadata, error) {
	var out models.ChatMetadata
	if err := c.do(ctx, http.MethodGet, "/chat/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*models.AIHealth, error) {
	var out models.AIHealth
	if err := c.do(ctx, http.MethodGet, "/chat/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Message string `json:"message"`
			Error   struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Message = envelope.Message
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
