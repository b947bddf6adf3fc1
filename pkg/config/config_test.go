package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Model)
	assert.Equal(t, 10, cfg.AI.HistoryLimit)
	assert.Equal(t, 50, cfg.Session.Window)
	assert.Equal(t, "token", cfg.Session.CookieName)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Expiry)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 0.0001)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SESSION_WINDOW", "25")
	t.Setenv("AI_TEMPERATURE", "0.2")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("APP_ENV", "production")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Session.Window)
	assert.InDelta(t, 0.2, cfg.AI.Temperature, 0.0001)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestNewDBSQLite(t *testing.T) {
	cfg := Load()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = "file::memory:"
	cfg.Server.Env = "test"

	db, err := NewDB(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, Ping(context.Background(), db, time.Second))
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	cfg := Load()
	cfg.Database.Driver = "oracle"

	_, err := NewDB(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewDBStopsRetryingWhenCanceled(t *testing.T) {
	cfg := Load()
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = "1"
	cfg.Database.Timeout = 100 * time.Millisecond
	cfg.Database.ConnectRetries = 10

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewDB(ctx, cfg)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
