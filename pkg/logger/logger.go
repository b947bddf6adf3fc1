// Package logger wraps log/slog with the request-scoped helpers the chat
// service uses.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Config contains logger configuration options
type Config struct {
	// Level is one of debug, info, warn, error; anything else means info
	Level string
	// JSON selects the JSON handler, otherwise logfmt-style text
	JSON bool
	// Output defaults to os.Stderr
	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs JSON at info to stderr
func DefaultConfig() Config {
	return Config{Level: "info", JSON: true, Output: os.Stderr}
}

// Logger is a *slog.Logger with a few domain helpers
type Logger struct {
	*slog.Logger
}

var global atomic.Pointer[Logger]

// New builds a logger. The first logger built becomes the global one unless
// SetGlobal has already been called.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(config.Level), AddSource: config.AddSource}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if config.JSON {
		h = slog.NewJSONHandler(out, opts)
	}

	l := &Logger{Logger: slog.New(h)}
	global.CompareAndSwap(nil, l)
	return l
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Discard drops everything
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetGlobal replaces the process-wide logger
func SetGlobal(l *Logger) {
	global.Store(l)
}

// GetGlobal returns the process-wide logger, or a discarding one
func GetGlobal() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return Discard()
}

func (l *Logger) with(key, value string) *Logger {
	if value == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With(key, value)}
}

func (l *Logger) WithRequestID(id string) *Logger { return l.with("request_id", id) }

func (l *Logger) WithUserID(id string) *Logger { return l.with("user_id", id) }

// WithSession tags entries with the login session id (JWT sid)
func (l *Logger) WithSession(sid string) *Logger { return l.with("session_id", sid) }

// LogError logs msg at error level with err under "error"
func (l *Logger) LogError(err error, msg string, args ...any) {
	if err != nil {
		args = append([]any{"error", err.Error()}, args...)
	}
	l.Error(msg, args...)
}

type ctxKey struct{}

// IntoContext stores l in ctx for FromContext
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request logger stored by Middleware, else the global one
func FromContext(ctx context.Context) *Logger {
	return FromContextOr(ctx, GetGlobal())
}

// FromContextOr is FromContext with an explicit fallback
func FromContextOr(ctx context.Context, fallback *Logger) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return fallback
}
