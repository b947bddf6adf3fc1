// Package secrets resolves the server's credentials from Vault or the
// environment.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"

	"ai-chat-app/backend/pkg/logger"
)

// Keys of the secrets the server reads at startup
const (
	KeyJWTSecret    = "jwt_secret"
	KeyGeminiAPIKey = "gemini_api_key"
)

var ErrSecretNotFound = errors.New("secret not found")

// Source looks up a secret; a missing key is ErrSecretNotFound
type Source interface {
	Lookup(ctx context.Context, key string) (string, error)
	Name() string
}

// EnvKey maps a secret key to its environment variable, e.g. gemini-api.key -> GEMINI_API_KEY
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// Env reads secrets from the process environment
type Env struct{}

func (Env) Name() string { return "env" }

func (Env) Lookup(_ context.Context, key string) (string, error) {
	if v := os.Getenv(EnvKey(key)); v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

// Chain tries each source in order. A source failure does not stop the
// search; it is returned only if no later source has the key.
type Chain []Source

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) Lookup(ctx context.Context, key string) (string, error) {
	_, v, err := c.lookup(ctx, key)
	return v, err
}

func (c Chain) lookup(ctx context.Context, key string) (string, string, error) {
	var firstErr error
	for _, s := range c {
		v, err := s.Lookup(ctx, key)
		if err == nil {
			return s.Name(), v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", "", firstErr
	}
	return "", "", ErrSecretNotFound
}

// Apply overwrites each *target with the secret named by its key when src
// has one, leaving the configured value otherwise. Values are never logged.
func Apply(ctx context.Context, src Source, log *logger.Logger, targets map[string]*string) {
	chain, ok := src.(Chain)
	if !ok {
		chain = Chain{src}
	}
	for key, target := range targets {
		from, v, err := chain.lookup(ctx, key)
		switch {
		case err == nil:
			*target = v
			log.Debug("Secret loaded", "key", key, "source", from)
		case errors.Is(err, ErrSecretNotFound):
			log.Debug("Secret not set, keeping configured value", "key", key)
		default:
			log.Warn("Secret lookup failed, keeping configured value", "key", key, "error", err.Error())
		}
	}
}
