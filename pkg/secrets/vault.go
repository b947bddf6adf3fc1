package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig points at one KV v2 secret holding all keys
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string // defaults to "secret"
	Path       string // defaults to "ai-chat"
	Timeout    time.Duration
	MaxRetries int
}

type kvReader interface {
	Get(ctx context.Context, path string) (*vault.KVSecret, error)
}

// Vault reads the configured secret once and serves every key from it. A
// failed read is retried on the next Lookup.
type Vault struct {
	kv   kvReader
	path string

	mu   sync.Mutex
	data map[string]any
}

// NewVault creates a Vault source. It does not contact the server.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	vc.MaxRetries = cfg.MaxRetries
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return newVault(client.KVv2(cfg.Mount), cfg.Path), nil
}

func newVault(kv kvReader, path string) *Vault {
	if path == "" {
		path = "ai-chat"
	}
	return &Vault{kv: kv, path: path}
}

func (v *Vault) Name() string { return "vault" }

func (v *Vault) Lookup(ctx context.Context, key string) (string, error) {
	data, err := v.load(ctx)
	if err != nil {
		return "", err
	}
	s, ok := data[key].(string)
	if !ok || s == "" {
		return "", ErrSecretNotFound
	}
	return s, nil
}

func (v *Vault) load(ctx context.Context) (map[string]any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data != nil {
		return v.data, nil
	}

	secret, err := v.kv.Get(ctx, v.path)
	switch {
	case errors.Is(err, vault.ErrSecretNotFound):
		v.data = map[string]any{}
	case err != nil:
		return nil, fmt.Errorf("vault read %s: %w", v.path, err)
	case secret == nil || secret.Data == nil:
		v.data = map[string]any{}
	default:
		v.data = secret.Data
	}
	return v.data, nil
}
