package secrets

import (
	"context"
	"errors"
	"testing"

	"ai-chat-app/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data  map[string]any
	err   error
	calls int
}

func (f *fakeKV) Get(context.Context, string) (*vault.KVSecret, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &vault.KVSecret{Data: f.data}, nil
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "GEMINI_API_KEY", EnvKey("gemini_api_key"))
	assert.Equal(t, "JWT_SECRET", EnvKey("jwt-secret"))
}

func TestEnvLookup(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")

	v, err := Env{}.Lookup(context.Background(), KeyJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = Env{}.Lookup(context.Background(), "missing_key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultReadsPathOnce(t *testing.T) {
	kv := &fakeKV{data: map[string]any{KeyGeminiAPIKey: "vault-key", KeyJWTSecret: "vault-jwt"}}
	v := newVault(kv, "")

	for _, key := range []string{KeyGeminiAPIKey, KeyJWTSecret, KeyGeminiAPIKey} {
		_, err := v.Lookup(context.Background(), key)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, kv.calls)
}

func TestVaultRetriesAfterFailure(t *testing.T) {
	kv := &fakeKV{err: errors.New("permission denied")}
	v := newVault(kv, "ai-chat")

	_, err := v.Lookup(context.Background(), KeyJWTSecret)
	assert.ErrorContains(t, err, "permission denied")

	kv.err = nil
	kv.data = map[string]any{KeyJWTSecret: "ok"}
	s, err := v.Lookup(context.Background(), KeyJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
	assert.Equal(t, 2, kv.calls)
}

func TestChainFallsThroughToEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	chain := Chain{newVault(&fakeKV{err: errors.New("sealed")}, ""), Env{}}

	v, err := chain.Lookup(context.Background(), KeyJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", v)

	_, err = chain.Lookup(context.Background(), "nowhere")
	assert.ErrorContains(t, err, "sealed")
	assert.Equal(t, "vault,env", chain.Name())
}

func TestApplyKeepsConfiguredValues(t *testing.T) {
	kv := &fakeKV{data: map[string]any{KeyGeminiAPIKey: "vault-key"}}
	jwtSecret, apiKey := "configured", ""

	Apply(context.Background(), Chain{newVault(kv, ""), Env{}}, logger.Discard(), map[string]*string{
		KeyJWTSecret:    &jwtSecret,
		KeyGeminiAPIKey: &apiKey,
	})

	assert.Equal(t, "configured", jwtSecret)
	assert.Equal(t, "vault-key", apiKey)
}

func TestNewVaultValidates(t *testing.T) {
	_, err := NewVault(VaultConfig{})
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVault(VaultConfig{Address: "http://127.0.0.1:8200"})
	assert.ErrorIs(t, err, ErrNoVaultToken)
}
