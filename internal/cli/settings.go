package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const defaultServerURL = "http://localhost:5000"

// Settings is the persisted CLI state: where the server lives and the
// session token of the signed-in user.
type Settings struct {
	v    *viper.Viper
	path string
}

// DefaultDir is ~/.chatctl
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatctl"), nil
}

// LoadSettings reads dir/config.yaml, creating it with defaults when missing
func LoadSettings(dir string) (*Settings, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHATCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("server.url", defaultServerURL)
	v.SetDefault("session.token", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return &Settings{v: v, path: path}, nil
}

// Path is the config file location
func (s *Settings) Path() string { return s.path }

func (s *Settings) ServerURL() string {
	return s.v.GetString("server.url")
}

// SetServerURL points the CLI at url; it is persisted on the next save
func (s *Settings) SetServerURL(url string) {
	s.v.Set("server.url", url)
}

func (s *Settings) Token() string {
	return s.v.GetString("session.token")
}

// SaveToken persists the session token
func (s *Settings) SaveToken(token string) error {
	s.v.Set("session.token", token)
	return s.v.WriteConfig()
}

// ClearToken forgets the session token
func (s *Settings) ClearToken() error {
	return s.SaveToken("")
}
