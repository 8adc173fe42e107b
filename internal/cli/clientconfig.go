package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ClientConfig is what the client commands remember between runs.
// It is stored as TOML in $XDG_CONFIG_HOME/storynest/client.toml.
type ClientConfig struct {
	ServerURL        string `toml:"server_url"`
	Token            string `toml:"token"`
	OperationTimeout string `toml:"operation_timeout"`
}

const (
	defaultServerURL        = "http://localhost:8188"
	defaultOperationTimeout = 10 * time.Second
	clientConfigName        = "client.toml"
)

// DefaultClientConfigPath returns where the client config lives when no
// -config flag is given.
func DefaultClientConfigPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return filepath.Join(dir, "storynest", clientConfigName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "storynest", clientConfigName)
	}
	return filepath.Join(".storynest", clientConfigName)
}

// LoadClientConfig reads the config at path. A missing file yields the
// defaults; a file that cannot be parsed is an error.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := ClientConfig{ServerURL: defaultServerURL}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read client config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{ServerURL: defaultServerURL}, fmt.Errorf("parse client config %s: %w", path, err)
	}

	if strings.TrimSpace(cfg.ServerURL) == "" {
		cfg.ServerURL = defaultServerURL
	}
	return cfg, nil
}

// SaveClientConfig writes cfg to path. The file holds an API token, so it is
// only readable by the owner.
func SaveClientConfig(path string, cfg ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal client config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write client config: %w", err)
	}
	return nil
}

// Timeout returns the per-operation timeout, falling back to the default
// when the stored value is empty or invalid.
func (c ClientConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.OperationTimeout)); err == nil && d > 0 {
		return d
	}
	return defaultOperationTimeout
}
