// Package config loads wisestar settings from a JSON file, WISESTAR_*
// environment variables and a local secrets file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type BackendConfig struct {
	BaseURL  string
	Timeout  string
	APIToken string
}

type StorageConfig struct {
	DataDir string
	Backend string
	Key     string
}

type LogConfig struct {
	Level string
}

// Storage backends selectable with storage.backend.
const (
	StorageSQLite = "sqlite"
	StorageBolt   = "bolt"
	StorageMemory = "memory"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "60s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: StorageSQLite,
			Key:     "wisestar_conversations",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/wisestar/config.json, then applies WISESTAR_* environment
// overrides. Secrets are read from the environment or the secrets file.
func Load() (Config, error) {
	return loadWith(newFileSource(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(key string) (string, error)
}

func loadWith(src Source, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applySource(&cfg, src); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if _, err := c.Backend.TimeoutDuration(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case StorageSQLite, StorageBolt, StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of sqlite, bolt, memory", c.Storage.Backend)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses backend.timeout. An empty value means no timeout.
func (b BackendConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("backend.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("backend.timeout %s is negative", b.Timeout)
	}
	return d, nil
}

// ParseLogLevel maps log.level onto a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}
