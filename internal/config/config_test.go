package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secretStore interface.
type mockSecrets map[string]string

func (m mockSecrets) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) *fileSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileSource(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if d, _ := cfg.Backend.TimeoutDuration(); d != time.Minute {
		t.Errorf("Backend.Timeout = %v, want 1m", d)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.Key != "wisestar_conversations" {
		t.Errorf("Storage.Key = %q", cfg.Storage.Key)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "wisestar") {
		t.Errorf("Storage.DataDir = %q, want .../wisestar", cfg.Storage.DataDir)
	}
}

// TestFileValues verifies that all fields are correctly read from the JSON file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	src := writeTempConfig(t, `{
		"server.port": 5000,
		"backend.base_url": "http://tutor:9000",
		"backend.timeout": "5s",
		"storage.data_dir": "/tmp/wisestar-test",
		"storage.backend": "bolt",
		"storage.key": "custom_key",
		"log.level": "debug"
	}`)

	cfg, err := loadWith(src, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://tutor:9000" || cfg.Backend.Timeout != "5s" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/wisestar-test" || cfg.Storage.Backend != StorageBolt || cfg.Storage.Key != "custom_key" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	src := writeTempConfig(t, `{"server.port": 5000, "backend.base_url": "http://file:1"}`)
	t.Setenv("WISESTAR_SERVER_PORT", "6000")
	t.Setenv("WISESTAR_BACKEND_BASE_URL", "http://env:2")

	cfg, err := loadWith(src, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://env:2" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestEnvOverride_BadIntKeepsValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("WISESTAR_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

// TestSecrets verifies secrets come from the env first, then the secrets
// file, and are never read from the config file.
func TestSecrets(t *testing.T) {
	clearEnv(t)
	src := writeTempConfig(t, `{"backend.api_token": "from-config-file"}`)

	cfg, err := loadWith(src, mockSecrets{"backend.api_token": "from-secrets"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.APIToken != "from-secrets" {
		t.Errorf("APIToken = %q, want from-secrets", cfg.Backend.APIToken)
	}

	t.Setenv("WISESTAR_BACKEND_API_TOKEN", "from-env")
	cfg, err = loadWith(src, mockSecrets{"backend.api_token": "from-secrets"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.APIToken != "from-env" {
		t.Errorf("APIToken = %q, want from-env", cfg.Backend.APIToken)
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"storage backend", `{"storage.backend": "postgres"}`, "storage.backend"},
		{"timeout", `{"backend.timeout": "soon"}`, "backend.timeout"},
		{"port", `{"server.port": 70000}`, "server.port"},
		{"log level", `{"log.level": "loud"}`, "log.level"},
		{"non-integer port", `{"server.port": 1.5}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, tt.content), mockSecrets{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestCorruptConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{not json`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warn": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestSetKey(t *testing.T) {
	dir := t.TempDir()
	src := newFileSource(filepath.Join(dir, "config.json"))
	secrets := fileSecrets{path: filepath.Join(dir, "secrets.json")}

	if err := setKey(src, secrets, "server.port", "4200"); err != nil {
		t.Fatalf("setKey(server.port): %v", err)
	}
	if err := setKey(src, secrets, "storage.backend", "memory"); err != nil {
		t.Fatalf("setKey(storage.backend): %v", err)
	}
	if err := setKey(src, secrets, "backend.api_token", "tok"); err != nil {
		t.Fatalf("setKey(backend.api_token): %v", err)
	}

	reloaded := newFileSource(filepath.Join(dir, "config.json"))
	if v, ok, _ := reloaded.GetInt("server.port"); !ok || v != 4200 {
		t.Errorf("server.port = %d, %v", v, ok)
	}
	if _, ok, _ := reloaded.GetString("backend.api_token"); ok {
		t.Error("secret written to config file")
	}
	if v, err := secrets.Get("backend.api_token"); err != nil || v != "tok" {
		t.Errorf("secret = %q, %v", v, err)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	dir := t.TempDir()
	src := newFileSource(filepath.Join(dir, "config.json"))
	secrets := fileSecrets{path: filepath.Join(dir, "secrets.json")}

	if err := setKey(src, secrets, "nope", "1"); err == nil {
		t.Error("unknown key accepted")
	}
	if err := setKey(src, secrets, "server.port", "abc"); err == nil {
		t.Error("non-integer port accepted")
	}
	if err := setKey(src, secrets, "storage.backend", "redis"); err == nil {
		t.Error("unknown storage backend accepted")
	}
}

func TestEnsureAPIToken_GeneratesOnce(t *testing.T) {
	secrets := fileSecrets{path: filepath.Join(t.TempDir(), "secrets.json")}

	first, err := ensureAPIToken(secrets)
	if err != nil {
		t.Fatalf("ensureAPIToken: %v", err)
	}
	if len(first) != 32 {
		t.Errorf("token %q has length %d, want 32", first, len(first))
	}
	second, err := ensureAPIToken(secrets)
	if err != nil {
		t.Fatalf("ensureAPIToken: %v", err)
	}
	if first != second {
		t.Errorf("token regenerated: %q != %q", first, second)
	}

	info, err := os.Stat(secrets.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestEnsureAPIToken_ConfiguredWins(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "preset"
	tok, err := EnsureAPIToken(cfg)
	if err != nil || tok != "preset" {
		t.Errorf("EnsureAPIToken = %q, %v", tok, err)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Backend.APIToken = "hidden"
	for _, ki := range ShowAll(cfg) {
		if ki.Value == "hidden" || strings.HasSuffix(ki.Key, "api_token") {
			t.Errorf("secret shown: %+v", ki)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys() = %v", ValidKeys())
	}
}
