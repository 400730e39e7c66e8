package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":8080"
  allowed_origins:
    - https://chat.example.com
socket:
  site_url: https://chat.example.com
  reconnect:
    enabled: false
    max_attempts: 3
    delay: 2s
database:
  postgres:
    host: localhost
    port: 5432
    name: discord
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://chat.example.com" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Socket.Reconnect.IsEnabled() {
		t.Error("Socket.Reconnect.IsEnabled() = true, want false")
	}
	if cfg.Socket.Reconnect.Delay != 2*time.Second {
		t.Errorf("Socket.Reconnect.Delay = %v, want 2s", cfg.Socket.Reconnect.Delay)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_EMIT_KEY", "emit-key")

	yaml := `
server:
  emit_key: ${TEST_EMIT_KEY}
database:
  postgres:
    host: localhost
    name: discord
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
	if cfg.Server.EmitKey != "emit-key" {
		t.Errorf("Server.EmitKey = %q, want %q", cfg.Server.EmitKey, "emit-key")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "server: [not, a, map")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "log:\n  level: debug\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, DefaultServerAddr)
	}
	if cfg.Server.AllowEmptyOrigin == nil || !*cfg.Server.AllowEmptyOrigin {
		t.Error("Server.AllowEmptyOrigin should default to true")
	}
	if cfg.Socket.SiteURL != DefaultSiteURL {
		t.Errorf("Socket.SiteURL = %q, want default %q", cfg.Socket.SiteURL, DefaultSiteURL)
	}
	if !cfg.Socket.Reconnect.IsEnabled() {
		t.Error("Socket.Reconnect should default to enabled")
	}
	if cfg.Socket.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Socket.Reconnect.MaxAttempts = %d, want default %d", cfg.Socket.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Socket.Reconnect.Delay != DefaultReconnectDelay {
		t.Errorf("Socket.Reconnect.Delay = %v, want default %v", cfg.Socket.Reconnect.Delay, DefaultReconnectDelay)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.NotifyChannel != DefaultNotifyChannel {
		t.Errorf("Database.NotifyChannel = %q, want default %q", cfg.Database.NotifyChannel, DefaultNotifyChannel)
	}
	if cfg.Database.Enabled() {
		t.Error("Database.Enabled() = true without a host")
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "missing site url",
			mutate:  func(c *Config) { c.Socket.SiteURL = "" },
			wantErr: "socket.site_url is required",
		},
		{
			name:    "site url scheme",
			mutate:  func(c *Config) { c.Socket.SiteURL = "ftp://chat.example.com" },
			wantErr: `socket.site_url must be an absolute http/https/ws/wss url, got "ftp://chat.example.com"`,
		},
		{
			name:    "socket path",
			mutate:  func(c *Config) { c.Socket.Path = "api/socket/io" },
			wantErr: `socket.path must start with /, got "api/socket/io"`,
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Socket.Reconnect.MaxAttempts = -1 },
			wantErr: "socket.reconnect.max_attempts must be >= 0",
		},
		{
			name:    "media token url",
			mutate:  func(c *Config) { c.Media.TokenURL = "/api/livekit" },
			wantErr: `media.token_url must be an absolute http/https url, got "/api/livekit"`,
		},
		{
			name: "missing postgres password",
			mutate: func(c *Config) {
				c.Database.Postgres.Host = "localhost"
				c.Database.Postgres.Name = "db"
				c.Database.Postgres.User = "user"
			},
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "bad notify channel",
			mutate: func(c *Config) {
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 1}
				c.Database.NotifyChannel = "socket-events; drop"
			},
			wantErr: `database.notify_channel "socket-events; drop" is not a valid identifier`,
		},
		{
			name:    "metrics path",
			mutate:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: `metrics.path must start with /, got "metrics"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLogConfig_SlogLevel(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		if got := (LogConfig{Level: level}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_SITE_URL", "https://chat.example.com")

	cfg, err := Parse([]byte("socket:\n  site_url: ${TEST_SITE_URL}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Socket.SiteURL != "https://chat.example.com" {
		t.Errorf("Socket.SiteURL = %q, want %q", cfg.Socket.SiteURL, "https://chat.example.com")
	}

	empty, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(empty) failed: %v", err)
	}
	if empty.Server.Addr != "" {
		t.Errorf("Server.Addr = %q, want empty before defaults", empty.Server.Addr)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("socket:\n  reconect:\n    max_attempts: 3\n"))
	if err == nil || !strings.Contains(err.Error(), "reconect") {
		t.Errorf("err = %v, want unknown field error naming reconect", err)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("DISCLONED_EMIT_KEY", "k")
	t.Setenv("DISCLONED_DB_HOST", "localhost")
	t.Setenv("DISCLONED_DB_PASSWORD", "secret")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "relay.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if !cfg.Database.Enabled() {
		t.Error("expected the example database to be enabled")
	}
	if cfg.Socket.Reconnect.MaxAttempts != 5 || cfg.Socket.Reconnect.Delay != time.Second {
		t.Errorf("Socket.Reconnect = %+v", cfg.Socket.Reconnect)
	}
}
