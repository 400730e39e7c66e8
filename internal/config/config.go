package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration shared by the relay and the socket client.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Socket   SocketConfig   `yaml:"socket"`
	Media    MediaConfig    `yaml:"media"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps Level to a slog level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerConfig holds relay endpoint settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowEmptyOrigin *bool         `yaml:"allow_empty_origin"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
	EmitKey          string        `yaml:"emit_key"` // Bearer key for POST /api/socket/emit
	PingInterval     time.Duration `yaml:"ping_interval"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PeerBufferSize   int           `yaml:"peer_buffer_size"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// SocketConfig holds client-side socket settings.
type SocketConfig struct {
	SiteURL      string          `yaml:"site_url"`
	Path         string          `yaml:"path"`
	AuthToken    string          `yaml:"auth_token"` // Sent as a bearer header on the handshake
	Reconnect    ReconnectConfig `yaml:"reconnect"`
	PingInterval time.Duration   `yaml:"ping_interval"`
	PingTimeout  time.Duration   `yaml:"ping_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	BufferSize   int             `yaml:"buffer_size"`
}

// ReconnectConfig bounds reconnection. Enabled defaults to true when omitted.
type ReconnectConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// IsEnabled reports whether reconnection is on.
func (r ReconnectConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// MediaConfig holds media token service settings.
type MediaConfig struct {
	TokenURL string        `yaml:"token_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the persistence connection. The relay listens for
// notifications only when a host is configured.
type DatabaseConfig struct {
	Postgres      DBConfig `yaml:"postgres"`
	NotifyChannel string   `yaml:"notify_channel"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Postgres.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}
