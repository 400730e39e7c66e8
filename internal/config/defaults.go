package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel          = "info"
	DefaultServerAddr        = ":3000"
	DefaultMaxMessageSize    = 64 * 1024
	DefaultServerPing        = 25 * time.Second
	DefaultServerWrite       = 10 * time.Second
	DefaultPeerBufferSize    = 256
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultSiteURL           = "http://localhost:3000"
	DefaultSocketPath        = "/api/socket/io"
	DefaultMaxAttempts       = 5
	DefaultReconnectDelay    = 1 * time.Second
	DefaultSocketPing        = 25 * time.Second
	DefaultSocketPingTimeout = 60 * time.Second
	DefaultSocketWrite       = 5 * time.Second
	DefaultSocketBufferSize  = 256
	DefaultMediaTimeout      = 10 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultNotifyChannel     = "socket_events"
	DefaultMetricsPath       = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.AllowEmptyOrigin == nil {
		allow := true
		c.Server.AllowEmptyOrigin = &allow
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultServerPing
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWrite
	}
	if c.Server.PeerBufferSize == 0 {
		c.Server.PeerBufferSize = DefaultPeerBufferSize
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Socket defaults
	if c.Socket.SiteURL == "" {
		c.Socket.SiteURL = DefaultSiteURL
	}
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.Reconnect.MaxAttempts == 0 {
		c.Socket.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Socket.Reconnect.Delay == 0 {
		c.Socket.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Socket.PingInterval == 0 {
		c.Socket.PingInterval = DefaultSocketPing
	}
	if c.Socket.PingTimeout == 0 {
		c.Socket.PingTimeout = DefaultSocketPingTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultSocketWrite
	}
	if c.Socket.BufferSize == 0 {
		c.Socket.BufferSize = DefaultSocketBufferSize
	}

	// Media defaults
	if c.Media.Timeout == 0 {
		c.Media.Timeout = DefaultMediaTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)
	if c.Database.NotifyChannel == "" {
		c.Database.NotifyChannel = DefaultNotifyChannel
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
