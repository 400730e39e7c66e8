package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxMessageSize < 1 {
		return errors.New("server.max_message_size must be >= 1")
	}
	if c.Server.PeerBufferSize < 1 {
		return errors.New("server.peer_buffer_size must be >= 1")
	}
	if c.Server.PingInterval <= 0 {
		return errors.New("server.ping_interval must be > 0")
	}

	if err := validateURL("socket.site_url", c.Socket.SiteURL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Socket.Path, "/") {
		return fmt.Errorf("socket.path must start with /, got %q", c.Socket.Path)
	}
	if c.Socket.Reconnect.MaxAttempts < 0 {
		return errors.New("socket.reconnect.max_attempts must be >= 0")
	}
	if c.Socket.Reconnect.Delay < 0 {
		return errors.New("socket.reconnect.delay must be >= 0")
	}
	if c.Socket.BufferSize < 1 {
		return errors.New("socket.buffer_size must be >= 1")
	}

	if c.Media.TokenURL != "" {
		if err := validateURL("media.token_url", c.Media.TokenURL, "http", "https"); err != nil {
			return err
		}
	}

	if c.Database.Enabled() {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if !validChannel(c.Database.NotifyChannel) {
			return fmt.Errorf("database.notify_channel %q is not a valid identifier", c.Database.NotifyChannel)
		}
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid url: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s url, got %q", field, strings.Join(schemes, "/"), raw)
}

// validChannel accepts unquoted Postgres identifiers.
func validChannel(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
