package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no ping)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrAlreadyConfigured  = errors.New("shared manager already configured")
)

// DefaultPath is the relay endpoint path on the application's origin.
const DefaultPath = "/api/socket/io"

// Status is the liveness of a Socket.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return "unknown"
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Message is what a listener receives.
type Message struct {
	Event      string
	Data       json.RawMessage // Nil for connect/disconnect
	ReceivedAt time.Time
	Err        error // Cause of a disconnect, nil otherwise
}

// Handler consumes messages for one event name.
type Handler func(Message)

// StatusEvent is delivered to status subscribers on every
// connected/disconnected transition.
type StatusEvent struct {
	Connected bool
	Err       error // Cause of the disconnect, nil on connect
}

// StatusFunc consumes status transitions.
type StatusFunc func(StatusEvent)

// ReconnectPolicy bounds automatic reconnection.
type ReconnectPolicy struct {
	Enabled     bool          // False = a single attempt, no retries
	MaxAttempts int           // Retries after a failed or lost connection
	Delay       time.Duration // Fixed wait before each retry
}

// DefaultReconnectPolicy returns 5 attempts one second apart.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     true,
		MaxAttempts: 5,
		Delay:       time.Second,
	}
}

// backOff builds the retry schedule for one connection cycle.
// NextBackOff returns backoff.Stop once MaxAttempts retries are spent.
func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	if !p.Enabled || p.MaxAttempts <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts))
	return backoff.WithContext(b, ctx)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://chat.example.com/api/socket/io)
	Header       http.Header   // Extra handshake headers (auth)
	PingInterval time.Duration // How often to send keepalive pings
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 25 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ManagerConfig configures the Manager and the Socket it owns.
type ManagerConfig struct {
	SiteURL   string          // Application origin (e.g., https://chat.example.com)
	Path      string          // Relay endpoint path, DefaultPath when empty
	Reconnect ReconnectPolicy // Retry bound and delay
	Client    ClientConfig    // Per-connection settings; URL is derived from SiteURL and Path
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SiteURL:   "http://localhost:3000",
		Path:      DefaultPath,
		Reconnect: DefaultReconnectPolicy(),
		Client:    DefaultClientConfig(),
	}
}

// Stats is a point-in-time view of a Manager and its Socket.
type Stats struct {
	Status         Status
	Attempts       int64 // Dial attempts since creation
	Reconnects     int64 // Successful connects after the first one
	EventsReceived int64 // Named events dispatched
	Bindings       int   // Listeners bound on the socket
	Subscribers    int   // Live manager subscriptions
}
