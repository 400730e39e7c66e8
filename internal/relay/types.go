package relay

import (
	"errors"
	"time"

	"github.com/ege-ayan/discloned/internal/realtime"
)

var (
	ErrHubClosed = errors.New("relay hub closed")
)

// EmitPath is the route that publishes an envelope to every peer.
const EmitPath = "/api/socket/emit"

// Config configures the Hub and its routes.
type Config struct {
	Path             string        // WebSocket route
	AllowedOrigins   []string      // Browser origins allowed to connect; "*" allows all
	AllowEmptyOrigin bool          // Accept clients that send no Origin header
	MaxMessageSize   int64         // Read limit per inbound frame
	EmitKey          string        // Bearer key required by the emit route; empty disables the check
	PingInterval     time.Duration // Keepalive ping period
	WriteTimeout     time.Duration // Write deadline per frame
	PeerBufferSize   int           // Outbound queue per peer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:             realtime.DefaultPath,
		AllowedOrigins:   []string{"*"},
		AllowEmptyOrigin: true,
		MaxMessageSize:   64 * 1024,
		PingInterval:     25 * time.Second,
		WriteTimeout:     10 * time.Second,
		PeerBufferSize:   256,
	}
}

// pongWait is how long a peer may stay silent before its read fails.
func (c Config) pongWait() time.Duration {
	return c.PingInterval * 10 / 9
}

// Stats is a point-in-time view of the Hub.
type Stats struct {
	Peers     int   // Connected peers
	Accepted  int64 // Peers accepted since start
	Published int64 // Envelopes published
	Delivered int64 // Envelopes queued to a peer
	Dropped   int64 // Peers dropped for a full queue
}
