package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ege-ayan/discloned/internal/model"
)

// topic carries every envelope; each peer holds one subscription to it.
const topic = "socket.events"

// Hub fans envelopes out to every connected peer.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	pubsub   *gochannel.GoChannel
	origins  *originPolicy
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
	wg     sync.WaitGroup

	accepted  atomic.Int64
	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a Hub. Zero fields in cfg take DefaultConfig values.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	h := &Hub{
		cfg:    cfg,
		logger: logger,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: int64(cfg.PeerBufferSize),
				Persistent:          false,
				// A publish returns once every peer has queued the envelope,
				// which keeps successive publishes in order per peer.
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		origins: newOriginPolicy(cfg.AllowedOrigins, cfg.AllowEmptyOrigin, logger),
		peers:   make(map[string]*peer),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}

	return h
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PeerBufferSize <= 0 {
		cfg.PeerBufferSize = def.PeerBufferSize
	}
	return cfg
}

// ServeWS upgrades the request and registers the connection as a peer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the error response.
		h.logger.Debug("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	if err := h.register(conn, r.RemoteAddr); err != nil {
		h.logger.Warn("failed to register peer", "addr", r.RemoteAddr, "error", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""))
		conn.Close()
	}
}

func (h *Hub) register(conn *websocket.Conn, addr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := h.pubsub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe peer: %w", err)
	}

	id := uuid.NewString()
	p := &peer{
		id:     id,
		addr:   addr,
		conn:   conn,
		send:   make(chan []byte, h.cfg.PeerBufferSize),
		cancel: cancel,
		cfg:    h.cfg,
		logger: h.logger.With("peer_id", id, "addr", addr),
	}
	h.peers[id] = p
	h.accepted.Add(1)

	h.wg.Add(3)
	go h.forward(p, msgs)
	go p.writePump(func() {
		h.remove(p)
		h.wg.Done()
	})
	go p.readPump(func() {
		h.remove(p)
		h.wg.Done()
	})

	h.logger.Info("peer connected", "peer_id", id, "addr", addr, "peers", len(h.peers))
	return nil
}

// forward moves envelopes from the peer's subscription into its send queue.
// Messages are always acked; a peer that cannot keep up is dropped.
func (h *Hub) forward(p *peer, msgs <-chan *message.Message) {
	defer h.wg.Done()
	defer close(p.send)

	dropped := false
	for msg := range msgs {
		if !dropped {
			if p.enqueue(msg.Payload) {
				h.delivered.Add(1)
			} else {
				dropped = true
				h.dropped.Add(1)
				p.logger.Warn("peer send queue full, dropping peer", "buffer", cap(p.send))
				h.remove(p)
			}
		}
		msg.Ack()
	}
}

// remove unregisters p and ends its subscription. Safe to call more than once.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p.id]
	if ok {
		delete(h.peers, p.id)
	}
	remaining := len(h.peers)
	h.mu.Unlock()

	p.cancel()
	if ok {
		h.logger.Info("peer disconnected", "peer_id", p.id, "peers", remaining)
	}
}

// Publish sends env to every connected peer.
func (h *Hub) Publish(env model.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrHubClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := h.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), data)); err != nil {
		return fmt.Errorf("publish %s: %w", env.Event, err)
	}
	h.published.Add(1)

	h.logger.Debug("published event", "event", env.Event, "bytes", len(data))
	return nil
}

// Stats returns current statistics.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	peers := len(h.peers)
	h.mu.Unlock()

	return Stats{
		Peers:     peers,
		Accepted:  h.accepted.Load(),
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close disconnects every peer and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	h.logger.Info("closing relay hub", "peers", len(peers))

	// Ending the subscriptions closes each send queue, and the write pumps
	// answer with a close frame.
	err := h.pubsub.Close()
	for _, p := range peers {
		p.cancel()
	}
	h.wg.Wait()

	return err
}
