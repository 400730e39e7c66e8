package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is one connected socket. The hub's forwarder is the only writer to
// send and closes it when the peer's subscription ends.
type peer struct {
	id     string
	addr   string
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	cfg    Config
	logger *slog.Logger

	closeOnce sync.Once
}

// enqueue queues data without blocking. It reports false when the queue is full.
func (p *peer) enqueue(data []byte) bool {
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// readPump keeps the read side alive for control frames. Clients only
// listen, so data frames are discarded.
func (p *peer) readPump(onDone func()) {
	defer func() {
		onDone()
		p.closeConn()
	}()

	p.conn.SetReadLimit(p.cfg.MaxMessageSize)
	if err := p.conn.SetReadDeadline(time.Now().Add(p.cfg.pongWait())); err != nil {
		p.logger.Debug("failed to set read deadline", "error", err)
	}
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.cfg.pongWait()))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.logReadError(err)
			return
		}
		p.logger.Debug("discarding inbound frame", "bytes", len(data))
	}
}

func (p *peer) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		p.logger.Warn("inbound frame exceeded maximum size", "max_bytes", p.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		p.logger.Debug("peer disconnected", "error", err)
	case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
		p.logger.Debug("peer connection closed", "error", err)
	default:
		p.logger.Warn("peer read error", "error", err)
	}
}

// writePump writes queued envelopes, one per frame, and pings on a ticker.
// It sends a close frame once send is closed.
func (p *peer) writePump(onDone func()) {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		onDone()
		p.closeConn()
	}()

	for {
		select {
		case data, ok := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
				return
			}
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.logger.Debug("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

func (p *peer) closeConn() {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			p.logger.Debug("failed to close connection", "error", err)
		}
	})
}
