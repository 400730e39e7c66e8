package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"

	"github.com/ege-ayan/discloned/internal/model"
)

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func newTestServer(t *testing.T, cfg Config, opts ...RouterOption) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	server := httptest.NewServer(NewRouter(hub, nil, opts...))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func dialPeer(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return env
}

func TestHub_PublishFansOutInOrder(t *testing.T) {
	hub, server := newTestServer(t, DefaultConfig())

	a := dialPeer(t, server, DefaultConfig().Path)
	b := dialPeer(t, server, DefaultConfig().Path)
	waitFor(t, time.Second, "two peers", func() bool { return hub.Stats().Peers == 2 })

	const n = 50
	event := model.ChatMessagesKey("c1")
	for i := 0; i < n; i++ {
		env, err := model.NewEnvelope(event, map[string]int{"seq": i})
		if err != nil {
			t.Fatalf("NewEnvelope failed: %v", err)
		}
		if err := hub.Publish(env); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	for _, conn := range []*websocket.Conn{a, b} {
		for i := 0; i < n; i++ {
			env := readEnvelope(t, conn)
			if env.Event != event {
				t.Fatalf("event = %q, want %q", env.Event, event)
			}
			var payload map[string]int
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if payload["seq"] != i {
				t.Fatalf("seq = %d, want %d", payload["seq"], i)
			}
		}
	}

	stats := hub.Stats()
	if stats.Published != n {
		t.Errorf("Published = %d, want %d", stats.Published, n)
	}
	if stats.Delivered != 2*n {
		t.Errorf("Delivered = %d, want %d", stats.Delivered, 2*n)
	}
	if stats.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", stats.Accepted)
	}
}

func TestHub_PublishRejectsInvalidEnvelope(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil)
	defer hub.Close()

	if err := hub.Publish(model.Envelope{}); !errors.Is(err, model.ErrMissingEvent) {
		t.Errorf("empty event: err = %v, want ErrMissingEvent", err)
	}
	if err := hub.Publish(model.Envelope{Event: model.EventConnect}); !errors.Is(err, model.ErrReservedEvent) {
		t.Errorf("reserved event: err = %v, want ErrReservedEvent", err)
	}
}

func TestHub_PublishWithoutPeers(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil)
	defer hub.Close()

	if err := hub.Publish(model.Envelope{Event: "evt"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := hub.Stats().Delivered; got != 0 {
		t.Errorf("Delivered = %d, want 0", got)
	}
}

func TestHub_PeerDisconnectUnregisters(t *testing.T) {
	hub, server := newTestServer(t, DefaultConfig())

	conn := dialPeer(t, server, DefaultConfig().Path)
	waitFor(t, time.Second, "peer", func() bool { return hub.Stats().Peers == 1 })

	conn.Close()
	waitFor(t, time.Second, "peer removed", func() bool { return hub.Stats().Peers == 0 })

	if err := hub.Publish(model.Envelope{Event: "evt"}); err != nil {
		t.Errorf("Publish after disconnect failed: %v", err)
	}
}

func TestHub_OversizedFrameDisconnects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 16
	hub, server := newTestServer(t, cfg)

	conn := dialPeer(t, server, cfg.Path)
	waitFor(t, time.Second, "peer", func() bool { return hub.Stats().Peers == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, time.Second, "peer removed", func() bool { return hub.Stats().Peers == 0 })
}

func TestHub_DropsSlowPeer(t *testing.T) {
	hub := NewHub(DefaultConfig(), slog.Default())
	defer hub.Close()

	p := &peer{
		id:     "slow",
		send:   make(chan []byte, 1),
		cancel: func() {},
		logger: slog.Default(),
	}
	hub.peers[p.id] = p

	msgs := make(chan *message.Message, 3)
	var sent []*message.Message
	for i := 0; i < 3; i++ {
		msg := message.NewMessage(watermill.NewUUID(), []byte(`{"event":"evt"}`))
		sent = append(sent, msg)
		msgs <- msg
	}
	close(msgs)

	hub.wg.Add(1)
	hub.forward(p, msgs)

	stats := hub.Stats()
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Peers != 0 {
		t.Errorf("Peers = %d, want 0", stats.Peers)
	}

	for i, msg := range sent {
		select {
		case <-msg.Acked():
		default:
			t.Errorf("message %d was not acked", i)
		}
	}

	<-p.send
	if _, ok := <-p.send; ok {
		t.Error("send queue should be closed")
	}
}

func TestHub_Close(t *testing.T) {
	hub, server := newTestServer(t, DefaultConfig())

	conn := dialPeer(t, server, DefaultConfig().Path)
	waitFor(t, time.Second, "peer", func() bool { return hub.Stats().Peers == 1 })

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := hub.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read error = %v, want normal closure", err)
	}

	if err := hub.Publish(model.Envelope{Event: "evt"}); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Publish after Close = %v, want ErrHubClosed", err)
	}
	if got := hub.Stats().Peers; got != 0 {
		t.Errorf("Peers = %d, want 0", got)
	}
}
