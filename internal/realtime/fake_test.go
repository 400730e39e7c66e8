package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDialRefused = errors.New("dial refused")

// fakeClient is an in-memory Client driven by the test.
type fakeClient struct {
	connectErr error

	messages chan TimestampedMessage
	errors   chan error

	mu        sync.Mutex
	sent      [][]byte
	connected bool
	closed    bool
}

func newFakeClient(connectErr error) *fakeClient {
	return &fakeClient{
		connectErr: connectErr,
		messages:   make(chan TimestampedMessage, 1000),
		errors:     make(chan error, 1),
	}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.closed = true
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *fakeClient) Errors() <-chan error                { return c.errors }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// push delivers a frame as if read from the wire.
func (c *fakeClient) push(t *testing.T, event string, data any) {
	t.Helper()
	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.messages <- TimestampedMessage{Data: raw, ReceivedAt: time.Now()}
}

func (c *fakeClient) pushRaw(raw string) {
	c.messages <- TimestampedMessage{Data: []byte(raw), ReceivedAt: time.Now()}
}

// drop simulates a network loss.
func (c *fakeClient) drop(err error) {
	c.errors <- err
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeTransport hands out fakeClients, failing the first failFirst dials
// (or all of them when failAll is set).
type fakeTransport struct {
	mu        sync.Mutex
	failFirst int
	failAll   bool
	clients   []*fakeClient
}

func (f *fakeTransport) factory() Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.failAll || len(f.clients) < f.failFirst {
		err = errDialRefused
	}
	c := newFakeClient(err)
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeTransport) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// last returns the most recent client.
func (f *fakeTransport) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *fakeTransport) setFailAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = v
}

// recorder collects status events and messages.
type recorder struct {
	mu       sync.Mutex
	statuses []StatusEvent
	messages []Message
}

func (r *recorder) onStatus(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *recorder) onMessage(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) statusEvents() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusEvent, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func (r *recorder) count(connected bool) int {
	n := 0
	for _, ev := range r.statusEvents() {
		if ev.Connected == connected {
			n++
		}
	}
	return n
}

func (r *recorder) received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func testPolicy(attempts int) ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     true,
		MaxAttempts: attempts,
		Delay:       5 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
