package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ege-ayan/discloned/internal/model"
)

// Listener is one binding of a Handler to an event name on a Socket.
type Listener struct {
	id     uint64
	event  string
	socket *Socket
}

// Event returns the event name the listener is bound to.
func (l *Listener) Event() string {
	return l.event
}

type listenerEntry struct {
	id uint64
	fn Handler
}

// Socket is the long-lived connection to the relay endpoint. It dials through
// its ClientFactory, retries according to its ReconnectPolicy and dispatches
// inbound events to bound listeners from a single goroutine, in the order the
// transport delivered them.
type Socket struct {
	id      string
	policy  ReconnectPolicy
	factory ClientFactory
	logger  *slog.Logger

	mu        sync.RWMutex
	status    Status
	connected bool // last state announced to listeners
	lastErr   error
	client    Client
	running   bool
	closed    bool
	cancel    context.CancelFunc
	stopped   chan struct{}

	listenersMu sync.RWMutex
	listeners   map[string][]listenerEntry
	nextID      atomic.Uint64

	attempts   atomic.Int64
	reconnects atomic.Int64
	events     atomic.Int64
}

// NewSocket creates a disconnected Socket. Call Open to start connecting.
func NewSocket(policy ReconnectPolicy, factory ClientFactory, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Socket{
		id:        id,
		policy:    policy,
		factory:   factory,
		logger:    logger.With("socket_id", id),
		status:    StatusDisconnected,
		listeners: make(map[string][]listenerEntry),
	}
}

// ID returns the socket's session identifier.
func (s *Socket) ID() string {
	return s.id
}

// Status returns the current connection status.
func (s *Socket) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the cause of the last disconnect, or nil while connected.
// After retries are exhausted it wraps ErrReconnectExhausted.
func (s *Socket) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Open starts the connection loop. It is a no-op while the loop is running
// or after Close. Calling Open after retries were exhausted starts a fresh
// cycle with a full attempt budget.
func (s *Socket) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.closed {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.stopped = make(chan struct{})
	s.lastErr = nil

	go s.run(ctx, s.stopped)
}

// Close stops the connection loop and closes the live connection.
// It must not be called from a listener.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}

	s.logger.Debug("socket closed")
	return nil
}

// Emit sends a named event to the relay.
func (s *Socket) Emit(event string, payload any) error {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	s.mu.RLock()
	c := s.client
	connected := s.status == StatusConnected
	s.mu.RUnlock()

	if c == nil || !connected {
		return ErrNotConnected
	}
	return c.Send(data)
}

// On binds h to event. A nil handler binds nothing and returns nil.
func (s *Socket) On(event string, h Handler) *Listener {
	if h == nil {
		return nil
	}

	l := &Listener{id: s.nextID.Add(1), event: event, socket: s}

	s.listenersMu.Lock()
	s.listeners[event] = append(s.listeners[event], listenerEntry{id: l.id, fn: h})
	s.listenersMu.Unlock()

	return l
}

// Off removes the binding created by On. Nil, foreign and already removed
// listeners are ignored.
func (s *Socket) Off(l *Listener) {
	if l == nil || l.socket != s {
		return
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	entries := s.listeners[l.event]
	for i, entry := range entries {
		if entry.id == l.id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(s.listeners, l.event)
		return
	}
	s.listeners[l.event] = entries
}

// HasListeners reports whether anything is bound to event.
func (s *Socket) HasListeners(event string) bool {
	return s.ListenerCount(event) > 0
}

// ListenerCount returns the number of bindings for event.
func (s *Socket) ListenerCount(event string) int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners[event])
}

// bindings returns the total number of bindings across all events.
func (s *Socket) bindings() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	n := 0
	for _, entries := range s.listeners {
		n += len(entries)
	}
	return n
}

// run is the connection loop. It owns every status transition.
func (s *Socket) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	b := s.policy.backOff(ctx)
	established := false

	for {
		s.transition(StatusConnecting, nil)

		c := s.factory()
		attempt := s.attempts.Add(1)
		err := c.Connect(ctx)

		if err == nil {
			b.Reset()
			if established {
				s.reconnects.Add(1)
			}
			established = true

			s.mu.Lock()
			s.client = c
			s.mu.Unlock()

			s.logger.Info("socket connected", "attempt", attempt)
			s.transition(StatusConnected, nil)

			err = s.serve(ctx, c)

			s.mu.Lock()
			s.client = nil
			s.mu.Unlock()
		}
		c.Close()

		if ctx.Err() != nil {
			s.transition(StatusDisconnected, nil)
			return
		}

		s.logger.Warn("socket disconnected", "attempt", attempt, "error", err)
		s.transition(StatusDisconnected, err)

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			exhausted := fmt.Errorf("%w: %w", ErrReconnectExhausted, err)
			s.mu.Lock()
			s.lastErr = exhausted
			s.mu.Unlock()
			s.logger.Error("giving up on socket connection",
				"attempts", s.attempts.Load(),
				"error", err,
			)
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve pumps inbound frames until the client fails or ctx is done.
func (s *Socket) serve(ctx context.Context, c Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-c.Errors():
			s.drain(c)
			return err

		case msg, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}
			s.handleFrame(msg)
		}
	}
}

// drain delivers frames that were read before the client failed.
func (s *Socket) drain(c Client) {
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			s.handleFrame(msg)
		default:
			return
		}
	}
}

func (s *Socket) handleFrame(msg TimestampedMessage) {
	env, err := model.DecodeEnvelope(msg.Data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err, "size", len(msg.Data))
		return
	}

	s.events.Add(1)
	s.dispatch(Message{
		Event:      env.Event,
		Data:       env.Data,
		ReceivedAt: msg.ReceivedAt,
	})
}

// transition records the new status and announces connected/disconnected
// changes. Repeated failures while already disconnected announce nothing.
func (s *Socket) transition(next Status, cause error) {
	s.mu.Lock()
	s.status = next
	announce := ""
	switch {
	case next == StatusConnected && !s.connected:
		s.connected = true
		s.lastErr = nil
		announce = model.EventConnect
	case next == StatusDisconnected && s.connected:
		s.connected = false
		announce = model.EventDisconnect
	}
	if next == StatusDisconnected && cause != nil {
		s.lastErr = cause
	}
	s.mu.Unlock()

	if announce != "" {
		s.dispatch(Message{Event: announce, ReceivedAt: time.Now(), Err: cause})
	}
}

func (s *Socket) dispatch(msg Message) {
	s.listenersMu.RLock()
	entries := s.listeners[msg.Event]
	handlers := make([]Handler, len(entries))
	for i, entry := range entries {
		handlers[i] = entry.fn
	}
	s.listenersMu.RUnlock()

	for _, h := range handlers {
		s.invoke(h, msg)
	}
}

// invoke keeps a panicking handler from taking the connection loop down.
func (s *Socket) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", "event", msg.Event, "panic", r)
		}
	}()
	h(msg)
}
