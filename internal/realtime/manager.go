package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ege-ayan/discloned/internal/model"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory replaces the gorilla/websocket client, for tests and
// alternative transports.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// Subscription is a manager binding created by Subscribe or On.
// Close it when the subscriber goes away.
type Subscription struct {
	id     uint64
	event  string // Empty for status subscriptions
	status bool
	m      *Manager
	stop   func() bool // Detaches the context watcher, if any
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.m == nil {
		return
	}
	s.m.Unsubscribe(s)
}

type statusEntry struct {
	id uint64
	fn StatusFunc
}

type eventEntry struct {
	id uint64
	fn Handler
}

// Manager hands every caller the same lazily created Socket and keeps the
// socket's listener table free of duplicates: one socket binding per event
// name, fanned out to any number of subscribers.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	factory ClientFactory

	mu       sync.Mutex
	socket   *Socket
	opened   bool
	status   []statusEntry
	events   map[string][]eventEntry
	bindings map[string]*Listener
	nextID   uint64
}

// NewManager creates a Manager. No connection is made until the first
// Acquire, Subscribe or On.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		events:   make(map[string][]eventEntry),
		bindings: make(map[string]*Listener),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.factory == nil {
		clientCfg := cfg.Client
		endpoint, err := Endpoint(cfg.SiteURL, cfg.Path)
		if err != nil {
			// The dial fails and surfaces as a disconnected status.
			logger.Error("invalid relay endpoint", "site_url", cfg.SiteURL, "path", cfg.Path, "error", err)
			endpoint = cfg.SiteURL
		}
		clientCfg.URL = endpoint
		m.cfg.Client = clientCfg
		m.factory = func() Client {
			return NewClient(clientCfg, logger.With("url", clientCfg.URL))
		}
	}

	return m
}

// Acquire returns the manager's Socket, creating it and starting the first
// connection attempt on the first call.
func (m *Manager) Acquire() *Socket {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.socketLocked()
	m.openLocked()
	return s
}

// Subscribe registers fn for connected/disconnected transitions.
func (m *Manager) Subscribe(fn StatusFunc) *Subscription {
	if fn == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.socketLocked()
	m.nextID++
	sub := &Subscription{id: m.nextID, status: true, m: m}
	m.status = append(m.status, statusEntry{id: sub.id, fn: fn})
	m.syncBindingLocked(model.EventConnect)
	m.syncBindingLocked(model.EventDisconnect)
	m.openLocked()

	return sub
}

// SubscribeContext is Subscribe scoped to ctx: the subscription is released
// when ctx is done.
func (m *Manager) SubscribeContext(ctx context.Context, fn StatusFunc) *Subscription {
	sub := m.Subscribe(fn)
	if sub == nil {
		return nil
	}
	m.watch(ctx, sub)
	return sub
}

// On registers h for the named event.
func (m *Manager) On(event string, h Handler) *Subscription {
	if h == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.socketLocked()
	m.nextID++
	sub := &Subscription{id: m.nextID, event: event, m: m}
	m.events[event] = append(m.events[event], eventEntry{id: sub.id, fn: h})
	m.syncBindingLocked(event)
	m.openLocked()

	return sub
}

// OnContext is On scoped to ctx.
func (m *Manager) OnContext(ctx context.Context, event string, h Handler) *Subscription {
	sub := m.On(event, h)
	if sub == nil {
		return nil
	}
	m.watch(ctx, sub)
	return sub
}

// Unsubscribe removes exactly the binding behind sub. Nil, foreign and
// already released subscriptions are ignored. The Socket stays open.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if m == nil || sub == nil || sub.m != m {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.stop != nil {
		sub.stop()
	}

	if sub.status {
		for i, entry := range m.status {
			if entry.id == sub.id {
				m.status = append(m.status[:i], m.status[i+1:]...)
				m.syncBindingLocked(model.EventConnect)
				m.syncBindingLocked(model.EventDisconnect)
				return
			}
		}
		return
	}

	entries := m.events[sub.event]
	for i, entry := range entries {
		if entry.id == sub.id {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(m.events, sub.event)
			} else {
				m.events[sub.event] = entries
			}
			m.syncBindingLocked(sub.event)
			return
		}
	}
}

// IsConnected reports whether the socket is currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	s := m.socket
	m.mu.Unlock()

	return s != nil && s.Status() == StatusConnected
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := m.socket
	subs := len(m.status)
	for _, entries := range m.events {
		subs += len(entries)
	}
	m.mu.Unlock()

	stats := Stats{Status: StatusDisconnected, Subscribers: subs}
	if s != nil {
		stats.Status = s.Status()
		stats.Attempts = s.attempts.Load()
		stats.Reconnects = s.reconnects.Load()
		stats.EventsReceived = s.events.Load()
		stats.Bindings = s.bindings()
	}
	return stats
}

// Shutdown closes the socket. It is meant for process exit; subscribers
// never call it.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	s := m.socket
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	m.logger.Info("shutting down socket manager")

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("socket shutdown timed out")
		return ctx.Err()
	}
}

func (m *Manager) watch(ctx context.Context, sub *Subscription) {
	stop := context.AfterFunc(ctx, func() {
		m.Unsubscribe(sub)
	})

	m.mu.Lock()
	sub.stop = stop
	m.mu.Unlock()
}

// socketLocked creates the socket on first use without dialing.
func (m *Manager) socketLocked() *Socket {
	if m.socket == nil {
		m.logger.Info("creating socket connection",
			"url", m.cfg.Client.URL,
			"max_attempts", m.cfg.Reconnect.MaxAttempts,
			"delay", m.cfg.Reconnect.Delay,
		)
		m.socket = NewSocket(m.cfg.Reconnect, m.factory, m.logger)
	} else {
		m.logger.Debug("reusing existing socket connection", "socket_id", m.socket.ID())
	}
	return m.socket
}

// openLocked starts the first connection attempt once per socket. Bindings
// are in place before it runs so the first connect is never missed.
func (m *Manager) openLocked() {
	if m.opened {
		return
	}
	m.opened = true
	m.socket.Open()
}

// syncBindingLocked keeps exactly one socket binding for event while the
// manager has subscribers for it, and none otherwise.
func (m *Manager) syncBindingLocked(event string) {
	needed := len(m.events[event]) > 0
	if event == model.EventConnect || event == model.EventDisconnect {
		needed = needed || len(m.status) > 0
	}

	bound := m.bindings[event]
	switch {
	case needed && bound == nil:
		m.bindings[event] = m.socket.On(event, m.fanOut)
	case !needed && bound != nil:
		m.socket.Off(bound)
		delete(m.bindings, event)
	}
}

// fanOut is the single socket handler behind every binding.
func (m *Manager) fanOut(msg Message) {
	m.mu.Lock()
	entries := m.events[msg.Event]
	handlers := make([]Handler, len(entries))
	for i, entry := range entries {
		handlers[i] = entry.fn
	}
	var statusFns []StatusFunc
	if msg.Event == model.EventConnect || msg.Event == model.EventDisconnect {
		statusFns = make([]StatusFunc, len(m.status))
		for i, entry := range m.status {
			statusFns[i] = entry.fn
		}
	}
	m.mu.Unlock()

	if statusFns != nil {
		ev := StatusEvent{Connected: msg.Event == model.EventConnect, Err: msg.Err}
		for _, fn := range statusFns {
			m.invoke(msg.Event, func() { fn(ev) })
		}
	}
	for _, h := range handlers {
		m.invoke(msg.Event, func() { h(msg) })
	}
}

// invoke runs one subscriber callback. A panic is logged and stops only
// that callback, so the remaining subscribers still receive the event.
func (m *Manager) invoke(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber panicked", "event", event, "panic", r)
		}
	}()
	fn()
}
