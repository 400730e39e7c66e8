package realtime

import "sync"

// Scope groups the bindings of one subscriber, typically a mounted view.
// Binding the same event twice in a Scope replaces the earlier binding, so a
// subscriber that re-registers on every render still receives each event once.
// Release the Scope on teardown.
type Scope struct {
	m *Manager

	mu       sync.Mutex
	status   *Subscription
	events   map[string]*Subscription
	released bool
}

// Scope starts a new subscriber scope.
func (m *Manager) Scope() *Scope {
	return &Scope{
		m:      m,
		events: make(map[string]*Subscription),
	}
}

// OnStatus binds fn to status transitions, replacing any earlier status
// binding of this scope. It is a no-op after Release.
func (s *Scope) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	if s.status != nil {
		s.m.Unsubscribe(s.status)
		s.status = nil
	}
	s.status = s.m.Subscribe(fn)
}

// On binds h to event, replacing any earlier binding of this scope for the
// same event. It is a no-op after Release.
func (s *Scope) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	if prev, ok := s.events[event]; ok {
		s.m.Unsubscribe(prev)
		delete(s.events, event)
	}
	if sub := s.m.On(event, h); sub != nil {
		s.events[event] = sub
	}
}

// Off releases this scope's binding for event, if any.
func (s *Scope) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.events[event]; ok {
		s.m.Unsubscribe(sub)
		delete(s.events, event)
	}
}

// Release drops every binding of the scope. Safe to call more than once.
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	s.m.Unsubscribe(s.status)
	s.status = nil
	for event, sub := range s.events {
		s.m.Unsubscribe(sub)
		delete(s.events, event)
	}
}
