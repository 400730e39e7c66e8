package realtime

import (
	"log/slog"
	"sync"
)

// The process-wide manager. Only the functions in this file touch it.
var shared struct {
	mu sync.Mutex
	m  *Manager
}

// Configure sets up the process-wide manager. It must run before the first
// Default, Acquire or Subscribe; afterwards it returns ErrAlreadyConfigured.
func Configure(cfg ManagerConfig, logger *slog.Logger, opts ...Option) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.m != nil {
		return ErrAlreadyConfigured
	}
	shared.m = NewManager(cfg, logger, opts...)
	return nil
}

// Default returns the process-wide manager, creating it with
// DefaultManagerConfig when Configure was never called.
func Default() *Manager {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.m == nil {
		shared.m = NewManager(DefaultManagerConfig(), nil)
	}
	return shared.m
}

// Acquire returns the process-wide Socket.
func Acquire() *Socket {
	return Default().Acquire()
}

// Subscribe registers fn with the process-wide manager.
func Subscribe(fn StatusFunc) *Subscription {
	return Default().Subscribe(fn)
}

// On registers h for event with the process-wide manager.
func On(event string, h Handler) *Subscription {
	return Default().On(event, h)
}

// Unsubscribe releases sub from the process-wide manager.
func Unsubscribe(sub *Subscription) {
	Default().Unsubscribe(sub)
}
