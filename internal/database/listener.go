package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ege-ayan/discloned/internal/model"
)

// Publisher receives decoded notifications. relay.Hub implements it.
type Publisher interface {
	Publish(env model.Envelope) error
}

// NotificationSource is one dedicated connection in LISTEN mode.
type NotificationSource interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

// Acquirer hands out a notification source.
type Acquirer func(ctx context.Context) (NotificationSource, error)

// PoolAcquirer listens on connections taken from pool.
func PoolAcquirer(pool *pgxpool.Pool) Acquirer {
	return func(ctx context.Context) (NotificationSource, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return &pooledSource{conn: conn}, nil
	}
}

type pooledSource struct {
	conn *pgxpool.Conn
}

func (s *pooledSource) Listen(ctx context.Context, channel string) error {
	_, err := s.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

func (s *pooledSource) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return s.conn.Conn().WaitForNotification(ctx)
}

// Release drops the connection instead of returning it to the pool so a
// LISTEN never leaks into another caller's session.
func (s *pooledSource) Release() {
	conn := s.conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn.Close(ctx)
}

// ListenerStats is a point-in-time view of a Listener.
type ListenerStats struct {
	Listening  bool
	Received   int64 // Notifications received
	Published  int64 // Envelopes handed to the publisher
	Dropped    int64 // Malformed or rejected notifications
	Reconnects int64 // LISTEN sessions re-established after a failure
}

// Listener forwards database notifications on one channel to a Publisher.
type Listener struct {
	acquire    Acquirer
	channel    string
	pub        Publisher
	logger     *slog.Logger
	newBackOff func() backoff.BackOff

	listening  atomic.Bool
	sessions   atomic.Int64
	received   atomic.Int64
	published  atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewListener creates a Listener. Run starts it.
func NewListener(acquire Acquirer, channel string, pub Publisher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		acquire:    acquire,
		channel:    channel,
		pub:        pub,
		logger:     logger.With("channel", channel),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // Retry until ctx is done
	return b
}

// Run listens until ctx is done, re-establishing the session after
// connection loss. It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.WithContext(l.newBackOff(), ctx)

	for {
		established, err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("listen %s: %w", l.channel, err)
		}

		l.logger.Warn("notification listener lost connection",
			"error", err,
			"retry_in", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one LISTEN session. established reports whether LISTEN succeeded.
func (l *Listener) session(ctx context.Context) (established bool, err error) {
	src, err := l.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer src.Release()

	if err := src.Listen(ctx, l.channel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	if l.sessions.Add(1) > 1 {
		l.reconnects.Add(1)
	}
	l.listening.Store(true)
	defer l.listening.Store(false)
	l.logger.Info("listening for notifications")

	for {
		n, err := src.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		l.handle(n)
	}
}

func (l *Listener) handle(n *pgconn.Notification) {
	l.received.Add(1)

	env, err := model.DecodeEnvelope([]byte(n.Payload))
	if err != nil {
		l.dropped.Add(1)
		l.logger.Warn("dropping malformed notification", "pid", n.PID, "error", err)
		return
	}

	if err := l.pub.Publish(env); err != nil {
		l.dropped.Add(1)
		l.logger.Error("failed to publish notification", "event", env.Event, "error", err)
		return
	}
	l.published.Add(1)
}

// Stats returns current statistics.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Listening:  l.listening.Load(),
		Received:   l.received.Load(),
		Published:  l.published.Load(),
		Dropped:    l.dropped.Load(),
		Reconnects: l.reconnects.Load(),
	}
}
