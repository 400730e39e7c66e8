package metrics

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ege-ayan/discloned/internal/database"
	"github.com/ege-ayan/discloned/internal/realtime"
	"github.com/ege-ayan/discloned/internal/relay"
)

const namespace = "discloned"

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RegisterSocket exposes a socket manager's statistics.
func RegisterSocket(reg prometheus.Registerer, stats func() realtime.Stats) error {
	return register(reg,
		gauge("socket", "connected", "1 while the socket is connected.", func() float64 {
			if stats().Status == realtime.StatusConnected {
				return 1
			}
			return 0
		}),
		counter("socket", "dial_attempts_total", "Connection attempts since start.", func() float64 {
			return float64(stats().Attempts)
		}),
		counter("socket", "reconnects_total", "Successful connects after the first.", func() float64 {
			return float64(stats().Reconnects)
		}),
		counter("socket", "events_received_total", "Named events dispatched to listeners.", func() float64 {
			return float64(stats().EventsReceived)
		}),
		gauge("socket", "bindings", "Listeners bound on the socket.", func() float64 {
			return float64(stats().Bindings)
		}),
		gauge("socket", "subscribers", "Live manager subscriptions.", func() float64 {
			return float64(stats().Subscribers)
		}),
	)
}

// RegisterRelay exposes a relay hub's statistics.
func RegisterRelay(reg prometheus.Registerer, stats func() relay.Stats) error {
	return register(reg,
		gauge("relay", "peers", "Connected peers.", func() float64 {
			return float64(stats().Peers)
		}),
		counter("relay", "peers_accepted_total", "Peers accepted since start.", func() float64 {
			return float64(stats().Accepted)
		}),
		counter("relay", "published_total", "Envelopes published.", func() float64 {
			return float64(stats().Published)
		}),
		counter("relay", "delivered_total", "Envelopes queued to a peer.", func() float64 {
			return float64(stats().Delivered)
		}),
		counter("relay", "peers_dropped_total", "Peers dropped for a full send queue.", func() float64 {
			return float64(stats().Dropped)
		}),
	)
}

// RegisterListener exposes a notification listener's statistics.
func RegisterListener(reg prometheus.Registerer, stats func() database.ListenerStats) error {
	return register(reg,
		gauge("notify", "listening", "1 while a LISTEN session is active.", func() float64 {
			if stats().Listening {
				return 1
			}
			return 0
		}),
		counter("notify", "received_total", "Notifications received.", func() float64 {
			return float64(stats().Received)
		}),
		counter("notify", "published_total", "Notifications published to the relay.", func() float64 {
			return float64(stats().Published)
		}),
		counter("notify", "dropped_total", "Malformed or rejected notifications.", func() float64 {
			return float64(stats().Dropped)
		}),
		counter("notify", "reconnects_total", "LISTEN sessions re-established.", func() float64 {
			return float64(stats().Reconnects)
		}),
	)
}

// RegisterPool exposes connection pool statistics.
func RegisterPool(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	return register(reg,
		gauge("db_pool", "total_conns", "Connections in the pool.", func() float64 {
			return float64(pool.Stat().TotalConns())
		}),
		gauge("db_pool", "acquired_conns", "Connections currently in use.", func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		gauge("db_pool", "idle_conns", "Idle connections.", func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
		counter("db_pool", "acquires_total", "Successful acquires since start.", func() float64 {
			return float64(pool.Stat().AcquireCount())
		}),
	)
}

func gauge(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func counter(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
