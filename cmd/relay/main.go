// relay serves the real-time socket endpoint and fans events out to every
// connected client. When a database is configured it also publishes
// database notifications.
// Usage: go run ./cmd/relay --config configs/relay.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ege-ayan/discloned/internal/config"
	"github.com/ege-ayan/discloned/internal/database"
	"github.com/ege-ayan/discloned/internal/metrics"
	"github.com/ege-ayan/discloned/internal/relay"
	"github.com/ege-ayan/discloned/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	hub := relay.NewHub(relayConfig(cfg), logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.RegisterRelay(reg, hub.Stats); err != nil {
		logger.Error("failed to register relay metrics", "error", err)
		os.Exit(1)
	}

	routerOpts := []relay.RouterOption{
		relay.WithMetrics(cfg.Metrics.Path, metrics.Handler(reg)),
	}

	var listener *database.Listener
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("database connected")

		listener = database.NewListener(database.PoolAcquirer(pool), cfg.Database.NotifyChannel, hub, logger)
		if err := errors.Join(
			metrics.RegisterListener(reg, listener.Stats),
			metrics.RegisterPool(reg, pool),
		); err != nil {
			logger.Error("failed to register database metrics", "error", err)
			os.Exit(1)
		}
		routerOpts = append(routerOpts, relay.WithHealthCheck(pool.Ping))
	} else {
		logger.Info("no database configured, notifications disabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           relay.NewRouter(hub, logger, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting relay server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if listener != nil {
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		// Upgraded sockets are hijacked, so the hub closes them separately.
		err := server.Shutdown(shutdownCtx)
		return errors.Join(err, hub.Close())
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}

// relayConfig serves the socket on the same path clients dial.
func relayConfig(cfg *config.Config) relay.Config {
	s := cfg.Server
	return relay.Config{
		Path:             cfg.Socket.Path,
		AllowedOrigins:   s.AllowedOrigins,
		AllowEmptyOrigin: s.AllowEmptyOrigin == nil || *s.AllowEmptyOrigin,
		MaxMessageSize:   s.MaxMessageSize,
		EmitKey:          s.EmitKey,
		PingInterval:     s.PingInterval,
		WriteTimeout:     s.WriteTimeout,
		PeerBufferSize:   s.PeerBufferSize,
	}
}
