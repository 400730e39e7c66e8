// sockettest acquires the shared socket, prints status transitions and the
// events it is subscribed to, and optionally loads a media session token.
// Usage: go run ./cmd/sockettest --config configs/relay.example.yaml --chat <channel-id>
//
// Optional environment variables:
//
//	DISCLONED_SOCKET_TOKEN - Session token sent on the socket handshake
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ege-ayan/discloned/internal/auth"
	"github.com/ege-ayan/discloned/internal/config"
	"github.com/ege-ayan/discloned/internal/media"
	"github.com/ege-ayan/discloned/internal/metrics"
	"github.com/ege-ayan/discloned/internal/model"
	"github.com/ege-ayan/discloned/internal/realtime"
	"github.com/ege-ayan/discloned/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	chatID := flag.String("chat", "", "channel or conversation id to follow")
	serverID := flag.String("server", "", "server id to follow member changes for")
	events := flag.String("events", "", "extra comma-separated event names to follow")
	tokenFile := flag.String("token-file", "", "file holding the handshake session token")
	firstName := flag.String("first", "", "first name for the media session")
	lastName := flag.String("last", "", "last name for the media session")
	verbose := flag.Bool("verbose", false, "print full event payloads")
	metricsAddr := flag.String("metrics-addr", "", "serve socket metrics on this address (e.g. :9100)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting sockettest", "version", version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	token := cfg.Socket.AuthToken
	if env := os.Getenv("DISCLONED_SOCKET_TOKEN"); env != "" {
		token = env
	}
	if *tokenFile != "" {
		token, err = auth.LoadToken(*tokenFile)
		if err != nil {
			logger.Error("failed to load session token", "error", err)
			os.Exit(1)
		}
	}

	if err := realtime.Configure(managerConfig(cfg.Socket, token), logger); err != nil {
		logger.Error("failed to configure socket", "error", err)
		os.Exit(1)
	}

	status := realtime.Subscribe(func(ev realtime.StatusEvent) {
		if ev.Connected {
			logger.Info("socket connected")
			return
		}
		logger.Warn("socket disconnected", "error", ev.Err)
	})
	defer realtime.Unsubscribe(status)

	var names []string
	if *chatID != "" {
		names = append(names, model.ChatMessagesKey(*chatID), model.ChatUpdateKey(*chatID))
	}
	if *serverID != "" {
		names = append(names, model.ServerMembersKey(*serverID))
	}
	for _, name := range strings.Split(*events, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		logger.Warn("no events to follow, pass --chat, --server or --events")
	}

	for _, name := range names {
		sub := realtime.On(name, func(msg realtime.Message) {
			printEvent(msg, *verbose)
		})
		defer realtime.Unsubscribe(sub)
	}

	socket := realtime.Acquire()
	logger.Info("socket acquired", "socket_id", socket.ID(), "events", names)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, cfg.Metrics.Path, logger)
	}

	if cfg.Media.TokenURL != "" && *chatID != "" {
		go loadMedia(ctx, cfg.Media, *chatID, auth.Identity{FirstName: *firstName, LastName: *lastName}, logger)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := realtime.Default().Stats()
				logger.Info("socket stats",
					"status", stats.Status,
					"attempts", stats.Attempts,
					"reconnects", stats.Reconnects,
					"events", stats.EventsReceived,
					"bindings", stats.Bindings,
				)
				if stats.Status == realtime.StatusDisconnected && socket.Err() != nil {
					logger.Warn("socket gave up", "error", socket.Err())
				}
			}
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	realtime.Default().Shutdown(shutdownCtx)
}

func managerConfig(s config.SocketConfig, token string) realtime.ManagerConfig {
	return realtime.ManagerConfig{
		SiteURL: s.SiteURL,
		Path:    s.Path,
		Reconnect: realtime.ReconnectPolicy{
			Enabled:     s.Reconnect.IsEnabled(),
			MaxAttempts: s.Reconnect.MaxAttempts,
			Delay:       s.Reconnect.Delay,
		},
		Client: realtime.ClientConfig{
			Header:       auth.BearerHeader(token),
			PingInterval: s.PingInterval,
			PingTimeout:  s.PingTimeout,
			WriteTimeout: s.WriteTimeout,
			BufferSize:   s.BufferSize,
		},
	}
}

// serveMetrics exposes the shared socket's statistics.
func serveMetrics(addr, path string, logger *slog.Logger) {
	reg := prometheus.NewRegistry()
	if err := metrics.RegisterSocket(reg, realtime.Default().Stats); err != nil {
		logger.Error("failed to register socket metrics", "error", err)
		return
	}

	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler(reg))

	logger.Info("serving metrics", "addr", addr, "path", path)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func loadMedia(ctx context.Context, cfg config.MediaConfig, chatID string, id auth.Identity, logger *slog.Logger) {
	if _, ok := id.DisplayName(); !ok {
		logger.Info("media session waiting for a full name, pass --first and --last")
		return
	}

	client := media.NewTokenClient(cfg.TokenURL,
		media.WithTimeout(cfg.Timeout),
		media.WithLogger(logger),
	)
	session := media.NewSession(chatID, true, true)
	session.Load(ctx, client, id)

	switch session.State() {
	case media.SessionReady:
		logger.Info("media token ready", "room", chatID, "token_bytes", len(session.Token()))
	case media.SessionFailed:
		logger.Error("media token failed", "room", chatID, "message", session.ErrorMessage())
	}
}

func printEvent(msg realtime.Message, verbose bool) {
	fmt.Println(formatEvent(msg, verbose))
}

// formatEvent renders one event line. Chat and member payloads are decoded
// into their model types; anything else is shown by size.
func formatEvent(msg realtime.Message, verbose bool) string {
	line := fmt.Sprintf("[%s] %s", msg.ReceivedAt.Format("15:04:05.000"), msg.Event)
	if verbose {
		return line + " " + string(msg.Data)
	}

	switch {
	case strings.HasPrefix(msg.Event, "chat:"):
		var m model.Message
		if err := json.Unmarshal(msg.Data, &m); err == nil && m.ID != "" {
			if m.Deleted {
				return fmt.Sprintf("%s message %s deleted in %s", line, m.ID, m.ChatID())
			}
			return fmt.Sprintf("%s message %s in %s from %s: %q", line, m.ID, m.ChatID(), m.MemberID, m.Content)
		}
	case strings.HasPrefix(msg.Event, "server:") && strings.HasSuffix(msg.Event, ":members"):
		var mem model.Member
		if err := json.Unmarshal(msg.Data, &mem); err == nil && mem.ID != "" {
			role := string(mem.Role)
			if !mem.Role.Valid() {
				role = "unknown"
			}
			return fmt.Sprintf("%s member %s in %s is %s", line, mem.ID, mem.ServerID, role)
		}
	}
	return fmt.Sprintf("%s (%d bytes)", line, len(msg.Data))
}
