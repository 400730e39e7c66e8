package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ege-ayan/discloned/internal/model"
)

// maxEmitBody bounds the emit request body.
const maxEmitBody = 1 << 20

// HealthCheck reports whether a collaborator is reachable.
type HealthCheck func(ctx context.Context) error

// RouterOption configures NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	metricsPath    string
	metricsHandler http.Handler
	health         HealthCheck
}

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) RouterOption {
	return func(o *routerOptions) {
		o.metricsPath = path
		o.metricsHandler = h
	}
}

// WithHealthCheck makes /health report check failures as 503.
func WithHealthCheck(check HealthCheck) RouterOption {
	return func(o *routerOptions) {
		o.health = check
	}
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

type handlers struct {
	hub    *Hub
	logger *slog.Logger
	health HealthCheck
}

// NewRouter builds the relay's HTTP routes around hub.
func NewRouter(hub *Hub, logger *slog.Logger, opts ...RouterOption) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	h := &handlers{hub: hub, logger: logger, health: o.health}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get(hub.cfg.Path, hub.ServeWS)
	r.Get("/health", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: hub.origins.corsOrigins(),
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
		r.Post(EmitPath, h.emit)
	})

	if o.metricsHandler != nil {
		path := o.metricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, o.metricsHandler)
	}

	return r
}

// emit publishes the envelope in the request body.
func (h *handlers) emit(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid emit key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEmitBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to read body")
		return
	}

	env, err := model.DecodeEnvelope(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.hub.Publish(env); err != nil {
		if errors.Is(err, ErrHubClosed) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
			return
		}
		h.logger.Error("failed to publish event", "event", env.Event, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to publish event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event": env.Event})
}

func (h *handlers) authorized(r *http.Request) bool {
	key := h.hub.cfg.EmitKey
	if key == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
			return
		}
	}

	stats := h.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"peers":  stats.Peers,
	})
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
