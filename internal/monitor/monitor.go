// Package monitor exposes operations HTTP surface of the chat server:
// health, active sessions, prometheus metrics and optional websocket entry.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wtask/chatrelay/internal/chat/broker"
)

// Source - chat state reported by monitor.
type Source interface {
	Sessions() []broker.ClientInfo
	Connections() int
	MaxConnections() int
}

// Health - /healthz response body.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Sessions       int    `json:"sessions"`
	Connections    int    `json:"connections"`
	MaxConnections int    `json:"max_connections"`
}

type options struct {
	version   string
	gatherer  prometheus.Gatherer
	websocket http.Handler
	logger    *slog.Logger
}

// Option - monitor setup
type Option func(o *options)

// WithVersion - version reported by /healthz.
func WithVersion(v string) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithGatherer - exposes collected metrics at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.gatherer = g
	}
}

// WithWebSocket - mounts websocket entry at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(o *options) {
		o.websocket = h
	}
}

// WithLogger - request and error logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewHandler - builds router of monitor endpoints.
func NewHandler(src Source, opts ...Option) http.Handler {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if o.logger != nil {
		r.Use(requestLogger(o.logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Health{
			Status:         "ok",
			Version:        o.version,
			Sessions:       len(src.Sessions()),
			Connections:    src.Connections(),
			MaxConnections: src.MaxConnections(),
		})
	})
	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Sessions())
	})
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, info := range src.Sessions() {
			if id == strconv.Itoa(info.ID) {
				writeJSON(w, http.StatusOK, info)
				return
			}
		}
		http.Error(w, "session not found", http.StatusNotFound)
	})
	if o.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	}
	if o.websocket != nil {
		r.Handle("/ws", o.websocket)
	}
	return r
}

// Server - HTTP server of monitor handler.
type Server struct {
	http *http.Server
}

// NewServer - wraps handler into HTTP server with sane timeouts.
func NewServer(h http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve - serves listener until Shutdown, returns nil after graceful stop.
func (s *Server) Serve(l net.Listener) error {
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown - stops server gracefully within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("took", time.Since(started)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
