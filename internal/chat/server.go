// Package chat implements relay server: admission control, handshake
// and per-session reader and writer loops on top of any net.Listener.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/internal/chat/idalloc"
	"github.com/wtask/chatrelay/pkg/background"
	"github.com/wtask/chatrelay/pkg/semver"
)

// Server - represents chat server over any net.Listener implementation.
type Server struct {
	version           semver.V
	motd              string
	maxConnections    int
	keepaliveInterval time.Duration
	keepaliveCheck    time.Duration
	handshakeTimeout  time.Duration
	writeTimeout      time.Duration
	acceptTimeout     time.Duration
	chatEcho          bool
	logger            *slog.Logger
	metrics           *Metrics
	tracer            trace.Tracer

	broker  *broker.Broker
	ids     *idalloc.Allocator
	counter *Counter
	login   *loginChecker

	listeners     *background.Scope
	stopListeners func()
	sessions      *background.Scope
	stopSessions  func()
	closed        atomic.Bool
}

type deadlineSetter interface {
	SetDeadline(t time.Time) error
}

// NewServer - creates new chat server which ready to serve several network listeners.
func NewServer(options ...serverOption) (*Server, error) {
	s := &Server{
		version:           semver.V{Major: 1},
		maxConnections:    -1,
		keepaliveInterval: 20 * time.Second,
		keepaliveCheck:    time.Second,
		handshakeTimeout:  10 * time.Second,
		writeTimeout:      30 * time.Second,
		acceptTimeout:     time.Second,
	}
	if err := setup(s, options...); err != nil {
		return nil, fmt.Errorf("chat.NewServer: %w", err)
	}
	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.broker == nil {
		b, err := broker.New(broker.WithDropHandler(s.dropped))
		if err != nil {
			return nil, fmt.Errorf("chat.NewServer: can't build broker: %w", err)
		}
		s.broker = b
	}
	login, err := newLoginChecker()
	if err != nil {
		return nil, fmt.Errorf("chat.NewServer: %w", err)
	}
	s.login = login
	s.ids = idalloc.New()
	s.counter = NewCounter(s.maxConnections)
	s.listeners, s.stopListeners = background.NewScope()
	s.sessions, s.stopSessions = background.NewScope()
	return s, nil
}

// Serve - accepts connections from listener until Shutdown, always returns non-nil error.
// It may be called for several listeners concurrently, they share admission limit and client registry.
func (s *Server) Serve(listener net.Listener) error {
	if listener == nil {
		return errors.New("chat.Server: listener is nil")
	}
	closer := func(ctx context.Context) {
		<-ctx.Done()
		listener.Close()
	}
	if !s.listeners.Go(closer) {
		listener.Close()
		return ErrServerClosed
	}

	ctx := s.listeners.Context()
	s.logger.Info("listening", slog.String("addr", formatAddress(listener.Addr())))
	backoff := time.Duration(0)
	for {
		if d, ok := listener.(deadlineSetter); ok {
			d.SetDeadline(time.Now().Add(s.acceptTimeout))
		}
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("chat.Server: listener closed: %w", err)
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("accept failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		backoff = 0
		s.admit(conn)
	}
}

// admit - admission control, connection either gets a counter slot or is refused.
func (s *Server) admit(conn net.Conn) {
	slot, ok := s.counter.TryAcquire()
	if !ok {
		s.metrics.rejected(reasonAdmission)
		s.logger.Warn("connection refused",
			slog.String("remote", remoteAddress(conn)),
			slog.Any("err", ErrAdmissionRejected),
		)
		if !s.sessions.Go(func(ctx context.Context) { s.refuse(ctx, conn) }) {
			conn.Close()
		}
		return
	}
	if !s.sessions.Go(func(ctx context.Context) { s.handle(ctx, conn, slot) }) {
		slot.Release()
		conn.Close()
	}
}

// refuse - tells client the server is full and closes connection without reading its entry point.
func (s *Server) refuse(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()
	if err := s.respond(conn, refusal(ErrAdmissionRejected)); err != nil {
		s.logger.Debug("refusal is not delivered", slog.String("remote", remoteAddress(conn)), slog.Any("err", err))
		return
	}
	linger(conn, s.handshakeTimeout)
}

// Shutdown - stops server with the specified timeout and returns stopping duration.
// Listeners are closed at once, active clients are notified and given the timeout to leave,
// connections remaining after the timeout are closed.
func (s *Server) Shutdown(timeout time.Duration) time.Duration {
	if !s.closed.CompareAndSwap(false, true) {
		return 0
	}
	from := time.Now()
	s.stopListeners()
	notified := s.broker.Stop()
	s.logger.Info("shutting down", slog.Int("notified", notified), slog.Duration("grace", timeout))
	if !s.sessions.Wait(timeout) {
		s.logger.Warn("grace period expired, closing remaining connections", slog.Int("sessions", s.broker.Len()))
	}
	s.stopSessions()
	return time.Since(from)
}

// Connections - number of admitted connections, handshaking ones included.
func (s *Server) Connections() int {
	return s.counter.Len()
}

// MaxConnections - admission limit, negative when unbounded.
func (s *Server) MaxConnections() int {
	return s.counter.Max()
}

// Sessions - active sessions ordered by id.
func (s *Server) Sessions() []broker.ClientInfo {
	return s.broker.Snapshot()
}

// Version - server version reported to version probes.
func (s *Server) Version() semver.V {
	return s.version
}

func (s *Server) dropped(id int) {
	s.metrics.dropped()
	s.logger.Warn("slow client dropped", slog.Int("id", id))
}
