package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/pkg/semver"
)

type serverOption func(s *Server) error

func setup(s *Server, options ...serverOption) error {
	if s == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return err
		}
	}
	return nil
}

// WithVersion - server version reported to version probes.
func WithVersion(v semver.V) serverOption {
	return func(s *Server) error {
		s.version = v
		return nil
	}
}

// WithMOTD - message of the day sent to every accepted login.
func WithMOTD(motd string) serverOption {
	return func(s *Server) error {
		s.motd = motd
		return nil
	}
}

// WithMaxConnections - limits number of concurrent sessions, negative value means no limit.
func WithMaxConnections(max int) serverOption {
	return func(s *Server) error {
		s.maxConnections = max
		return nil
	}
}

// WithKeepaliveInterval - overwrites default interval between keepalive probes.
// Peer which does not acknowledge a probe until the next one is due is disconnected.
func WithKeepaliveInterval(d time.Duration) serverOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("chat.WithKeepaliveInterval: invalid interval (%s)", d)
		}
		s.keepaliveInterval = d
		return nil
	}
}

// WithKeepaliveCheck - overwrites default resolution of keepalive timer.
func WithKeepaliveCheck(d time.Duration) serverOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("chat.WithKeepaliveCheck: invalid check period (%s)", d)
		}
		s.keepaliveCheck = d
		return nil
	}
}

// WithHandshakeTimeout - overwrites default time given to a new connection to send its entry point.
func WithHandshakeTimeout(d time.Duration) serverOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("chat.WithHandshakeTimeout: invalid timeout (%s)", d)
		}
		s.handshakeTimeout = d
		return nil
	}
}

// WithWriteTimeout - overwrites default timeout for every outbound frame.
func WithWriteTimeout(d time.Duration) serverOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("chat.WithWriteTimeout: invalid timeout (%s)", d)
		}
		s.writeTimeout = d
		return nil
	}
}

// WithAcceptTimeout - overwrites default accept deadline, listener checks shutdown state at least this often.
func WithAcceptTimeout(d time.Duration) serverOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("chat.WithAcceptTimeout: invalid timeout (%s)", d)
		}
		s.acceptTimeout = d
		return nil
	}
}

// WithChatEcho - log every relayed chat line.
func WithChatEcho(enabled bool) serverOption {
	return func(s *Server) error {
		s.chatEcho = enabled
		return nil
	}
}

// WithLogger - attach logger, server is silent by default.
func WithLogger(l *slog.Logger) serverOption {
	return func(s *Server) error {
		if l == nil {
			return errors.New("chat.WithLogger: logger is nil")
		}
		s.logger = l
		return nil
	}
}

// WithMetrics - attach metrics collectors.
func WithMetrics(m *Metrics) serverOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithBroker - use prepared broker instead of default one.
func WithBroker(b *broker.Broker) serverOption {
	return func(s *Server) error {
		if b == nil {
			return errors.New("chat.WithBroker: broker is nil")
		}
		s.broker = b
		return nil
	}
}

// WithTracerProvider - connection spans are started by tracer of the provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) serverOption {
	return func(s *Server) error {
		if tp == nil {
			return errors.New("chat.WithTracerProvider: provider is nil")
		}
		s.tracer = tp.Tracer(tracerName)
		return nil
	}
}
