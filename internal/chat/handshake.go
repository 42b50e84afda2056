package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/internal/chat/protocol"
	"github.com/wtask/chatrelay/pkg/semver"
)

// Refusal reasons sent to client with protocol.Invalid.
const (
	reasonServerFull    = "server is full"
	reasonInvalidEntry  = "invalid entry point"
	reasonUsernameInUse = "username is already in use"
	reasonShuttingDown  = "server is shutting down"
)

const lingerTimeout = time.Second

func refusal(err error) protocol.Invalid {
	switch {
	case errors.Is(err, ErrAdmissionRejected):
		return protocol.Invalid{Reason: reasonServerFull}
	case errors.Is(err, broker.ErrUsernameTaken):
		return protocol.Invalid{Reason: reasonUsernameInUse}
	case errors.Is(err, broker.ErrStopped), errors.Is(err, ErrServerClosed):
		return protocol.Invalid{Reason: reasonShuttingDown}
	default:
		return protocol.Invalid{Reason: reasonInvalidEntry}
	}
}

// respond - writes entry response within write timeout.
func (s *Server) respond(conn net.Conn, resp protocol.EntryResponse) error {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return protocol.WriteEntryResponse(conn, resp)
}

// linger - half-closes connection and drains what client still sends,
// so the last response is not lost to a reset caused by unread input.
func linger(conn net.Conn, limit time.Duration) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	if limit <= 0 || limit > lingerTimeout {
		limit = lingerTimeout
	}
	conn.SetReadDeadline(time.Now().Add(limit))
	io.Copy(io.Discard, io.LimitReader(conn, protocol.MaxFrameSize))
}

// handle - runs connection from handshake to disconnect.
func (s *Server) handle(ctx context.Context, conn net.Conn, slot *Slot) {
	connID := uuid.NewString()
	ctx, span := s.startConnectionSpan(ctx, conn, connID)
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger := s.logger.With(slog.String("conn", connID), slog.String("remote", remoteAddress(conn)))
	logger.Debug("connection accepted")

	sess, err := s.handshake(ctx, cancel, conn, slot, logger)
	if sess == nil {
		slot.Release()
		cancel(err)
		conn.Close()
		endConnectionSpan(span, err)
		return
	}
	endConnectionSpan(span, sess.run())
}

// handshake - reads entry point and either returns active session or nil when connection must be closed.
func (s *Server) handshake(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	conn net.Conn,
	slot *Slot,
	logger *slog.Logger,
) (*session, error) {
	conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	entry, err := protocol.ReadEntryPoint(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		if errors.Is(err, protocol.ErrUnknownTag) {
			err = fmt.Errorf("%w: %w", ErrProtocolViolation, err)
			s.respond(conn, refusal(err))
			linger(conn, s.handshakeTimeout)
		}
		s.metrics.rejected(classify(err))
		logger.Warn("handshake failed", slog.String("reason", classify(err)), slog.Any("err", err))
		return nil, err
	}

	switch entry := entry.(type) {
	case protocol.VersionProbe:
		s.probe(conn, entry, logger)
		return nil, nil
	case protocol.LoginAttempt:
		return s.enter(ctx, cancel, conn, slot, entry, logger)
	default:
		err := fmt.Errorf("%w: unexpected entry point %T", ErrProtocolViolation, entry)
		s.respond(conn, refusal(err))
		s.metrics.rejected(reasonProtocol)
		return nil, err
	}
}

// probe - answers version probe, the connection never becomes a session.
func (s *Server) probe(conn net.Conn, entry protocol.VersionProbe, logger *slog.Logger) {
	compatible := false
	if v, err := semver.Parse(entry.ClientVersion); err == nil {
		compatible = v.Equal(s.version)
	}
	err := s.respond(conn, protocol.PingAck{
		Compatible:    compatible,
		ServerVersion: s.version.String(),
	})
	if err != nil {
		logger.Debug("version probe response is not delivered", slog.Any("err", err))
		return
	}
	logger.Info("version probe",
		slog.String("client_version", entry.ClientVersion),
		slog.Bool("compatible", compatible),
	)
	linger(conn, s.handshakeTimeout)
}

// enter - checks login attempt, registers session and greets client with MOTD.
func (s *Server) enter(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	conn net.Conn,
	slot *Slot,
	entry protocol.LoginAttempt,
	logger *slog.Logger,
) (*session, error) {
	if reason := s.login.check(entry); reason != "" {
		s.respond(conn, protocol.Invalid{Reason: reason})
		s.metrics.rejected("login")
		logger.Info("login refused", slog.String("username", entry.Username), slog.String("why", reason))
		linger(conn, s.handshakeTimeout)
		return nil, nil
	}

	id := s.ids.Allocate()
	logger = logger.With(slog.Int("id", id), slog.String("user", entry.Username))
	sess := &session{
		server:   s,
		conn:     conn,
		slot:     slot,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		id:       id,
		username: entry.Username,
		profile:  broker.Profile{DisplayName: entry.Username},
	}
	outbox, err := s.broker.Join(broker.Member{
		ID:         id,
		Username:   entry.Username,
		Profile:    sess.profile,
		RemoteAddr: remoteAddress(conn),
		Evict:      sess.evict,
	})
	if err != nil {
		s.ids.Free(id)
		s.respond(conn, refusal(err))
		logger.Info("login refused", slog.Any("err", err))
		if errors.Is(err, broker.ErrStopped) {
			return nil, ErrServerClosed
		}
		s.metrics.rejected("login")
		linger(conn, s.handshakeTimeout)
		return nil, nil
	}
	sess.outbox = outbox

	if err := s.respond(conn, protocol.Valid{MOTD: s.motd}); err != nil {
		s.broker.Leave(id)
		s.ids.Free(id)
		return nil, err
	}

	s.metrics.sessionStarted()
	logger.Info("client connected")
	s.broker.Broadcast(connectedNotice(entry.Username))
	return sess, nil
}
