package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/internal/chat/message"
	"github.com/wtask/chatrelay/internal/chat/protocol"
)

// shutdownNotice - last line written to every client when server stops.
const shutdownNotice = "server is shutting down"

// session - active client: reader and writer halves sharing one connection.
// Halves communicate only through the broker, the first error of either half
// cancels session context and becomes the disconnect cause.
type session struct {
	server *Server
	conn   net.Conn
	slot   *Slot
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	id       int
	username string
	outbox   <-chan broker.Event

	// owned by reader
	profile           broker.Profile
	lastKeepaliveSent time.Time
	awaitingAck       bool
	latency           time.Duration

	disconnectOnce sync.Once
}

type inbound struct {
	event protocol.Event
	err   error
}

// run - blocks until both halves are done and disconnect sequence is complete, returns disconnect cause.
func (s *session) run() error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.cancel(s.write())
	}()
	s.cancel(s.read())
	<-writerDone
	err := context.Cause(s.ctx)
	s.disconnect(err)
	return err
}

// evict - called by broker when client can not keep up with events.
func (s *session) evict() {
	s.cancel(fmt.Errorf("chat.Session: %w", broker.ErrSlowClient))
}

func (s *session) read() error {
	frames := make(chan inbound)
	go s.pump(frames)

	ticker := time.NewTicker(s.server.keepaliveCheck)
	defer ticker.Stop()
	s.lastKeepaliveSent = time.Now()
	for {
		if err := s.checkKeepalive(time.Now()); err != nil {
			return err
		}
		select {
		case <-s.ctx.Done():
			return context.Cause(s.ctx)
		case <-ticker.C:
		case in := <-frames:
			if in.err != nil {
				return fmt.Errorf("chat.Session: read: %w", in.err)
			}
			if err := s.handle(in.event); err != nil {
				return err
			}
		}
	}
}

// pump - decodes inbound frames until error, the connection is closed on session end which unblocks read.
func (s *session) pump(frames chan<- inbound) {
	for {
		ev, err := protocol.ReadEvent(s.conn)
		select {
		case frames <- inbound{ev, err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// checkKeepalive - sends probe once per interval, an unanswered probe means the peer is dead.
func (s *session) checkKeepalive(now time.Time) error {
	if now.Sub(s.lastKeepaliveSent) < s.server.keepaliveInterval {
		return nil
	}
	if s.awaitingAck {
		return ErrKeepaliveTimeout
	}
	s.server.broker.Send(s.id, broker.KeepaliveProbe{Epoch: uint64(now.Unix())})
	s.lastKeepaliveSent = now
	s.awaitingAck = true
	return nil
}

func (s *session) handle(ev protocol.Event) error {
	switch body := ev.Body.(type) {
	case protocol.Message:
		s.relay(body.Text)
	case protocol.ConfigUpdate:
		s.configure(body)
	case protocol.Keepalive:
		if s.awaitingAck {
			s.awaitingAck = false
			s.latency = time.Since(s.lastKeepaliveSent)
			s.server.broker.SetLatency(s.id, s.latency)
			s.server.metrics.latency(s.latency)
			s.logger.Debug("keepalive", slog.Duration("latency", s.latency))
		}
	case protocol.ErrorNotice:
		s.logger.Warn("client error notice", slog.String("text", message.Sanitize(body.Text)))
	default:
		return fmt.Errorf("%w: unexpected event %T", ErrProtocolViolation, ev.Body)
	}
	if ev.Disconnect {
		return ErrClientDisconnect
	}
	return nil
}

// relay - broadcasts chat line to every other client.
func (s *session) relay(text string) {
	text = message.Sanitize(text)
	if text == "" {
		return
	}
	now := time.Now()
	line := message.Line(now, s.profile.DisplayName, s.profile.NameColor, text, s.profile.MessageColor)
	s.server.broker.Broadcast(broker.ChatMessage{Text: line, AuthorID: s.id, At: now.UTC()})
	s.server.metrics.message()
	if s.server.chatEcho {
		s.logger.Info("chat message", slog.String("from", s.profile.DisplayName), slog.String("text", text))
	}
}

// configure - applies presentation settings, invalid colors keep their previous value.
func (s *session) configure(update protocol.ConfigUpdate) {
	p := s.profile
	p.DisplayName = message.Clip(message.Sanitize(update.DisplayName), MaxUsernameLength)
	if p.DisplayName == "" {
		p.DisplayName = s.username
	}
	if message.IsColor(update.NameColor) {
		p.NameColor = update.NameColor
	} else {
		s.logger.Debug("name color ignored", slog.String("color", fmt.Sprintf("%q", update.NameColor)))
	}
	if message.IsColor(update.MessageColor) {
		p.MessageColor = update.MessageColor
	} else {
		s.logger.Debug("message color ignored", slog.String("color", fmt.Sprintf("%q", update.MessageColor)))
	}
	s.profile = p
	s.server.broker.SetProfile(s.id, p)
}

func (s *session) write() error {
	for {
		var event broker.Event
		select {
		case <-s.ctx.Done():
			return context.Cause(s.ctx)
		case event = <-s.outbox:
		}
		switch event := event.(type) {
		case broker.ChatMessage:
			if event.AuthorID == s.id {
				continue
			}
			if err := s.send(protocol.Event{Body: protocol.Message{Text: event.Text}}); err != nil {
				return err
			}
		case broker.KeepaliveProbe:
			if err := s.send(protocol.Event{Body: protocol.Keepalive{EpochSeconds: event.Epoch}}); err != nil {
				return err
			}
		case broker.Disconnect:
			if event.ID == s.id {
				return ErrClientDisconnect
			}
		case broker.Shutdown:
			s.send(protocol.Event{Body: protocol.Message{Text: shutdownNotice}, Disconnect: true})
			return ErrServerClosed
		}
	}
}

func (s *session) send(ev protocol.Event) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	if err := protocol.WriteEvent(s.conn, ev); err != nil {
		return fmt.Errorf("chat.Session: write: %w", err)
	}
	return nil
}

// disconnect - removes session from registry and notifies other clients, runs once.
// The id is freed after Disconnect{id} is queued, so a client reusing the id never gets it.
func (s *session) disconnect(cause error) {
	s.disconnectOnce.Do(func() {
		s.server.broker.Leave(s.id)
		s.server.broker.Broadcast(disconnectedNotice(s.username))
		s.server.broker.Broadcast(broker.Disconnect{ID: s.id})
		s.server.ids.Free(s.id)
		if !s.slot.Release() {
			s.logger.Warn("disconnect of not counted connection")
		}
		s.server.metrics.sessionFinished(classify(cause))
		logDisconnect(s.logger, cause, slog.Duration("latency", s.latency))
	})
}
