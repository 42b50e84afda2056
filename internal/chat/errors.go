package chat

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/wtask/chatrelay/internal/chat/protocol"
)

var (
	// ErrServerClosed - returned by Serve after Shutdown.
	ErrServerClosed = errors.New("chat.Server: server closed")

	// ErrProtocolViolation - peer sent a message which is not expected at the current session state.
	ErrProtocolViolation = errors.New("chat.Session: protocol violation")

	// ErrAdmissionRejected - connection limit is reached, the session never becomes active.
	ErrAdmissionRejected = errors.New("chat.Server: admission rejected, server is full")

	// ErrKeepaliveTimeout - peer did not acknowledge keepalive probe within one interval.
	ErrKeepaliveTimeout = errors.New("chat.Session: keepalive timeout")

	// ErrClientDisconnect - peer asked to close the session.
	ErrClientDisconnect = errors.New("chat.Session: client disconnect")
)

// Disconnect reasons, used as log attribute and metrics label.
const (
	reasonIO        = "io"
	reasonDecode    = "decode"
	reasonProtocol  = "protocol"
	reasonAdmission = "admission"
	reasonKeepalive = "keepalive"
	reasonClient    = "client"
	reasonShutdown  = "shutdown"
)

// classify - maps session error onto disconnect reason.
func classify(err error) string {
	switch {
	case err == nil:
		return reasonClient
	case errors.Is(err, ErrServerClosed), errors.Is(err, context.Canceled):
		return reasonShutdown
	case errors.Is(err, ErrClientDisconnect), errors.Is(err, io.EOF):
		return reasonClient
	case errors.Is(err, ErrKeepaliveTimeout):
		return reasonKeepalive
	case errors.Is(err, ErrAdmissionRejected):
		return reasonAdmission
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, protocol.ErrUnknownTag):
		return reasonProtocol
	case errors.Is(err, protocol.ErrDecode):
		return reasonDecode
	default:
		return reasonIO
	}
}

// expected - reports whether err is an ordinary way for a session to end.
func expected(err error) bool {
	switch classify(err) {
	case reasonClient, reasonShutdown:
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
