// Package wsnet adapts websocket connections to net.Listener and net.Conn,
// so chat clients can reach the same server through an HTTP endpoint.
// Every frame written by the chat server is sent as one binary websocket message.
package wsnet

import (
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Listener - http.Handler which upgrades requests and hands connections to Accept.
type Listener struct {
	upgrader websocket.Upgrader
	addr     net.Addr
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

// NewListener - creates listener reporting addr as its address.
// checkOrigin may be nil to accept any origin.
func NewListener(addr net.Addr, checkOrigin func(r *http.Request) bool) *Listener {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// ServeHTTP - upgrades request and waits until the connection is accepted or listener is closed.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	default:
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already replied with error status
		return
	}
	conn := newConn(ws)
	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	case <-r.Context().Done():
		conn.Close()
	}
}

// Accept - waits for the next upgraded connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, &net.OpError{Op: "accept", Net: "websocket", Addr: l.addr, Err: net.ErrClosed}
	}
}

// Close - stops accepting, pending upgrades are closed.
func (l *Listener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Addr - address given at creation.
func (l *Listener) Addr() net.Addr {
	return l.addr
}
