package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wtask/chatrelay/internal/chat/protocol"
	"github.com/wtask/chatrelay/pkg/semver"
)

const waitTimeout = 3 * time.Second

type testServer struct {
	*Server
	addr     string
	served   chan struct{}
	serveErr error
}

func startServer(test *testing.T, options ...serverOption) *testServer {
	test.Helper()
	srv, err := NewServer(append([]serverOption{WithVersion(semver.V{Major: 1})}, options...)...)
	if err != nil {
		test.Fatal("chat.NewServer, unexpected error:", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		test.Fatal("net.Listen, unexpected error:", err)
	}
	ts := &testServer{Server: srv, addr: listener.Addr().String(), served: make(chan struct{})}
	go func() {
		defer close(ts.served)
		ts.serveErr = srv.Serve(listener)
	}()
	test.Cleanup(func() {
		srv.Shutdown(time.Second)
		<-ts.served
	})
	return ts
}

type testClient struct {
	test     *testing.T
	conn     net.Conn
	mu       sync.Mutex
	autoAck  bool
	messages chan protocol.Event
	closed   chan struct{}
}

func dial(test *testing.T, addr string) net.Conn {
	test.Helper()
	conn, err := net.DialTimeout("tcp", addr, waitTimeout)
	if err != nil {
		test.Fatal("net.Dial, unexpected error:", err)
	}
	test.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(10 * waitTimeout))
	return conn
}

func enter(test *testing.T, addr, username string) (net.Conn, protocol.EntryResponse) {
	test.Helper()
	conn := dial(test, addr)
	if err := protocol.WriteEntryPoint(conn, protocol.LoginAttempt{Username: username}); err != nil {
		test.Fatal("WriteEntryPoint, unexpected error:", err)
	}
	resp, err := protocol.ReadEntryResponse(conn)
	if err != nil {
		test.Fatal("ReadEntryResponse, unexpected error:", err)
	}
	return conn, resp
}

// login - enters the chat and starts to collect messages, keepalive probes are acknowledged if autoAck.
func login(test *testing.T, addr, username string, autoAck bool) *testClient {
	test.Helper()
	conn, resp := enter(test, addr, username)
	if _, ok := resp.(protocol.Valid); !ok {
		test.Fatalf("%s: expected Valid response, got %#v", username, resp)
	}
	c := &testClient{
		test:     test,
		conn:     conn,
		autoAck:  autoAck,
		messages: make(chan protocol.Event, 128),
		closed:   make(chan struct{}),
	}
	go c.receive()
	return c
}

func (c *testClient) receive() {
	defer close(c.closed)
	for {
		ev, err := protocol.ReadEvent(c.conn)
		if err != nil {
			return
		}
		switch ev.Body.(type) {
		case protocol.Keepalive:
			if c.autoAck {
				c.send(ev)
			}
		default:
			c.messages <- ev
		}
	}
}

func (c *testClient) send(ev protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteEvent(c.conn, ev)
}

// write - sends raw bytes, used for frames the codec refuses to build.
func (c *testClient) write(b []byte) {
	c.test.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(b); err != nil {
		c.test.Fatal("write, unexpected error:", err)
	}
}

func (c *testClient) say(text string) {
	c.test.Helper()
	if err := c.send(protocol.Event{Body: protocol.Message{Text: text}}); err != nil {
		c.test.Fatal("send message, unexpected error:", err)
	}
}

// expect - waits for message containing substr, returns texts received before it.
func (c *testClient) expect(substr string) []string {
	c.test.Helper()
	skipped := []string{}
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-c.messages:
			m, ok := ev.Body.(protocol.Message)
			if !ok {
				continue
			}
			if strings.Contains(m.Text, substr) {
				return skipped
			}
			skipped = append(skipped, m.Text)
		case <-timeout:
			c.test.Fatalf("message %q is not received, got %q", substr, skipped)
			return nil
		}
	}
}

func eventually(test *testing.T, what string, cond func() bool) {
	test.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			test.Fatal("condition is not reached:", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_VersionProbe(test *testing.T) {
	srv := startServer(test)
	cases := []struct {
		version    string
		compatible bool
	}{
		{"1.0.0", true},
		{"v1.0.0", true},
		{"2.0.0", false},
		{"garbage", false},
	}
	for _, c := range cases {
		conn := dial(test, srv.addr)
		if err := protocol.WriteEntryPoint(conn, protocol.VersionProbe{ClientVersion: c.version}); err != nil {
			test.Fatal("WriteEntryPoint, unexpected error:", err)
		}
		resp, err := protocol.ReadEntryResponse(conn)
		if err != nil {
			test.Fatal("ReadEntryResponse, unexpected error:", err)
		}
		expected := protocol.PingAck{Compatible: c.compatible, ServerVersion: "1.0.0"}
		if resp != expected {
			test.Errorf("Probe %q: expected %#v, got %#v", c.version, expected, resp)
		}
		if _, err := protocol.ReadFrame(conn); err != io.EOF {
			test.Error("Connection must be closed after probe, got", err)
		}
	}
	if n := len(srv.Sessions()); n != 0 {
		test.Error("Probe must not create sessions, got", n)
	}
	eventually(test, "probe connections released", func() bool { return srv.Connections() == 0 })
}

func TestServer_Full(test *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := startServer(test, WithMaxConnections(0), WithMetrics(metrics))

	conn, resp := enter(test, srv.addr, "alice")
	if resp != (protocol.Invalid{Reason: "server is full"}) {
		test.Errorf("Expected server is full response, got %#v", resp)
	}
	if _, err := protocol.ReadFrame(conn); err != io.EOF {
		test.Error("Refused connection must be closed, got", err)
	}
	if srv.Connections() != 0 {
		test.Error("Refused connection changed counter", srv.Connections())
	}
	if v := testutil.ToFloat64(metrics.rejectedTotal.WithLabelValues(reasonAdmission)); v != 1 {
		test.Error("Expected one admission rejection in metrics, got", v)
	}
}

func TestServer_Limit(test *testing.T) {
	srv := startServer(test, WithMaxConnections(1))
	alice := login(test, srv.addr, "alice", true)

	_, resp := enter(test, srv.addr, "bob")
	if resp != (protocol.Invalid{Reason: "server is full"}) {
		test.Errorf("Expected server is full response, got %#v", resp)
	}
	if srv.Connections() != 1 {
		test.Error("Expected single counted connection, got", srv.Connections())
	}

	alice.conn.Close()
	eventually(test, "slot released", func() bool { return srv.Connections() == 0 })
	login(test, srv.addr, "bob", true)
}

func TestServer_Broadcast(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", true)
	alice.expect("bob has connected.")
	carol := login(test, srv.addr, "carol", true)
	alice.expect("carol has connected.")
	bob.expect("carol has connected.")

	alice.say("m1")
	alice.say("m2")
	for _, c := range []*testClient{bob, carol} {
		c.expect("alice > m1")
		c.expect("alice > m2")
	}

	bob.say("done")
	for _, text := range alice.expect("bob > done") {
		if strings.Contains(text, "m1") || strings.Contains(text, "m2") {
			test.Error("Author received own message:", text)
		}
	}
}

func TestServer_KeepaliveTimeout(test *testing.T) {
	srv := startServer(test,
		WithKeepaliveInterval(100*time.Millisecond),
		WithKeepaliveCheck(10*time.Millisecond),
	)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", false)
	alice.expect("bob has connected.")

	alice.expect("bob has disconnected.")
	select {
	case <-bob.closed:
	case <-time.After(waitTimeout):
		test.Fatal("Dead client connection is not closed")
	}

	// alice acknowledges probes and must survive several intervals
	time.Sleep(300 * time.Millisecond)
	alice.say("still here")
	carol := login(test, srv.addr, "carol", true)
	alice.say("ping")
	for _, text := range carol.expect("alice > ping") {
		if strings.Contains(text, "alice has disconnected.") {
			test.Error("Live client is disconnected by keepalive")
		}
	}
	for _, text := range alice.expect("carol has connected.") {
		if strings.Contains(text, "bob has disconnected.") {
			test.Error("Disconnect notice is repeated")
		}
	}
	if srv.Connections() != 2 {
		test.Error("Expected 2 counted connections, got", srv.Connections())
	}
	info := srv.Sessions()
	if len(info) != 2 || info[0].Username != "alice" || info[0].Latency <= 0 {
		test.Errorf("Unexpected sessions %+v", info)
	}
}

func TestServer_DuplicateUsername(test *testing.T) {
	srv := startServer(test)
	login(test, srv.addr, "alice", true)
	_, resp := enter(test, srv.addr, "alice")
	if resp != (protocol.Invalid{Reason: "username is already in use"}) {
		test.Errorf("Expected username in use response, got %#v", resp)
	}
	eventually(test, "refused login released", func() bool { return srv.Connections() == 1 })
}

func TestServer_InvalidLogin(test *testing.T) {
	srv := startServer(test)
	for _, username := range []string{"", "with space", strings.Repeat("x", 33), "bell\a"} {
		_, resp := enter(test, srv.addr, username)
		invalid, ok := resp.(protocol.Invalid)
		if !ok || !strings.Contains(invalid.Reason, "Username") {
			test.Errorf("Username %q: expected Invalid with reason, got %#v", username, resp)
		}
	}
	eventually(test, "refused logins released", func() bool { return srv.Connections() == 0 })
}

func TestServer_InvalidEntryPoint(test *testing.T) {
	srv := startServer(test)
	conn := dial(test, srv.addr)
	// chat event is not an entry point
	err := protocol.WriteEvent(conn, protocol.Event{Body: protocol.ConfigUpdate{DisplayName: "x"}})
	if err != nil {
		test.Fatal("WriteEvent, unexpected error:", err)
	}
	resp, err := protocol.ReadEntryResponse(conn)
	if err != nil {
		test.Fatal("ReadEntryResponse, unexpected error:", err)
	}
	if resp != (protocol.Invalid{Reason: "invalid entry point"}) {
		test.Errorf("Expected invalid entry point, got %#v", resp)
	}

	// broken frame is dropped silently
	conn = dial(test, srv.addr)
	conn.Write([]byte{0, 0, 0, 3, 1, 2, 3})
	if _, err := protocol.ReadFrame(conn); err != io.EOF {
		test.Error("Connection with malformed frame must be closed, got", err)
	}
	eventually(test, "handshake slots released", func() bool { return srv.Connections() == 0 })
}

func TestServer_DisconnectFlag(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", true)
	alice.expect("bob has connected.")

	bobID := srv.Sessions()[1].ID
	bob.send(protocol.Event{Body: protocol.Message{Text: "bye"}, Disconnect: true})
	alice.expect("bob > bye")
	alice.expect("bob has disconnected.")
	eventually(test, "bob removed", func() bool { return srv.Connections() == 1 })

	login(test, srv.addr, "carol", true)
	alice.expect("carol has connected.")
	sessions := srv.Sessions()
	if len(sessions) != 2 || sessions[1].Username != "carol" || sessions[1].ID != bobID {
		test.Errorf("Expected carol to reuse id %d, got %+v", bobID, sessions)
	}
}

func TestServer_ConfigUpdate(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", true)
	alice.expect("bob has connected.")

	bob.send(protocol.Event{Body: protocol.ConfigUpdate{
		DisplayName:  "Bobby\n",
		NameColor:    "\x1b[32m",
		MessageColor: "\x1b[2J",
	}})
	bob.say("hi")
	alice.expect("\x1b[32mBobby\x1b[0m > hi")

	bob.send(protocol.Event{Body: protocol.ConfigUpdate{}})
	bob.say("plain")
	alice.expect("] bob > plain")

	eventually(test, "profile stored", func() bool {
		sessions := srv.Sessions()
		return len(sessions) == 2 && sessions[1].Profile.DisplayName == "bob" && sessions[1].Profile.NameColor == ""
	})
}

func TestServer_Shutdown(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	alice.expect("alice has connected.")

	srv.Shutdown(time.Second)
	select {
	case ev := <-alice.messages:
		if ev != (protocol.Event{Body: protocol.Message{Text: "server is shutting down"}, Disconnect: true}) {
			test.Errorf("Unexpected last event %#v", ev)
		}
	case <-time.After(waitTimeout):
		test.Fatal("Shutdown notice is not received")
	}
	select {
	case <-alice.closed:
	case <-time.After(waitTimeout):
		test.Fatal("Connection is not closed on shutdown")
	}
	<-srv.served
	if !errors.Is(srv.serveErr, ErrServerClosed) {
		test.Error("Serve: expected ErrServerClosed, got", srv.serveErr)
	}
	if srv.Connections() != 0 {
		test.Error("Counter is not zero after shutdown", srv.Connections())
	}
	if srv.Shutdown(time.Second) != 0 {
		test.Error("Repeated Shutdown must return immediately")
	}
}

func TestServer_ErrorNotice(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", true)
	alice.expect("bob has connected.")

	bob.send(protocol.Event{Body: protocol.ErrorNotice{Text: "can not render line"}})
	bob.say("alive")
	for _, text := range alice.expect("bob > alive") {
		if strings.Contains(text, "bob has disconnected.") {
			test.Error("Error notice must not end the session")
		}
	}
	if srv.Connections() != 2 || len(srv.Sessions()) != 2 {
		test.Errorf("Expected 2 sessions, got %d connections, %+v", srv.Connections(), srv.Sessions())
	}
}

func TestServer_UnexpectedKeepalive(test *testing.T) {
	srv := startServer(test)
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", false)
	alice.expect("bob has connected.")

	// no probe is in flight with default interval
	bob.send(protocol.Event{Body: protocol.Keepalive{EpochSeconds: 1}})
	bob.send(protocol.Event{Body: protocol.Keepalive{EpochSeconds: 2}})
	bob.say("alive")
	alice.expect("bob > alive")

	sessions := srv.Sessions()
	if len(sessions) != 2 || sessions[1].Username != "bob" {
		test.Fatalf("Unexpected sessions %+v", sessions)
	}
	if sessions[1].Latency != 0 {
		test.Error("Acknowledgement without probe must not update latency, got", sessions[1].Latency)
	}
}

func TestServer_DecodeErrorDisconnects(test *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := startServer(test, WithMetrics(metrics))
	alice := login(test, srv.addr, "alice", true)
	bob := login(test, srv.addr, "bob", true)
	carol := login(test, srv.addr, "carol", true)
	alice.expect("carol has connected.")

	// segment length exceeds frame payload
	bob.write([]byte{0, 0, 0, 3, 1, 2, 3})
	alice.expect("bob has disconnected.")
	select {
	case <-bob.closed:
	case <-time.After(waitTimeout):
		test.Fatal("Connection with malformed frame is not closed")
	}
	eventually(test, "bob released", func() bool { return srv.Connections() == 2 })

	frame, err := protocol.EncodeFrame([]byte("shout"), []byte{0}, []byte("hey"))
	if err != nil {
		test.Fatal("EncodeFrame, unexpected error:", err)
	}
	carol.write(frame)
	for _, text := range alice.expect("carol has disconnected.") {
		if strings.Contains(text, "has disconnected.") {
			test.Error("Unexpected extra disconnect notice:", text)
		}
	}
	eventually(test, "carol released", func() bool { return srv.Connections() == 1 })

	sessions := srv.Sessions()
	if len(sessions) != 1 || sessions[0].Username != "alice" {
		test.Errorf("Only alice must stay registered, got %+v", sessions)
	}
	eventually(test, "disconnects counted by reason", func() bool {
		return testutil.ToFloat64(metrics.disconnectsTotal.WithLabelValues(reasonDecode)) == 1 &&
			testutil.ToFloat64(metrics.disconnectsTotal.WithLabelValues(reasonProtocol)) == 1
	})
}

func TestServer_ConnectionSpans(test *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	srv := startServer(test,
		WithTracerProvider(tp),
		WithKeepaliveInterval(100*time.Millisecond),
		WithKeepaliveCheck(10*time.Millisecond),
	)
	alice := login(test, srv.addr, "alice", true)
	login(test, srv.addr, "bob", false)
	alice.expect("bob has connected.")
	alice.expect("bob has disconnected.")

	carol := login(test, srv.addr, "carol", true)
	alice.expect("carol has connected.")
	carol.send(protocol.Event{Body: protocol.Message{Text: "bye"}, Disconnect: true})
	alice.expect("carol has disconnected.")

	ended := func() map[string]sdktrace.ReadOnlySpan {
		spans := map[string]sdktrace.ReadOnlySpan{}
		for _, span := range recorder.Ended() {
			for _, attr := range span.Attributes() {
				if attr.Key == "chat.disconnect_reason" {
					spans[attr.Value.AsString()] = span
				}
			}
		}
		return spans
	}
	eventually(test, "spans of finished sessions", func() bool { return len(ended()) == 2 })

	spans := ended()
	keepalive, ok := spans[reasonKeepalive]
	if !ok {
		test.Fatalf("Span with keepalive reason is not found, got %v", spans)
	}
	if keepalive.Name() != "chat.connection" || keepalive.Status().Code != codes.Error {
		test.Errorf("Unexpected keepalive span %q with status %+v", keepalive.Name(), keepalive.Status())
	}
	if len(keepalive.Events()) == 0 {
		test.Error("Keepalive timeout is not recorded as span error")
	}
	client, ok := spans[reasonClient]
	if !ok {
		test.Fatalf("Span with client reason is not found, got %v", spans)
	}
	if client.Status().Code != codes.Ok {
		test.Errorf("Client disconnect must end span with Ok status, got %+v", client.Status())
	}
}
