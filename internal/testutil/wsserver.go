package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/multiworld/internal/protocol"
)

// WSServer is a loopback websocket server. Every accepted connection is
// handed to the test as a WSConn.
type WSServer struct {
	srv   *httptest.Server
	conns chan *WSConn

	mu    sync.Mutex
	paths []string
}

// WSConn is the server side of one accepted connection.
type WSConn struct {
	Path string
	conn *websocket.Conn
}

// NewWSServer starts a server that upgrades every request. It is closed
// when the test ends.
func NewWSServer(t testing.TB) *WSServer {
	t.Helper()
	s := &WSServer{conns: make(chan *WSConn, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		s.conns <- &WSConn{Path: r.URL.Path, conn: conn}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

// BaseAddress returns the ws:// root of the server.
func (s *WSServer) BaseAddress() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Paths returns the request path of every accepted connection.
func (s *WSServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Accept waits for the next connection.
func (s *WSServer) Accept(t testing.TB) *WSConn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.conn.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket connection")
		return nil
	}
}

// Read returns the next frame sent by the client.
func (c *WSConn) Read(t testing.TB) protocol.Envelope {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

// Send stamps msg as if sent by sender and writes it to the client.
func (c *WSConn) Send(t testing.TB, sender string, msg protocol.Message) {
	t.Helper()
	protocol.NewStamper().Stamp(msg, sender)
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// SendRaw writes an arbitrary text frame.
func (c *WSConn) SendRaw(t testing.TB, data string) {
	t.Helper()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// Close drops the connection without a close handshake.
func (c *WSConn) Close() {
	_ = c.conn.Close()
}
