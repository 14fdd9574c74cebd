package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one open, message-oriented connection.
//
// ReadMessage is called from a single goroutine; WriteMessage is serialized
// by the owning Session. Close must be safe to call concurrently with a
// blocked ReadMessage and must unblock it.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens Sockets.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Socket, error)
}

// WebsocketDialer dials secure websocket endpoints.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each frame write; zero disables the deadline.
	WriteTimeout time.Duration
	// Header is sent with the handshake request.
	Header http.Header
	// TLSConfig overrides the default TLS client configuration.
	TLSConfig *tls.Config
}

// Dial opens a websocket to rawURL.
//
// Postcondition: returns an open Socket, or an error wrapping ErrConnect.
func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: handshake status %d: %v", ErrConnect, rawURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, rawURL, err)
	}
	return &wsSocket{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type wsSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(data []byte) error {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// JoinURL joins a base address and an endpoint path with exactly one slash.
func JoinURL(base, endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing endpoint url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
