// Package testutil provides in-memory sockets, a scripted dialer and a
// loopback websocket server for exercising sessions without the network.
package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/multiworld/internal/protocol"
	"github.com/cory-johannsen/multiworld/internal/transport"
)

// ErrDialRefused is returned by a FakeDialer told to fail.
var ErrDialRefused = errors.New("testutil: dial refused")

// FakeSocket is an in-memory transport.Socket. Frames pushed by the test are
// returned by ReadMessage; frames written by the session are recorded.
type FakeSocket struct {
	URL string

	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	notify   chan struct{}
}

// NewFakeSocket returns an open FakeSocket.
func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
}

// ReadMessage blocks for the next pushed frame. It returns io.EOF once the
// socket is closed.
func (s *FakeSocket) ReadMessage() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	default:
	}
	select {
	case data := <-s.in:
		return data, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

// WriteMessage records data unless the socket is closed or told to fail.
func (s *FakeSocket) WriteMessage(data []byte) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	s.written = append(s.written, append([]byte(nil), data...))
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close is idempotent.
func (s *FakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// IsClosed reports whether Close has been called.
func (s *FakeSocket) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FailWrites makes every subsequent WriteMessage return err.
func (s *FakeSocket) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// PushRaw delivers a raw frame to the reader.
func (s *FakeSocket) PushRaw(t testing.TB, data string) {
	t.Helper()
	select {
	case s.in <- []byte(data):
	case <-time.After(time.Second):
		t.Fatalf("timed out pushing frame %q", data)
	}
}

// Push stamps msg as if sent by sender and delivers it to the reader.
func (s *FakeSocket) Push(t testing.TB, sender string, msg protocol.Message) {
	t.Helper()
	protocol.NewStamper().Stamp(msg, sender)
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	s.PushRaw(t, string(data))
}

// Written decodes every recorded outbound frame.
func (s *FakeSocket) Written(t testing.TB) []protocol.Envelope {
	t.Helper()
	s.mu.Lock()
	frames := append([][]byte(nil), s.written...)
	s.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

// WaitWritten blocks until at least n frames were written and returns them.
func (s *FakeSocket) WaitWritten(t testing.TB, n int) []protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		count := len(s.written)
		s.mu.Unlock()
		if count >= n {
			return s.Written(t)
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d written frames, have %d", n, count)
		}
	}
}

// WrittenOfType returns the recorded frames with the given type tag.
func (s *FakeSocket) WrittenOfType(t testing.TB, mt protocol.MessageType) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range s.Written(t) {
		if env.Type == mt {
			out = append(out, env)
		}
	}
	return out
}

// FakeDialer hands out FakeSockets and records every attempt.
type FakeDialer struct {
	mu       sync.Mutex
	failures int
	attempts []string
	sockets  []*FakeSocket
	dialed   chan *FakeSocket
}

// NewFakeDialer returns a dialer whose dials all succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{dialed: make(chan *FakeSocket, 256)}
}

// FailNext makes the next n dials fail. A negative n fails every dial until
// FailNext is called again.
func (d *FakeDialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// Dial implements transport.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, rawURL string) (transport.Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.attempts = append(d.attempts, rawURL)
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		d.mu.Unlock()
		return nil, ErrDialRefused
	}
	sock := NewFakeSocket()
	sock.URL = rawURL
	d.sockets = append(d.sockets, sock)
	d.mu.Unlock()

	select {
	case d.dialed <- sock:
	default:
	}
	return sock, nil
}

// Attempts returns the urls of every dial attempt, successful or not.
func (d *FakeDialer) Attempts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempts...)
}

// Sockets returns every socket handed out, oldest first.
func (d *FakeDialer) Sockets() []*FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSocket(nil), d.sockets...)
}

// Last returns the most recent socket, or nil.
func (d *FakeDialer) Last() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// WaitDial blocks until the next successful dial and returns its socket.
func (d *FakeDialer) WaitDial(t testing.TB) *FakeSocket {
	t.Helper()
	select {
	case sock := <-d.dialed:
		return sock
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// Eventually polls cond until it holds or fails the test after two seconds.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
