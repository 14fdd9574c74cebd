// Package transport owns the lifecycle of one socket endpoint: connect,
// listen, dispatch, disconnect, and reconnect-on-drop with backoff.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/backoff"
	"github.com/cory-johannsen/multiworld/internal/protocol"
)

var (
	// ErrConnect marks a failed handshake, DNS lookup, or TLS negotiation.
	ErrConnect = errors.New("transport: connect failed")
	// ErrSend marks a failed socket write.
	ErrSend = errors.New("transport: send failed")
	// ErrClosed marks a send attempted after the socket went away.
	ErrClosed = errors.New("transport: socket closed")
)

// State is the observable connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handler receives the callbacks of a Session.
type Handler interface {
	// OnConnect runs after every successful handshake. A returned error
	// closes the new socket.
	OnConnect(ctx context.Context) error
	// OnMessage receives decoded frames one at a time, in wire order.
	OnMessage(ctx context.Context, env protocol.Envelope)
}

// Drop describes an outbound message that was not transmitted.
type Drop struct {
	Type protocol.MessageType
	Err  error
}

// Config describes one endpoint.
type Config struct {
	// BaseAddress is the service root, e.g. "wss://mw.alttpr.com".
	BaseAddress string
	// Endpoint is the path below BaseAddress.
	Endpoint string
	// Token is the identity stamped as sender on every outbound frame.
	Token string
	// InboxSize bounds the frames read but not yet dispatched.
	InboxSize int
	// Backoff shapes the delays between reconnection attempts.
	Backoff backoff.Config
}

type reconnectKey struct{}

// dispatcherKey and hookKey mark the contexts handed to OnMessage and
// OnConnect with the listener they serve.
type (
	dispatcherKey struct{}
	hookKey       struct{}
)

type listener struct {
	sock   Socket
	inbox  chan protocol.Envelope
	ctx    context.Context
	cancel context.CancelFunc
	// done closes when the read loop exits, dispatched when the dispatcher does.
	done       chan struct{}
	dispatched chan struct{}
}

// Session is a Connection Session. All methods are safe for concurrent use.
//
// At most one listener and at most one reconnection loop exist at any time.
type Session struct {
	cfg     Config
	url     string
	dialer  Dialer
	handler Handler
	logger  *zap.Logger
	stamper *protocol.Stamper

	// connectSem serializes handshakes and teardown; writeMu serializes frame
	// writes. connectSem is a channel so a waiter can give up on cancellation.
	connectSem chan struct{}
	writeMu    sync.Mutex

	mu            sync.Mutex
	sock          Socket
	connecting    bool
	closing       bool
	listener      *listener
	last          *listener
	reconnecting  bool
	stopReconnect context.CancelFunc
	reconnectDone chan struct{}
	onDrop        func(Drop)

	activeListeners atomic.Int32
}

// NewSession builds a disconnected Session.
//
// Precondition: dialer and handler must be non-nil.
// Postcondition: returns a Session in StateDisconnected, or an error if the
// endpoint url is malformed.
func NewSession(cfg Config, dialer Dialer, handler Handler, logger *zap.Logger) (*Session, error) {
	u, err := JoinURL(cfg.BaseAddress, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = backoff.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:     cfg,
		url:     u,
		dialer:  dialer,
		handler: handler,
		logger:  logger.With(zap.String("endpoint", cfg.Endpoint)),
		stamper: protocol.NewStamper(),

		connectSem: make(chan struct{}, 1),
	}, nil
}

// URL returns the resolved endpoint address.
func (s *Session) URL() string { return s.url }

// Endpoint returns the endpoint path.
func (s *Session) Endpoint() string { return s.cfg.Endpoint }

// SetDropHandler registers fn to observe every dropped outbound message.
func (s *Session) SetDropHandler(fn func(Drop)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = fn
}

// State reports the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.sock != nil:
		return StateConnected
	case s.connecting:
		return StateConnecting
	case s.reconnecting:
		return StateReconnecting
	default:
		return StateDisconnected
	}
}

// ActiveListeners reports how many listen loops are running. It is 0 or 1.
func (s *Session) ActiveListeners() int {
	return int(s.activeListeners.Load())
}

// Connect performs one handshake attempt unless already connected. Failures
// are not retried here.
//
// The post-connect hook runs with a context that is cancelled when the new
// listener is halted, so a Disconnect during the hook cannot be undone by a
// Send from inside it.
//
// Postcondition: on nil the Session is connected with exactly one listener
// running and the post-connect hook has run.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() == StateConnected {
		return nil
	}
	if err := orphanedHook(ctx); err != nil {
		return err
	}

	if err := s.lockConnect(ctx); err != nil {
		return err
	}
	if err := orphanedHook(ctx); err != nil {
		s.unlockConnect()
		return err
	}
	s.mu.Lock()
	if s.sock != nil {
		s.mu.Unlock()
		s.unlockConnect()
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		s.unlockConnect()
		return err
	}
	if s.closing {
		s.mu.Unlock()
		s.unlockConnect()
		return fmt.Errorf("%w: disconnect in progress", ErrClosed)
	}
	if d, ok := ctx.Value(dispatcherKey{}).(*listener); ok && d == s.last {
		// The socket went away under this dispatcher. Its read loop schedules
		// recovery once the handler returns.
		s.mu.Unlock()
		s.unlockConnect()
		return fmt.Errorf("%w: connection lost while dispatching", ErrClosed)
	}
	s.connecting = true
	stale := s.last
	s.listener = nil
	s.mu.Unlock()

	if stale != nil {
		s.halt(stale)
	}

	s.logger.Debug("connecting", zap.String("url", s.url))
	sock, err := s.dialer.Dial(ctx, s.url)
	if err == nil && ctx.Err() != nil {
		_ = sock.Close()
		err = ctx.Err()
	}

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.mu.Unlock()
		s.unlockConnect()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("connect failed", zap.Error(err))
		if !errors.Is(err, ErrConnect) {
			err = fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return err
	}
	l := s.startListenerLocked(sock)
	s.mu.Unlock()
	s.unlockConnect()

	s.logger.Info("connected", zap.String("url", s.url))
	hookCtx, cancelHook := context.WithCancel(context.WithValue(ctx, hookKey{}, l))
	stop := context.AfterFunc(l.ctx, cancelHook)
	err = s.handler.OnConnect(hookCtx)
	stop()
	cancelHook()

	if l.ctx.Err() != nil {
		s.logger.Info("connection closed during post-connect hook")
		return fmt.Errorf("%w: closed during post-connect", ErrClosed)
	}
	if err != nil {
		s.logger.Warn("post-connect hook failed", zap.Error(err))
		s.dropSocket(l.sock)
		return fmt.Errorf("%w: post-connect: %v", ErrConnect, err)
	}
	return nil
}

// orphanedHook fails when ctx belongs to a post-connect hook whose listener
// has already been halted.
func orphanedHook(ctx context.Context) error {
	if l, ok := ctx.Value(hookKey{}).(*listener); ok && l.ctx.Err() != nil {
		return fmt.Errorf("%w: closed during post-connect", ErrClosed)
	}
	return nil
}

func (s *Session) lockConnect(ctx context.Context) error {
	select {
	case s.connectSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlockConnect() { <-s.connectSem }

// EnsureConnected blocks until the Session is connected or a connect attempt
// fails. An in-flight reconnection loop is awaited before attempting.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.sock != nil {
		s.mu.Unlock()
		return nil
	}
	waitFor := s.reconnectDone
	if !s.reconnecting || ctx.Value(reconnectKey{}) != nil {
		waitFor = nil
	}
	s.mu.Unlock()

	if waitFor != nil {
		select {
		case <-waitFor:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Connect(ctx)
}

// Send transmits msg, connecting first if needed. msg is stamped with a fresh
// id, timestamp and sender once the connection is established.
//
// Connect and write failures are logged and reported to the drop handler but
// not returned: delivery is best-effort. Returned errors are limited to
// protocol.ErrSerialization and context cancellation.
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	if err := s.EnsureConnected(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.dropped(msg, err)
		return nil
	}

	s.stamper.Stamp(msg, s.cfg.Token)
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("abandoning unencodable message",
			zap.Stringer("type", msg.Kind()),
			zap.Error(err),
		)
		return err
	}

	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	if sock == nil {
		s.dropped(msg, ErrClosed)
		return nil
	}

	s.writeMu.Lock()
	err = sock.WriteMessage(data)
	s.writeMu.Unlock()
	if err != nil {
		s.dropSocket(sock)
		s.dropped(msg, fmt.Errorf("%w: %v", ErrSend, err))
		return nil
	}

	s.logger.Debug("payload sent",
		zap.Stringer("type", msg.Kind()),
		zap.String("payload", protocol.Summary(msg)),
	)
	return nil
}

// Disconnect cancels any reconnection loop, stops the listener and closes the
// socket. It is a no-op when already disconnected. It waits for an OnMessage
// call in progress, so it must not be called from this Session's own handler.
//
// Postcondition: StateDisconnected, no listener running, no reconnect
// scheduled, and no further OnMessage calls.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.closing = true
	cancel, done := s.stopReconnect, s.reconnectDone
	if !s.reconnecting {
		cancel = nil
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	_ = s.lockConnect(context.Background())
	s.mu.Lock()
	l, sock := s.last, s.sock
	s.listener, s.last, s.sock = nil, nil, nil
	s.mu.Unlock()

	if l != nil {
		s.halt(l)
	}
	if sock != nil {
		_ = sock.Close()
		s.logger.Info("disconnected")
	}

	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()
	s.unlockConnect()
}

func (s *Session) startListenerLocked(sock Socket) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		sock:   sock,
		inbox:  make(chan protocol.Envelope, s.cfg.InboxSize),
		ctx:    ctx,
		cancel: cancel,

		done:       make(chan struct{}),
		dispatched: make(chan struct{}),
	}
	s.sock = sock
	s.listener = l
	s.last = l
	s.activeListeners.Add(1)
	go s.listen(l)
	go s.dispatch(l)
	return l
}

// halt stops l and waits for its read loop and dispatcher to exit. Halting an
// exited listener returns immediately. Once halt returns l delivers nothing.
func (s *Session) halt(l *listener) {
	l.cancel()
	_ = l.sock.Close()
	<-l.done
	<-l.dispatched
}

func (s *Session) listen(l *listener) {
	defer close(l.done)
	defer s.activeListeners.Add(-1)
	defer close(l.inbox)

	for {
		data, err := l.sock.ReadMessage()
		if err != nil {
			s.listenerExited(l, err)
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.logger.Debug("payload received", zap.Stringer("type", env.Type))
		select {
		case l.inbox <- env:
		case <-l.ctx.Done():
			return
		}
	}
}

// dispatch feeds queued frames to OnMessage in order. Cancellation wins over
// frames still buffered in the inbox.
func (s *Session) dispatch(l *listener) {
	defer close(l.dispatched)
	defer l.cancel()
	ctx := context.WithValue(l.ctx, dispatcherKey{}, l)
	for {
		select {
		case <-l.ctx.Done():
			return
		case env, ok := <-l.inbox:
			if !ok || l.ctx.Err() != nil {
				return
			}
			s.handler.OnMessage(ctx, env)
		}
	}
}

// listenerExited handles a read failure. Only the current listener schedules
// a reconnection, and only when none is in flight.
func (s *Session) listenerExited(l *listener, cause error) {
	s.mu.Lock()
	if s.listener != l {
		s.mu.Unlock()
		return
	}
	s.listener = nil
	if s.sock == l.sock {
		s.sock = nil
	}
	var (
		ctx  context.Context
		done chan struct{}
	)
	start := !s.reconnecting && !s.closing
	if start {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.WithValue(context.Background(), reconnectKey{}, true))
		done = make(chan struct{})
		s.reconnecting = true
		s.stopReconnect = cancel
		s.reconnectDone = done
	}
	s.mu.Unlock()

	_ = l.sock.Close()
	s.logger.Info("connection closed", zap.Error(cause))
	if start {
		go s.reconnect(ctx, done)
	}
}

func (s *Session) reconnect(ctx context.Context, done chan struct{}) {
	defer close(done)

	var stale *listener
	s.mu.Lock()
	if s.sock == nil {
		stale = s.last
		s.listener = nil
	}
	s.mu.Unlock()
	if stale != nil {
		s.halt(stale)
	}

	policy := backoff.New(s.cfg.Backoff)
	for attempt := 1; ; attempt++ {
		delay := policy.Next()
		err := s.Connect(ctx)

		s.mu.Lock()
		if s.sock != nil || ctx.Err() != nil {
			s.reconnecting = false
			s.stopReconnect = nil
			s.mu.Unlock()
			if err == nil && ctx.Err() == nil {
				s.logger.Info("reconnected", zap.Int("attempt", attempt))
			}
			return
		}
		s.mu.Unlock()

		s.logger.Info("reconnect attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			s.reconnecting = false
			s.stopReconnect = nil
			s.mu.Unlock()
			return
		case <-timer.C:
		}
	}
}

// dropSocket closes sock and clears the handle if it is still current. The
// listener observes the closure and schedules reconnection.
func (s *Session) dropSocket(sock Socket) {
	s.mu.Lock()
	if s.sock == sock {
		s.sock = nil
	}
	s.mu.Unlock()
	_ = sock.Close()
}

func (s *Session) dropped(msg protocol.Message, err error) {
	s.logger.Warn("message dropped",
		zap.Stringer("type", msg.Kind()),
		zap.Error(err),
	)
	s.mu.Lock()
	fn := s.onDrop
	s.mu.Unlock()
	if fn != nil {
		fn(Drop{Type: msg.Kind(), Err: err})
	}
}
