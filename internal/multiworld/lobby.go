package multiworld

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/backoff"
	"github.com/cory-johannsen/multiworld/internal/protocol"
	"github.com/cory-johannsen/multiworld/internal/transport"
)

// LobbyEndpoint is the well-known lobby path.
const LobbyEndpoint = "api/lobby/"

// SessionConfig carries the settings shared by every session the bot opens.
type SessionConfig struct {
	BaseAddress string
	Token       string
	InboxSize   int
	Backoff     backoff.Config
}

func (c SessionConfig) transport(endpoint string) transport.Config {
	return transport.Config{
		BaseAddress: c.BaseAddress,
		Endpoint:    endpoint,
		Token:       c.Token,
		InboxSize:   c.InboxSize,
		Backoff:     c.Backoff,
	}
}

// sessionHandler adapts a pair of methods to transport.Handler.
type sessionHandler struct {
	connect func(ctx context.Context) error
	message func(ctx context.Context, env protocol.Envelope)
}

func (h sessionHandler) OnConnect(ctx context.Context) error { return h.connect(ctx) }

func (h sessionHandler) OnMessage(ctx context.Context, env protocol.Envelope) { h.message(ctx, env) }

// LobbyConfig configures a Lobby.
type LobbyConfig struct {
	SessionConfig
	// Endpoint overrides LobbyEndpoint.
	Endpoint string
	// TokenTTL bounds how long a creation token waits for RoomReady; zero waits forever.
	TokenTTL time.Duration
}

// CreateOptions describes a new game.
type CreateOptions struct {
	Name              string
	Description       string
	Password          string
	Mode              protocol.GameMode
	FinishResolution  protocol.Resolution
	ForfeitResolution protocol.Resolution
	ItemAnimation     protocol.Resolution
	ItemJingle        protocol.Resolution
	ItemToast         protocol.Resolution
	// CreationToken correlates the eventual RoomReady; a fresh UUID is used when empty.
	CreationToken string
}

// Lobby is the lobby session: it keeps the game directory in sync with
// LobbyEntry pushes and correlates Create requests with RoomReady.
type Lobby struct {
	session  *transport.Session
	games    *Directory
	tokens   *TokenRegistry
	logger   *zap.Logger
	newToken func() string
}

// NewLobby builds a disconnected Lobby that mirrors into games. A nil games
// gets a fresh Directory.
func NewLobby(cfg LobbyConfig, games *Directory, dialer transport.Dialer, logger *zap.Logger) (*Lobby, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if games == nil {
		games = NewDirectory()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = LobbyEndpoint
	}
	l := &Lobby{
		games:    games,
		tokens:   NewTokenRegistry(cfg.TokenTTL, logger),
		logger:   logger,
		newToken: uuid.NewString,
	}
	s, err := transport.NewSession(cfg.transport(endpoint),
		dialer, sessionHandler{connect: l.onConnect, message: l.onMessage}, logger)
	if err != nil {
		return nil, fmt.Errorf("building lobby session: %w", err)
	}
	l.session = s
	return l, nil
}

// Session returns the underlying connection session.
func (l *Lobby) Session() *transport.Session { return l.session }

// Games returns the directory of known games.
func (l *Lobby) Games() *Directory { return l.games }

// Tokens returns the pending creation tokens.
func (l *Lobby) Tokens() *TokenRegistry { return l.tokens }

// Connect opens the lobby connection and subscribes to lobby entries.
func (l *Lobby) Connect(ctx context.Context) error { return l.session.Connect(ctx) }

// Disconnect closes the lobby connection.
func (l *Lobby) Disconnect() { l.session.Disconnect() }

// Create asks the service to open a game and returns its creation token.
// done, if non-nil, is invoked once when the matching RoomReady arrives.
//
// Postcondition: done is registered under the returned token before the
// Create frame is sent.
func (l *Lobby) Create(ctx context.Context, opts CreateOptions, done Completion) (string, error) {
	token := opts.CreationToken
	if token == "" {
		token = l.newToken()
	}
	mode := opts.Mode
	if mode == protocol.ModeLobby {
		mode = protocol.ModeMultiworld
	}
	if done != nil {
		l.tokens.Register(token, done)
	}

	err := l.session.Send(ctx, &protocol.Create{
		Name:              opts.Name,
		Description:       opts.Description,
		Password:          opts.Password,
		Mode:              mode,
		FinishResolution:  opts.FinishResolution,
		ForfeitResolution: opts.ForfeitResolution,
		ItemAnimation:     opts.ItemAnimation,
		ItemJingle:        opts.ItemJingle,
		ItemToast:         opts.ItemToast,
		CreationToken:     token,
	})
	if err != nil {
		if done != nil {
			l.tokens.Take(token)
		}
		return "", err
	}
	l.logger.Info("create requested",
		zap.String("token", token),
		zap.String("name", opts.Name),
		zap.Stringer("mode", mode),
	)
	return token, nil
}

// Chat posts body to the lobby.
func (l *Lobby) Chat(ctx context.Context, body string) error {
	return l.session.Send(ctx, &protocol.Chat{Body: body})
}

func (l *Lobby) onConnect(ctx context.Context) error {
	return l.session.Send(ctx, &protocol.LobbyRequest{})
}

func (l *Lobby) onMessage(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeLobbyEntry:
		var e protocol.LobbyEntry
		if err := env.Bind(&e); err != nil {
			l.logger.Warn("dropping lobby entry", zap.Error(err))
			return
		}
		if e.Game == "" {
			l.logger.Warn("dropping lobby entry without game id")
			return
		}
		if e.Destroyed {
			l.removeGame(e.Game)
			return
		}
		l.games.Upsert(&e)

	case protocol.TypeRoomReady:
		var rr protocol.RoomReady
		if err := env.Bind(&rr); err != nil {
			l.logger.Warn("dropping room ready", zap.Error(err))
			return
		}
		// A malformed RoomReady leaves the pending completion registered.
		if rr.Game.Game == "" {
			l.logger.Warn("room ready without game id", zap.String("token", rr.CreationToken))
			return
		}
		done, ok := l.tokens.Take(rr.CreationToken)
		if !ok {
			l.logger.Debug("room ready for unknown creation token", zap.String("token", rr.CreationToken))
			return
		}
		g := l.games.Upsert(&rr.Game)
		l.logger.Info("room ready",
			zap.String("token", rr.CreationToken),
			zap.String("game", rr.Game.Game),
		)
		if err := done.complete(ctx, g); err != nil {
			l.logger.Warn("creation callback failed",
				zap.String("game", rr.Game.Game),
				zap.Error(err),
			)
		}

	default:
		l.logger.Debug("ignoring lobby message", zap.Stringer("type", env.Type))
	}
}

// removeGame disconnects the game's session, if any, then forgets the game.
func (l *Lobby) removeGame(id string) {
	g, ok := l.games.Game(id)
	if !ok {
		l.logger.Debug("destroyed game already removed", zap.String("game", id))
		return
	}
	if s := g.Session(); s != nil {
		s.Disconnect()
	}
	l.games.Remove(id)
	l.logger.Info("game removed", zap.String("game", id))
}
