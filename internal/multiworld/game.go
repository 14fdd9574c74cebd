package multiworld

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/protocol"
	"github.com/cory-johannsen/multiworld/internal/transport"
)

// ErrUnknownKind is returned for a game kind with no endpoint template.
var ErrUnknownKind = errors.New("multiworld: unknown game kind")

// Kind selects the endpoint family of a game session.
type Kind string

const (
	KindMultiworld Kind = "mw"
	KindSecure1P   Kind = "s1p"
	KindGame       Kind = "game"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindMultiworld, KindSecure1P, KindGame:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Endpoint returns the path of game id under this kind.
func (k Kind) Endpoint(id string) (string, error) {
	if _, err := ParseKind(string(k)); err != nil {
		return "", err
	}
	return fmt.Sprintf("api/%s/%s", k, id), nil
}

// GameConfig configures a GameSession.
type GameConfig struct {
	SessionConfig
	Kind Kind
	// PlayerName is the display name sent with every knock.
	PlayerName string
	// Password is sent with the knock when the game is password-protected.
	Password string
}

// GameSession is the connection to one game. It mirrors the game's players
// and worlds from server pushes.
type GameSession struct {
	game       *Game
	kind       Kind
	playerName string
	password   string
	session    *transport.Session
	logger     *zap.Logger

	mu      sync.RWMutex
	players map[string]Player
	worlds  map[int]World
}

// NewGameSession builds a disconnected session for game.
//
// Precondition: game is non-nil.
func NewGameSession(game *Game, cfg GameConfig, dialer transport.Dialer, logger *zap.Logger) (*GameSession, error) {
	endpoint, err := cfg.Kind.Endpoint(game.ID())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gs := &GameSession{
		game:       game,
		kind:       cfg.Kind,
		playerName: cfg.PlayerName,
		password:   cfg.Password,
		logger:     logger.With(zap.String("game", game.ID())),
		players:    make(map[string]Player),
		worlds:     make(map[int]World),
	}
	s, err := transport.NewSession(cfg.transport(endpoint),
		dialer, sessionHandler{connect: gs.onConnect, message: gs.onMessage}, logger)
	if err != nil {
		return nil, fmt.Errorf("building game session: %w", err)
	}
	gs.session = s
	return gs, nil
}

// ID returns the game's session guid.
func (s *GameSession) ID() string { return s.game.ID() }

// Kind returns the endpoint family.
func (s *GameSession) Kind() Kind { return s.kind }

// Game returns the lobby entity this session belongs to.
func (s *GameSession) Game() *Game { return s.game }

// Session returns the underlying connection session.
func (s *GameSession) Session() *transport.Session { return s.session }

// Connect opens the connection and knocks.
func (s *GameSession) Connect(ctx context.Context) error { return s.session.Connect(ctx) }

// Disconnect closes the connection.
func (s *GameSession) Disconnect() { s.session.Disconnect() }

// Knock joins the game. The password travels only when the game is
// password-protected.
func (s *GameSession) Knock(ctx context.Context) error {
	password := ""
	if s.game.Info().HasPassword {
		password = s.password
	}
	return s.session.Send(ctx, &protocol.Knock{PlayerName: s.playerName, Password: password})
}

// Destroy closes the game on the service, optionally saving it.
func (s *GameSession) Destroy(ctx context.Context, save bool) error {
	return s.session.Send(ctx, &protocol.Destroy{Save: save})
}

// ImportRecords submits a bulk settings payload.
func (s *GameSession) ImportRecords(ctx context.Context, body string, importType protocol.ImportType) error {
	return s.session.Send(ctx, &protocol.ImportRecords{Body: body, ImportType: importType})
}

// ClaimWorld claims or releases world index.
func (s *GameSession) ClaimWorld(ctx context.Context, index int, claim bool) error {
	return s.session.Send(ctx, &protocol.WorldClaim{World: index, Claim: claim})
}

// Kick removes the player identified by target.
func (s *GameSession) Kick(ctx context.Context, target, reason string, resolution protocol.Resolution) error {
	return s.session.Send(ctx, &protocol.Kick{Target: target, Reason: reason, Resolution: resolution})
}

// Chat posts body to the game.
func (s *GameSession) Chat(ctx context.Context, body string) error {
	return s.session.Send(ctx, &protocol.Chat{Body: body})
}

// GetPlayer returns the player with identity id.
func (s *GameSession) GetPlayer(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// GetWorld returns the world with the given index.
func (s *GameSession) GetWorld(index int) (World, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.worlds[index]
	return w, ok
}

// Players returns every known player ordered by name, then id.
func (s *GameSession) Players() []Player {
	s.mu.RLock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Worlds returns every known world ordered by index.
func (s *GameSession) Worlds() []World {
	s.mu.RLock()
	out := make([]World, 0, len(s.worlds))
	for _, w := range s.worlds {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (s *GameSession) onConnect(ctx context.Context) error {
	return s.Knock(ctx)
}

func (s *GameSession) onMessage(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeIdentify:
		var m protocol.Identify
		if err := env.Bind(&m); err != nil {
			s.logger.Warn("dropping identify", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.players[env.Sender] = Player{ID: env.Sender, Name: m.Name, session: s}
		s.mu.Unlock()

	case protocol.TypeWorldDescription:
		var m protocol.WorldDescription
		if err := env.Bind(&m); err != nil {
			s.logger.Warn("dropping world description", zap.Error(err))
			return
		}
		w := worldFromDescription(&m, s)
		s.mu.Lock()
		s.worlds[w.Index] = w
		s.mu.Unlock()

	case protocol.TypeWorldClaim:
		var m protocol.WorldClaim
		if err := env.Bind(&m); err != nil {
			s.logger.Warn("dropping world claim", zap.Error(err))
			return
		}
		s.mu.Lock()
		w, ok := s.worlds[m.World]
		if ok {
			w.Claimed = m.Claim
			s.worlds[m.World] = w
		}
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("claim for unknown world ignored", zap.Int("world", m.World))
		}

	case protocol.TypeImportRecords:
		if err := s.Knock(ctx); err != nil {
			s.logger.Warn("re-knock failed", zap.Error(err))
		}

	default:
		s.logger.Debug("ignoring game message", zap.Stringer("type", env.Type))
	}
}
