// Package bot orchestrates one lobby session and the game sessions the bot
// has joined.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/multiworld/internal/backoff"
	"github.com/cory-johannsen/multiworld/internal/multiworld"
	"github.com/cory-johannsen/multiworld/internal/transport"
)

// ErrUnknownKind is returned by Join for a kind with no endpoint.
var ErrUnknownKind = multiworld.ErrUnknownKind

// ErrStopped is returned by Join once Stop has been called.
var ErrStopped = errors.New("bot: stopped")

// Config holds the identity and connection settings of a Bot.
type Config struct {
	BaseAddress   string
	LobbyEndpoint string
	// Token is the identity stamped on every outbound frame.
	Token string
	// Name is the display name used when knocking.
	Name        string
	DefaultKind multiworld.Kind
	InboxSize   int
	Backoff     backoff.Config
	TokenTTL    time.Duration
	// SweepInterval is how often Run evicts expired creation tokens.
	SweepInterval time.Duration
}

// Bot holds the lobby and every joined game session.
type Bot struct {
	cfg    Config
	dialer transport.Dialer
	logger *zap.Logger
	lobby  *multiworld.Lobby

	joinMu  sync.Mutex
	stopped bool
}

// New builds a Bot whose sessions are all disconnected.
//
// Precondition: dialer is non-nil.
func New(cfg Config, dialer transport.Dialer, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = multiworld.KindMultiworld
	}
	if _, err := multiworld.ParseKind(string(cfg.DefaultKind)); err != nil {
		return nil, err
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = backoff.DefaultConfig()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	lobby, err := multiworld.NewLobby(multiworld.LobbyConfig{
		SessionConfig: cfg.session(),
		Endpoint:      cfg.LobbyEndpoint,
		TokenTTL:      cfg.TokenTTL,
	}, multiworld.NewDirectory(), dialer, logger)
	if err != nil {
		return nil, err
	}
	return &Bot{cfg: cfg, dialer: dialer, logger: logger, lobby: lobby}, nil
}

func (c Config) session() multiworld.SessionConfig {
	return multiworld.SessionConfig{
		BaseAddress: c.BaseAddress,
		Token:       c.Token,
		InboxSize:   c.InboxSize,
		Backoff:     c.Backoff,
	}
}

// Name returns the display name.
func (b *Bot) Name() string { return b.cfg.Name }

// Lobby returns the lobby session.
func (b *Bot) Lobby() *multiworld.Lobby { return b.lobby }

// Games returns the directory of known games.
func (b *Bot) Games() *multiworld.Directory { return b.lobby.Games() }

// Start connects the lobby.
func (b *Bot) Start(ctx context.Context) error {
	return b.lobby.Connect(ctx)
}

// Run connects the lobby, retrying with backoff until it succeeds, then
// blocks until ctx is done while periodically sweeping expired creation
// tokens. Every session is disconnected before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	defer b.Stop()

	policy := backoff.New(b.cfg.Backoff)
	for attempt := 1; ; attempt++ {
		err := b.Start(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		delay := policy.Next()
		b.logger.Warn("lobby connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
	b.logger.Info("bot started", zap.String("name", b.cfg.Name))

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := b.lobby.Tokens().Sweep(now); n > 0 {
				b.logger.Info("swept expired creation tokens", zap.Int("count", n))
			}
		}
	}
}

// Join connects a game session for id and registers it. An empty kind uses
// the configured default. Joining a game already joined with the same kind
// returns the existing session.
//
// Postcondition: on a nil error the session is registered and connected. A
// connect failure still registers the session; its next action reconnects.
func (b *Bot) Join(ctx context.Context, id string, kind multiworld.Kind, password string) (*multiworld.GameSession, error) {
	if kind == "" {
		kind = b.cfg.DefaultKind
	}
	if _, err := multiworld.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	b.joinMu.Lock()
	if b.stopped {
		b.joinMu.Unlock()
		return nil, ErrStopped
	}
	g := b.lobby.Games().Ensure(id)
	gs := g.Session()
	if gs == nil || gs.Kind() != kind {
		var err error
		gs, err = multiworld.NewGameSession(g, multiworld.GameConfig{
			SessionConfig: b.cfg.session(),
			Kind:          kind,
			PlayerName:    b.cfg.Name,
			Password:      password,
		}, b.dialer, b.logger)
		if err != nil {
			b.joinMu.Unlock()
			return nil, err
		}
		if prev := g.Attach(gs); prev != nil {
			prev.Disconnect()
		}
	}
	b.joinMu.Unlock()

	if err := gs.Connect(ctx); err != nil {
		return gs, fmt.Errorf("joining %s: %w", id, err)
	}
	b.logger.Info("joined game", zap.String("game", id), zap.String("kind", string(kind)))
	return gs, nil
}

// GetSession returns the joined session for id.
func (b *Bot) GetSession(id string) (*multiworld.GameSession, bool) {
	g, ok := b.lobby.Games().Game(id)
	if !ok {
		return nil, false
	}
	gs := g.Session()
	return gs, gs != nil
}

// Sessions returns every joined session ordered by game id.
func (b *Bot) Sessions() []*multiworld.GameSession {
	var out []*multiworld.GameSession
	for _, g := range b.lobby.Games().Games() {
		if gs := g.Session(); gs != nil {
			out = append(out, gs)
		}
	}
	return out
}

// Leave detaches and disconnects the session for id. It reports whether a
// session was joined.
func (b *Bot) Leave(id string) bool {
	g, ok := b.lobby.Games().Game(id)
	if !ok {
		return false
	}
	b.joinMu.Lock()
	prev := g.Attach(nil)
	b.joinMu.Unlock()
	if prev == nil {
		return false
	}
	prev.Disconnect()
	b.logger.Info("left game", zap.String("game", id))
	return true
}

// Create requests a new game. done, if non-nil, runs when it is ready.
func (b *Bot) Create(ctx context.Context, opts multiworld.CreateOptions, done multiworld.Completion) (string, error) {
	return b.lobby.Create(ctx, opts, done)
}

// CreateAndJoin requests a new game and joins it once the lobby confirms it.
func (b *Bot) CreateAndJoin(ctx context.Context, opts multiworld.CreateOptions, kind multiworld.Kind) (string, error) {
	return b.lobby.Create(ctx, opts, multiworld.CompletionTask(func(ctx context.Context, g *multiworld.Game) error {
		_, err := b.Join(ctx, g.ID(), kind, opts.Password)
		return err
	}))
}

// Stop disconnects every game session concurrently, then the lobby. Joins
// after Stop fail with ErrStopped.
func (b *Bot) Stop() {
	b.joinMu.Lock()
	b.stopped = true
	b.joinMu.Unlock()

	var eg errgroup.Group
	for _, gs := range b.Sessions() {
		gs := gs
		eg.Go(func() error {
			gs.Disconnect()
			return nil
		})
	}
	_ = eg.Wait()
	b.lobby.Disconnect()
	b.logger.Info("bot stopped")
}
