// Package multiworld mirrors the service's lobby and game sessions locally:
// the directory of known games, the players and worlds of every joined game,
// and the typed actions that turn into outbound messages.
package multiworld

import (
	"context"
	"sync"
	"time"

	"github.com/cory-johannsen/multiworld/internal/protocol"
)

// GameInfo is the lobby's public metadata for one game.
type GameInfo struct {
	ID          string
	Name        string
	Description string
	HasPassword bool
	WorldCount  int
	Created     time.Time
	Mode        protocol.GameMode
}

// Game is the lobby-side entity of one remote game. Its metadata is mutated
// only by lobby events; the attached GameSession is set when the bot joins.
type Game struct {
	mu      sync.RWMutex
	info    GameInfo
	session *GameSession
}

// Info returns a snapshot of the game's metadata.
func (g *Game) Info() GameInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.info
}

// ID returns the session guid.
func (g *Game) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.info.ID
}

// Session returns the joined GameSession, or nil.
func (g *Game) Session() *GameSession {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// Attach binds s as the game's session and returns the one it replaced.
func (g *Game) Attach(s *GameSession) *GameSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.session
	g.session = s
	return prev
}

// apply merges the fields present in e. Absent fields keep their value.
func (g *Game) apply(e *protocol.LobbyEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.Name != nil {
		g.info.Name = *e.Name
	}
	if e.Description != nil {
		g.info.Description = *e.Description
	}
	if e.HasPassword != nil {
		g.info.HasPassword = *e.HasPassword
	}
	if e.WorldCount != nil {
		g.info.WorldCount = *e.WorldCount
	}
	if e.Mode != nil {
		g.info.Mode = *e.Mode
	}
	if g.info.Created.IsZero() && e.Created > 0 {
		g.info.Created = time.Unix(e.Created, 0).UTC()
	}
}

// Player is a participant of a game session, keyed by its identity token.
type Player struct {
	ID   string
	Name string

	session *GameSession
}

// Kick removes the player from its game.
func (p Player) Kick(ctx context.Context, reason string, resolution protocol.Resolution) error {
	return p.session.Kick(ctx, p.ID, reason, resolution)
}

// World is one world of a game session. The settings maps are opaque and
// never nil.
type World struct {
	Index       int
	Title       string
	Description string
	RNG         string
	Mystery     bool
	Logic       map[string]any
	Goals       map[string]any
	Gameplay    map[string]any
	Difficulty  map[string]any
	Claimed     bool

	session *GameSession
}

// Claim claims the world for the bot.
func (w World) Claim(ctx context.Context) error {
	return w.session.ClaimWorld(ctx, w.Index, true)
}

// Unclaim releases the world.
func (w World) Unclaim(ctx context.Context) error {
	return w.session.ClaimWorld(ctx, w.Index, false)
}

func worldFromDescription(wd *protocol.WorldDescription, s *GameSession) World {
	return World{
		Index:       wd.World,
		Title:       wd.Title,
		Description: wd.Description,
		RNG:         wd.RNG,
		Mystery:     wd.Mystery,
		Logic:       orEmpty(wd.Logic),
		Goals:       orEmpty(wd.Goals),
		Gameplay:    orEmpty(wd.Gameplay),
		Difficulty:  orEmpty(wd.Difficulty),
		session:     s,
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
