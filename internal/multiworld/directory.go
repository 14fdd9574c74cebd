package multiworld

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/multiworld/internal/protocol"
)

// Directory is the registry of known games, keyed by session guid.
// All methods are safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	games map[string]*Game
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{games: make(map[string]*Game)}
}

// Game returns the game with the given id.
func (d *Directory) Game(id string) (*Game, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.games[id]
	return g, ok
}

// Games returns every known game ordered by id.
func (d *Directory) Games() []*Game {
	d.mu.RLock()
	out := make([]*Game, 0, len(d.games))
	for _, g := range d.games {
		out = append(out, g)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of known games.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.games)
}

// Ensure returns the game with the given id, creating an empty entry if it
// is unseen.
func (d *Directory) Ensure(id string) *Game {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.games[id]
	if !ok {
		g = &Game{info: GameInfo{ID: id}}
		d.games[id] = g
	}
	return g
}

// Upsert merges e into the game it references, creating the game if unseen.
//
// Postcondition: fields absent from e keep their prior values.
func (d *Directory) Upsert(e *protocol.LobbyEntry) *Game {
	g := d.Ensure(e.Game)
	g.apply(e)
	return g
}

// Remove deletes the game with the given id and returns it.
func (d *Directory) Remove(id string) (*Game, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.games[id]
	if ok {
		delete(d.games, id)
	}
	return g, ok
}
