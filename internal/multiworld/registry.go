package multiworld

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Completion is invoked once with the game confirmed by RoomReady. It is
// either a CompletionFunc or a CompletionTask.
type Completion interface {
	complete(ctx context.Context, g *Game) error
}

// CompletionFunc is a synchronous completion.
type CompletionFunc func(g *Game)

func (f CompletionFunc) complete(_ context.Context, g *Game) error {
	f(g)
	return nil
}

// CompletionTask is a completion that performs blocking work. The lobby
// dispatcher waits for it to return before handling the next frame.
type CompletionTask func(ctx context.Context, g *Game) error

func (f CompletionTask) complete(ctx context.Context, g *Game) error {
	return f(ctx, g)
}

type pendingCompletion struct {
	done     Completion
	deadline time.Time
}

// TokenRegistry correlates creation tokens with pending completions. Entries
// expire after a TTL so that a RoomReady that never arrives does not leak.
type TokenRegistry struct {
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingCompletion
}

// NewTokenRegistry returns an empty registry. A ttl of zero disables expiry.
func NewTokenRegistry(ttl time.Duration, logger *zap.Logger) *TokenRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRegistry{
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		pending: make(map[string]pendingCompletion),
	}
}

// Register stores done under token, replacing any prior entry.
func (r *TokenRegistry) Register(token string, done Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	p := pendingCompletion{done: done}
	if r.ttl > 0 {
		p.deadline = now.Add(r.ttl)
	}
	r.pending[token] = p
}

// Take removes and returns the completion registered under token. Expired
// entries are reported as absent.
func (r *TokenRegistry) Take(token string) (Completion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(r.now())
	p, ok := r.pending[token]
	if !ok {
		return nil, false
	}
	delete(r.pending, token)
	return p.done, true
}

// Sweep evicts every entry whose deadline is before now and returns how many
// were removed.
func (r *TokenRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

// Len returns the number of pending entries, expired or not.
func (r *TokenRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *TokenRegistry) sweepLocked(now time.Time) int {
	n := 0
	for token, p := range r.pending {
		if p.deadline.IsZero() || !now.After(p.deadline) {
			continue
		}
		delete(r.pending, token)
		n++
		r.logger.Warn("creation token expired without RoomReady",
			zap.String("token", token),
			zap.Duration("ttl", r.ttl),
		)
	}
	return n
}
