package registry

import (
	"context"
	"sync"
	"sync/atomic"
)

// constructionGuard serializes every build in one registry and tracks which
// Indexes are in flight on the current build chain.
//
// The lock is reentrant for the chain that holds it: acquiring it stores a
// frame in the returned context, and any later acquire with a context that
// carries the still-active chain passes straight through. The guard pointer
// itself is the context key, so chains of different registries never collide.
//
// Each build pushes its Index onto the context it hands to the factory, so
// a context knows its own ancestors. Recursion is an Index that is its own
// ancestor. An Index in flight on another goroutine of the same chain is not
// recursion; the caller waits for that build instead.
type constructionGuard struct {
	mu sync.Mutex

	setMu    sync.Mutex
	inFlight map[Index]chan struct{}
}

type chainToken struct {
	active atomic.Bool
}

// chainFrame is one link of a build chain's ancestor path. The root frame
// carries no Index.
type chainFrame struct {
	tok    *chainToken
	parent *chainFrame
	idx    Index
	root   bool
}

func newConstructionGuard() *constructionGuard {
	return &constructionGuard{inFlight: make(map[Index]chan struct{})}
}

func (g *constructionGuard) frame(ctx context.Context) *chainFrame {
	f, _ := ctx.Value(g).(*chainFrame)
	return f
}

// holds reports whether ctx belongs to the chain currently holding the lock.
func (g *constructionGuard) holds(ctx context.Context) bool {
	f := g.frame(ctx)
	return f != nil && f.tok.active.Load()
}

// acquire takes the construction lock unless ctx already holds it. The
// returned release must be called exactly once.
func (g *constructionGuard) acquire(ctx context.Context) (context.Context, func()) {
	if g.holds(ctx) {
		return ctx, func() {}
	}

	g.mu.Lock()
	tok := &chainToken{}
	tok.active.Store(true)
	return context.WithValue(ctx, g, &chainFrame{tok: tok, root: true}), func() {
		tok.active.Store(false)
		g.mu.Unlock()
	}
}

// ancestor reports whether idx is being built further up ctx's own path.
func (g *constructionGuard) ancestor(ctx context.Context, idx Index) bool {
	for f := g.frame(ctx); f != nil; f = f.parent {
		if !f.root && f.idx == idx {
			return true
		}
	}
	return false
}

// push returns the context a factory building idx receives.
func (g *constructionGuard) push(ctx context.Context, idx Index) context.Context {
	parent := g.frame(ctx)
	return context.WithValue(ctx, g, &chainFrame{tok: parent.tok, parent: parent, idx: idx})
}

// enter marks idx as under construction. When idx is already in flight it
// returns false and a channel closed once that build finishes.
func (g *constructionGuard) enter(idx Index) (<-chan struct{}, bool) {
	g.setMu.Lock()
	defer g.setMu.Unlock()

	if done, busy := g.inFlight[idx]; busy {
		return done, false
	}
	g.inFlight[idx] = make(chan struct{})
	return nil, true
}

func (g *constructionGuard) leave(idx Index) {
	g.setMu.Lock()
	defer g.setMu.Unlock()
	if done, ok := g.inFlight[idx]; ok {
		close(done)
		delete(g.inFlight, idx)
	}
}

func (g *constructionGuard) building() int {
	g.setMu.Lock()
	defer g.setMu.Unlock()
	return len(g.inFlight)
}
