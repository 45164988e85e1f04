package registry

import (
	"context"
	"sync"
)

// Registration is a factory registration that can be withdrawn.
type Registration struct {
	reg   *Registry
	index Index
	prio  Priority
	once  sync.Once
	err   error
}

// Provide registers fn for the named instance of T and returns a handle
// whose Close unregisters it.
func Provide[T any](r *Registry, name string, prio Priority, fn func(ctx context.Context, name string) (T, error)) (*Registration, error) {
	if err := RegisterFactoryFunc(r, name, prio, fn); err != nil {
		return nil, err
	}
	return &Registration{reg: r, index: IndexOf[T](name), prio: prio}, nil
}

func (g *Registration) Index() Index       { return g.index }
func (g *Registration) Priority() Priority { return g.prio }

// Close unregisters the factory. Only the first call does work.
func (g *Registration) Close() error {
	g.once.Do(func() {
		g.err = g.reg.UnregisterFactory(g.index.Name, g.prio, g.index.Type)
	})
	return g.err
}
