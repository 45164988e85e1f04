package registry

import (
	"context"
	"sync"

	"github.com/zjrosen/registrar/internal/pubsub"
)

// Lazy holds a contract and remembers what it resolved to until the
// registry resets.
type Lazy[T any] struct {
	contract *Contract[T]
	slot     pubsub.SlotID

	mu    sync.Mutex
	gen   uint64
	value T
	ok    bool
}

// NewLazy opens a contract for the named instance of T.
func NewLazy[T any](r *Registry, name string) *Lazy[T] {
	l := &Lazy[T]{contract: NewContract[T](r, name)}
	l.slot = r.BeforeReset().Connect(func(context.Context) { l.drop() })
	return l
}

func (l *Lazy[T]) Contract() *Contract[T] { return l.contract }

// Get returns the remembered value or resolves it.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	if l.ok {
		v := l.value
		l.mu.Unlock()
		return v, nil
	}
	gen := l.gen
	l.mu.Unlock()

	// Resolve without holding mu; a reset may run meanwhile and drop.
	v, err := l.contract.Get(ctx)
	if err != nil {
		return v, err
	}

	l.mu.Lock()
	if l.gen == gen {
		l.value, l.ok = v, true
	}
	l.mu.Unlock()
	return v, nil
}

// Cached reports whether a value is remembered.
func (l *Lazy[T]) Cached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ok
}

func (l *Lazy[T]) drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value, l.ok = zero, false
	l.gen++
}

// Close disconnects from resets and closes the contract.
func (l *Lazy[T]) Close() error {
	l.contract.reg.BeforeReset().Disconnect(l.slot)
	l.drop()
	return l.contract.Close()
}
