package pubsub

import "context"

// Listener wraps a broker subscription so callers can pull events one at a
// time instead of ranging over the channel.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to broker for the lifetime of ctx.
func NewListener[T any](ctx context.Context, broker *Broker[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Next blocks until the next event arrives. It returns false once the
// subscription ends or either context is done.
func (l *Listener[T]) Next(ctx context.Context) (Event[T], bool) {
	var zero Event[T]
	select {
	case <-ctx.Done():
		return zero, false
	case <-l.ctx.Done():
		return zero, false
	case event, ok := <-l.ch:
		if !ok {
			return zero, false
		}
		return event, true
	}
}

// C exposes the underlying subscription channel.
func (l *Listener[T]) C() <-chan Event[T] {
	return l.ch
}
