package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// closeLog records the order objects are closed in.
type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *closeLog) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

type tracked struct {
	name string
	log  *closeLog
	err  error
}

func (t *tracked) Close() error {
	t.log.add(t.name)
	return t.err
}

type ctxTracked struct {
	name string
	log  *closeLog
}

func (t *ctxTracked) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	t.log.add(t.name)
	return nil
}

type widget struct {
	name string
	prio Priority
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r := New(opts...)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func trackedFactory(log *closeLog) Factory {
	return NewFactory(func(_ context.Context, name string) (*tracked, error) {
		return &tracked{name: name, log: log}, nil
	})
}
