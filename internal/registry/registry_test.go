package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/registrar/internal/pubsub"
	"github.com/zjrosen/registrar/internal/tracing"
)

func TestGet_IdempotentCache(t *testing.T) {
	r := newTestRegistry(t)
	var builds atomic.Int32
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*widget, error) {
		builds.Add(1)
		return &widget{}, nil
	}))

	c := NewContract[*widget](r, "")
	first, err := c.Get(context.Background())
	require.NoError(t, err)
	second, err := Get(context.Background(), r, c)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, builds.Load())
}

func TestGet_PriorityOverride(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.RegisterFactory("", PriorityFallback, widgetFactory(PriorityFallback)))
	require.NoError(t, r.RegisterFactory("", PriorityTest, widgetFactory(PriorityTest)))

	c := NewContract[*widget](r, "")
	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, PriorityTest, got.prio)

	require.NoError(t, Unregister[*widget](r, "", PriorityTest))
	cached, err := c.Get(ctx)
	require.NoError(t, err)
	require.Same(t, got, cached, "unregistering does not evict the built object")

	require.NoError(t, r.ResetObjects(ctx))
	rebuilt, err := c.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, PriorityFallback, rebuilt.prio)
	require.NotSame(t, got, rebuilt)
}

func TestGet_DefaultFallbackPassesRequestedName(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))

	x, err := Resolve[*widget](context.Background(), r, "x")
	require.NoError(t, err)
	require.Equal(t, "x", x.name)

	y, err := Resolve[*widget](context.Background(), r, "y")
	require.NoError(t, err)
	require.Equal(t, "y", y.name)
	require.NotSame(t, x, y, "each name is cached separately")

	require.True(t, r.InstanceExists(IndexOf[*widget]("x")))
	require.False(t, r.InstanceExists(IndexOf[*widget]("")))
}

func TestGet_NotRegistered(t *testing.T) {
	r := newTestRegistry(t)
	_, err := Resolve[*widget](context.Background(), r, "missing")
	require.ErrorIs(t, err, ErrFactoryNotRegistered)
	require.ErrorIs(t, err, ErrNotRegistered)
	require.Contains(t, err.Error(), "*registry.widget/missing")
}

func TestGet_ConcurrentConvergence(t *testing.T) {
	r := newTestRegistry(t)
	var builds atomic.Int32
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*widget, error) {
		builds.Add(1)
		time.Sleep(5 * time.Millisecond)
		return &widget{}, nil
	}))

	const workers = 32
	results := make([]*widget, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			w, err := Resolve[*widget](context.Background(), r, "")
			if err == nil {
				results[i] = w
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, builds.Load())
	for _, w := range results {
		require.NotNil(t, w)
		require.Same(t, results[0], w)
	}
}

type nodeA struct{ b *nodeB }
type nodeB struct{ c *nodeC }
type nodeC struct{}

func TestGet_NestedDependencies(t *testing.T) {
	r := newTestRegistry(t)
	var order []string
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeA, error) {
		b, err := Resolve[*nodeB](ctx, r, "")
		if err != nil {
			return nil, err
		}
		order = append(order, "a")
		return &nodeA{b: b}, nil
	}))
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeB, error) {
		c, err := Resolve[*nodeC](ctx, r, "")
		if err != nil {
			return nil, err
		}
		order = append(order, "b")
		return &nodeB{c: c}, nil
	}))
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*nodeC, error) {
		order = append(order, "c")
		return &nodeC{}, nil
	}))

	a, err := Resolve[*nodeA](context.Background(), r, "")
	require.NoError(t, err)
	require.NotNil(t, a.b.c)
	require.Equal(t, []string{"c", "b", "a"}, order)

	objs := r.Objects()
	require.Len(t, objs, 3)
	require.Equal(t, IndexOf[*nodeC](""), objs[0].Index(), "creation order follows completion")
	require.Equal(t, IndexOf[*nodeA](""), objs[2].Index())
}

func TestGet_SelfRecursionDetected(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeA, error) {
		if _, err := Resolve[*nodeA](ctx, r, ""); err != nil {
			return nil, fmt.Errorf("resolve self: %w", err)
		}
		return &nodeA{}, nil
	}))

	_, err := Resolve[*nodeA](context.Background(), r, "")
	require.ErrorIs(t, err, ErrRecursiveDependency)
	require.False(t, r.InstanceExists(IndexOf[*nodeA]("")))
	require.Zero(t, r.Snapshot().Building, "guard set is empty after failure")
}

func TestGet_IndirectCycleDetected(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeA, error) {
		_, err := Resolve[*nodeB](ctx, r, "")
		return &nodeA{}, err
	}))
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeB, error) {
		_, err := Resolve[*nodeA](ctx, r, "")
		return &nodeB{}, err
	}))

	_, err := Resolve[*nodeA](context.Background(), r, "")
	require.ErrorIs(t, err, ErrRecursiveDependency)
	require.Empty(t, r.Objects())
}

func TestGet_ChainFanOutSharesBuild(t *testing.T) {
	r := newTestRegistry(t)
	var builds atomic.Int32
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*nodeB, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &nodeB{}, nil
	}))

	const workers = 4
	var got [workers]*nodeB
	var errs [workers]error
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeA, error) {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i], errs[i] = Resolve[*nodeB](ctx, r, "")
			}(i)
		}
		wg.Wait()
		return &nodeA{b: got[0]}, errors.Join(errs[:]...)
	}))

	a, err := Resolve[*nodeA](context.Background(), r, "")
	require.NoError(t, err, "siblings on one chain are not a cycle")
	require.Equal(t, int32(1), builds.Load())
	for i := range got {
		require.Same(t, a.b, got[i])
	}
	require.Zero(t, r.Snapshot().Building)
}

func TestGet_CycleDetectedInsideFanOut(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeB, error) {
		_, err := Resolve[*nodeA](ctx, r, "")
		return &nodeB{}, err
	}))
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(ctx context.Context, _ string) (*nodeA, error) {
		errCh := make(chan error, 1)
		go func() {
			_, err := Resolve[*nodeB](ctx, r, "")
			errCh <- err
		}()
		return &nodeA{}, <-errCh
	}))

	_, err := Resolve[*nodeA](context.Background(), r, "")
	require.ErrorIs(t, err, ErrRecursiveDependency)
}

func TestHandle_AmbiguousValue(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("a", PriorityNormal, NewValue(5)))
	require.NoError(t, r.RegisterFactory("b", PriorityNormal, NewValue(5)))
	require.NoError(t, r.RegisterFactory("c", PriorityNormal, NewValue(7)))

	for _, name := range []string{"a", "b", "c"} {
		_, err := Resolve[int](context.Background(), r, name)
		require.NoError(t, err)
	}

	_, err := r.Handle(5)
	require.ErrorIs(t, err, ErrObjectNotFound, "held under two indexes")

	obj, err := r.Handle(7)
	require.NoError(t, err)
	require.Equal(t, IndexOf[int]("c"), obj.Index())
}

func TestGet_FactoryErrorPropagatesAndIsRetryable(t *testing.T) {
	r := newTestRegistry(t)
	boom := errors.New("database unreachable")
	var fail atomic.Bool
	fail.Store(true)
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*widget, error) {
		if fail.Load() {
			return nil, boom
		}
		return &widget{}, nil
	}))

	_, err := Resolve[*widget](context.Background(), r, "")
	require.Same(t, boom, err, "factory errors are returned unmodified")
	require.False(t, r.InstanceExists(IndexOf[*widget]("")))

	fail.Store(false)
	w, err := Resolve[*widget](context.Background(), r, "")
	require.NoError(t, err)
	require.NotNil(t, w)
}

// liar claims to build *widget but produces a string.
type liar struct{}

func (liar) Type() reflect.Type { return reflect.TypeFor[*widget]() }
func (liar) Produce(context.Context, string) (Result, error) {
	return ResultOf("not a widget"), nil
}

func TestGet_BadFactoryResult(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("", PriorityNormal, liar{}))

	_, err := Resolve[*widget](context.Background(), r, "")
	require.ErrorIs(t, err, ErrBadFactoryResult)
	require.Contains(t, err.Error(), "string")
	require.False(t, r.InstanceExists(IndexOf[*widget]("")))
}

func TestGet_InterfaceTypedFactory(t *testing.T) {
	type store interface{ Name() string }
	r := newTestRegistry(t)
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (store, error) {
		return nil, nil
	}))

	got, err := Resolve[store](context.Background(), r, "")
	require.NoError(t, err)
	require.Nil(t, got)
	require.True(t, r.InstanceExists(IndexOf[store]("")))
}

func TestMustGet(t *testing.T) {
	r := newTestRegistry(t)
	c := NewContract[*widget](r, "")
	require.Panics(t, func() { MustGet(context.Background(), r, c) })

	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))
	require.NotNil(t, MustGet(context.Background(), r, c))
}

func TestInstanceExists_DoesNotBuild(t *testing.T) {
	r := newTestRegistry(t)
	var builds atomic.Int32
	require.NoError(t, RegisterFactoryFunc(r, "", PriorityNormal, func(context.Context, string) (*widget, error) {
		builds.Add(1)
		return &widget{}, nil
	}))
	c := NewContract[*widget](r, "")

	require.False(t, c.Exists())
	require.False(t, Exists(r, c))
	require.Zero(t, builds.Load())

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	require.True(t, c.Exists())
}

func TestHandle(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))
	require.NoError(t, r.RegisterFactory("", PriorityNormal, NewValue(map[string]int{"a": 1})))

	w, err := Resolve[*widget](context.Background(), r, "")
	require.NoError(t, err)
	m, err := Resolve[map[string]int](context.Background(), r, "")
	require.NoError(t, err)

	obj, err := r.Handle(w)
	require.NoError(t, err)
	require.Equal(t, IndexOf[*widget](""), obj.Index())
	require.Same(t, w, obj.Value())
	require.EqualValues(t, 1, obj.Seq())
	require.False(t, obj.CreatedAt().IsZero())

	obj, err = r.Handle(m)
	require.NoError(t, err)
	require.Equal(t, IndexOf[map[string]int](""), obj.Index())

	_, err = r.Handle(&widget{})
	require.ErrorIs(t, err, ErrObjectNotFound, "equal value but different identity")
	_, err = r.Handle(nil)
	require.ErrorIs(t, err, ErrObjectNotFound)
	_, err = r.Handle(map[string]int{"a": 1})
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestResetObjects_ReverseTeardown(t *testing.T) {
	r := newTestRegistry(t)
	log := &closeLog{}
	require.NoError(t, r.RegisterFactory("", PriorityNormal, trackedFactory(log)))
	require.NoError(t, r.RegisterFactory("", PriorityNormal, NewFactory(func(_ context.Context, name string) (*ctxTracked, error) {
		return &ctxTracked{name: name, log: log}, nil
	})))

	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		_, err := Resolve[*tracked](ctx, r, name)
		require.NoError(t, err)
	}
	_, err := Resolve[*ctxTracked](ctx, r, "c")
	require.NoError(t, err)

	require.NoError(t, r.ResetObjects(ctx))
	require.Equal(t, []string{"c", "b", "a"}, log.order())
	require.Empty(t, r.Objects())
	require.False(t, r.InstanceExists(IndexOf[*tracked]("a")))
}

func TestResetObjects_JoinsCloseErrors(t *testing.T) {
	r := newTestRegistry(t)
	log := &closeLog{}
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	require.NoError(t, r.RegisterFactory("", PriorityNormal, NewFactory(func(_ context.Context, name string) (*tracked, error) {
		tr := &tracked{name: name, log: log}
		switch name {
		case "a":
			tr.err = errA
		case "c":
			tr.err = errC
		}
		return tr, nil
	})))

	for _, name := range []string{"a", "b", "c"} {
		_, err := Resolve[*tracked](context.Background(), r, name)
		require.NoError(t, err)
	}

	err := r.ResetObjects(context.Background())
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errC)
	require.Equal(t, []string{"c", "b", "a"}, log.order(), "teardown continues past failures")
}

func TestResetObjects_Signals(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))
	_, err := Resolve[*widget](context.Background(), r, "")
	require.NoError(t, err)

	var events []string
	r.BeforeReset().Connect(func(context.Context) {
		events = append(events, fmt.Sprintf("before exists=%v", r.InstanceExists(IndexOf[*widget](""))))
	})
	r.AfterReset().Connect(func(context.Context) {
		events = append(events, fmt.Sprintf("after exists=%v", r.InstanceExists(IndexOf[*widget](""))))
	})

	require.NoError(t, r.ResetObjects(context.Background()))
	require.Equal(t, []string{"before exists=true", "after exists=false"}, events)
}

func TestResetObjects_ListenerMayResolve(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))

	var rebuilt *widget
	r.AfterReset().Connect(func(ctx context.Context) {
		w, err := Resolve[*widget](ctx, r, "")
		if err == nil {
			rebuilt = w
		}
	})

	require.NoError(t, r.ResetObjects(context.Background()))
	require.NotNil(t, rebuilt, "listener context re-enters the construction lock")
	require.True(t, r.InstanceExists(IndexOf[*widget]("")))
}

func TestShutdown(t *testing.T) {
	r := New()
	log := &closeLog{}
	require.NoError(t, r.RegisterFactory("", PriorityNormal, trackedFactory(log)))
	_, err := Resolve[*tracked](context.Background(), r, "only")
	require.NoError(t, err)

	var before, after int
	r.BeforeReset().Connect(func(context.Context) { before++ })
	r.AfterReset().Connect(func(context.Context) { after++ })

	require.False(t, r.IsShuttingDown())
	require.NoError(t, r.Shutdown(context.Background()))
	require.True(t, r.IsShuttingDown())
	require.Equal(t, 1, before)
	require.Zero(t, after, "no after-reset notification during shutdown")
	require.Equal(t, []string{"only"}, log.order())
	require.True(t, r.Events().Closed())

	_, err = Resolve[*tracked](context.Background(), r, "only")
	require.ErrorIs(t, err, ErrFactoryNotRegistered, "factories are dropped")

	require.NoError(t, r.Shutdown(context.Background()), "second shutdown is a no-op")
	require.Equal(t, 1, before)
}

func TestVersionAndID(t *testing.T) {
	a, b := New(), New()
	defer a.Shutdown(context.Background())
	defer b.Shutdown(context.Background())

	require.Equal(t, Version, a.Version())
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
}

func TestEvents(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := pubsub.NewListener(ctx, r.Events())

	next := func() pubsub.Event[Lifecycle] {
		t.Helper()
		waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
		defer waitCancel()
		ev, ok := l.Next(waitCtx)
		require.True(t, ok)
		return ev
	}

	require.NoError(t, r.RegisterFactory("", PriorityNormal, widgetFactory(PriorityNormal)))
	ev := next()
	require.Equal(t, pubsub.RegisteredEvent, ev.Type)
	require.Equal(t, IndexOf[*widget](""), ev.Payload.Index)
	require.Equal(t, r.ID(), ev.Payload.Registry)

	_, err := Resolve[*widget](ctx, r, "")
	require.NoError(t, err)
	ev = next()
	require.Equal(t, pubsub.CreatedEvent, ev.Type)
	require.Equal(t, 1, ev.Payload.Objects)

	require.NoError(t, r.ResetObjects(ctx))
	ev = next()
	require.Equal(t, pubsub.ResetEvent, ev.Type)
	require.Equal(t, 1, ev.Payload.Objects)

	require.NoError(t, Unregister[*widget](r, "", PriorityNormal))
	require.Equal(t, pubsub.UnregisteredEvent, next().Type)

	require.NoError(t, r.Shutdown(ctx))
	require.Equal(t, pubsub.ResetEvent, next().Type)
	require.Equal(t, pubsub.ShutdownEvent, next().Type)
}

func TestTracing_BuildAndResetSpans(t *testing.T) {
	recorder := tracetest.NewInMemoryExporter()
	provider := tracing.NewProviderWithExporter(recorder)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	r := newTestRegistry(t, WithTracer(provider.Tracer()))
	require.NoError(t, r.RegisterFactory("", PriorityFallback, widgetFactory(PriorityFallback)))

	_, err := Resolve[*widget](context.Background(), r, "named")
	require.NoError(t, err)
	require.NoError(t, r.ResetObjects(context.Background()))

	spans := recorder.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, tracing.SpanBuild, spans[0].Name)
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	require.Equal(t, "named", attrs[tracing.AttrIndexName])
	require.Equal(t, "fallback", attrs[tracing.AttrPriority])
	require.Equal(t, true, attrs[tracing.AttrFallback])

	require.Equal(t, tracing.SpanReset, spans[1].Name)
	require.Len(t, spans[1].Events, 1)
}

func TestWithEventBuffer(t *testing.T) {
	r := newTestRegistry(t, WithEventBuffer(0))
	require.NotNil(t, r.Events())
}
