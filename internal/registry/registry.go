package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/pubsub"
	"github.com/zjrosen/registrar/internal/tracing"
)

// Version is the registry version, set at build time with
// -ldflags "-X github.com/zjrosen/registrar/internal/registry.Version=...".
var Version = "dev"

// Registry owns factories, built objects, contracts and addons.
//
// Lock order: the construction lock is always taken before the cache lock.
// The construction lock is the only one held while user code (factories,
// Close methods, reset listeners) runs.
type Registry struct {
	id uuid.UUID

	factories *factoryDirectory
	objects   *objectCache
	guard     *constructionGuard
	contracts *contractLedger
	addons    *addonDirectory

	beforeReset *pubsub.Signal[context.Context]
	afterReset  *pubsub.Signal[context.Context]
	events      *pubsub.Broker[Lifecycle]

	tracer       trace.Tracer
	shuttingDown atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

const instrumentationName = "github.com/zjrosen/registrar/internal/registry"

// WithTracer records spans with tracer instead of the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

// WithEventBuffer sets the per-subscriber buffer of the Events broker.
func WithEventBuffer(size int) Option {
	return func(r *Registry) {
		r.events = pubsub.NewBrokerWithBuffer[Lifecycle](size)
	}
}

// New creates an empty registry. Call Shutdown when done with it.
func New(opts ...Option) *Registry {
	r := &Registry{
		id:          uuid.New(),
		factories:   newFactoryDirectory(),
		objects:     newObjectCache(),
		guard:       newConstructionGuard(),
		contracts:   &contractLedger{},
		addons:      newAddonDirectory(),
		beforeReset: pubsub.NewSignal[context.Context](),
		afterReset:  pubsub.NewSignal[context.Context](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.events == nil {
		r.events = pubsub.NewBroker[Lifecycle]()
	}
	log.Debug(log.CatRegistry, "registry created", "id", r.id)
	return r
}

func (r *Registry) ID() string { return r.id.String() }

// Version returns the registry version string.
func (r *Registry) Version() string { return Version }

func (r *Registry) IsShuttingDown() bool { return r.shuttingDown.Load() }

// BeforeReset fires with the resetting context before any object is torn down.
func (r *Registry) BeforeReset() *pubsub.Signal[context.Context] { return r.beforeReset }

// AfterReset fires once a reset completes. It does not fire during Shutdown.
func (r *Registry) AfterReset() *pubsub.Signal[context.Context] { return r.afterReset }

// Events publishes lifecycle changes. It is closed by Shutdown.
func (r *Registry) Events() *pubsub.Broker[Lifecycle] { return r.events }

// RegisterFactory registers f for the named instance of f.Type() at prio.
func (r *Registry) RegisterFactory(name string, prio Priority, f Factory) error {
	if f == nil || f.Type() == nil {
		return fmt.Errorf("register factory %q: nil factory", name)
	}
	idx := Index{Type: f.Type(), Name: name}
	if err := r.factories.register(idx, prio, f); err != nil {
		log.Warn(log.CatFactory, "duplicate factory", "index", idx, "priority", prio)
		return err
	}
	log.Debug(log.CatFactory, "factory registered", "index", idx, "priority", prio)
	r.publish(pubsub.RegisteredEvent, Lifecycle{Index: idx, Priority: prio})
	return nil
}

// MustRegisterFactory is RegisterFactory that panics on error.
func (r *Registry) MustRegisterFactory(name string, prio Priority, f Factory) {
	if err := r.RegisterFactory(name, prio, f); err != nil {
		panic(err)
	}
}

// RegisterFactoryFunc registers a typed build function.
func RegisterFactoryFunc[T any](r *Registry, name string, prio Priority, fn func(ctx context.Context, name string) (T, error)) error {
	return r.RegisterFactory(name, prio, NewFactory(fn))
}

// UnregisterFactory removes the factory for (typ, name) at prio. Objects it
// already built stay cached until the next reset.
func (r *Registry) UnregisterFactory(name string, prio Priority, typ reflect.Type) error {
	idx := Index{Type: typ, Name: name}
	if err := r.factories.unregister(idx, prio); err != nil {
		return err
	}
	log.Debug(log.CatFactory, "factory unregistered", "index", idx, "priority", prio)
	r.publish(pubsub.UnregisteredEvent, Lifecycle{Index: idx, Priority: prio})
	return nil
}

// Unregister is the typed form of UnregisterFactory.
func Unregister[T any](r *Registry, name string, prio Priority) error {
	return r.UnregisterFactory(name, prio, reflect.TypeFor[T]())
}

// Get resolves the object c declares, building it on first use.
//
// A factory that needs other objects must resolve them with the ctx it was
// given; that context lets the nested build re-enter the construction lock.
func Get[T any](ctx context.Context, r *Registry, c *Contract[T]) (T, error) {
	return resolveAs[T](ctx, r, c.Index())
}

// Resolve is Get without a contract, for use inside factories.
func Resolve[T any](ctx context.Context, r *Registry, name string) (T, error) {
	return resolveAs[T](ctx, r, IndexOf[T](name))
}

// MustGet is Get that panics on error.
func MustGet[T any](ctx context.Context, r *Registry, c *Contract[T]) T {
	v, err := Get(ctx, r, c)
	if err != nil {
		panic(err)
	}
	return v
}

func resolveAs[T any](ctx context.Context, r *Registry, idx Index) (T, error) {
	var zero T
	obj, err := r.get(ctx, idx)
	if err != nil {
		return zero, err
	}
	if obj.value == nil {
		return zero, nil
	}
	v, ok := obj.value.(T)
	if !ok {
		return zero, NewErrBadFactoryResult(idx, fmt.Sprintf("%T", obj.value))
	}
	return v, nil
}

// GetObject resolves idx and returns the registry's handle on the object.
func (r *Registry) GetObject(ctx context.Context, idx Index) (*Object, error) {
	return r.get(ctx, idx)
}

func (r *Registry) get(ctx context.Context, idx Index) (*Object, error) {
	if obj, ok := r.objects.lookup(ctx, idx); ok {
		return obj, nil
	}

	res, err := r.factories.resolve(idx)
	if err != nil {
		return nil, err
	}

	ctx, release := r.guard.acquire(ctx)
	defer release()

	for {
		if obj, ok := r.objects.lookup(ctx, idx); ok {
			return obj, nil
		}
		if r.guard.ancestor(ctx, idx) {
			log.Warn(log.CatFactory, "recursive dependency", "index", idx)
			return nil, NewErrRecursiveDependency(idx)
		}
		done, ok := r.guard.enter(idx)
		if ok {
			break
		}
		// Another goroutine of this chain is building idx.
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	obj, err := r.build(r.guard.push(ctx, idx), idx, res)
	r.guard.leave(idx)
	if err != nil {
		return nil, err
	}

	log.Info(log.CatFactory, "object built", "index", idx, "priority", res.priority, "seq", obj.seq)
	r.publish(pubsub.CreatedEvent, Lifecycle{Index: idx, Priority: res.priority, Objects: r.objects.len()})
	return obj, nil
}

func (r *Registry) build(ctx context.Context, idx Index, res resolution) (obj *Object, err error) {
	ctx, span := tracing.Start(ctx, r.tracerFor(), tracing.SpanBuild,
		attribute.String(tracing.AttrRegistryID, r.ID()),
		attribute.String(tracing.AttrIndexType, idx.TypeName()),
		attribute.String(tracing.AttrIndexName, idx.Name),
		attribute.String(tracing.AttrPriority, res.priority.String()),
		attribute.Bool(tracing.AttrFallback, res.index != idx),
	)
	defer func() { tracing.End(span, err) }()

	result, err := res.factory.Produce(ctx, idx.Name)
	if err != nil {
		log.Debug(log.CatFactory, "factory failed", "index", idx, "error", err)
		return nil, err
	}
	if result.typ != idx.Type {
		got := "<untyped>"
		if result.typ != nil {
			got = result.typ.String()
		}
		return nil, NewErrBadFactoryResult(idx, got)
	}
	return r.objects.insert(ctx, idx, result.value)
}

// InstanceExists reports whether the object at idx is built. It never builds.
func (r *Registry) InstanceExists(idx Index) bool {
	return r.objects.exists(context.Background(), idx)
}

// Exists reports whether the object c declares is built.
func Exists[T any](r *Registry, c *Contract[T]) bool {
	return r.InstanceExists(c.Index())
}

// Handle returns the registry's handle on obj, a value previously returned
// by Get. Pointers, maps, slices, channels and funcs match by identity;
// other comparable values match by equality, so Handle is only reliable for
// reference kinds. A value held under several Indexes is ErrObjectNotFound.
func (r *Registry) Handle(obj any) (*Object, error) {
	if found, ok := r.objects.find(obj); ok {
		return found, nil
	}
	return nil, NewErrObjectNotFound(obj)
}

// Objects returns the built objects in creation order.
func (r *Registry) Objects() []*Object {
	return r.objects.list()
}

// ResetObjects tears down every built object in reverse creation order.
// Objects implementing io.Closer or ContextCloser are closed; their errors
// are joined into the result. Teardown continues past failures.
func (r *Registry) ResetObjects(ctx context.Context) error {
	ctx, release := r.guard.acquire(ctx)
	defer release()
	return r.reset(ctx)
}

// reset requires the construction lock.
func (r *Registry) reset(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, r.tracerFor(), tracing.SpanReset,
		attribute.String(tracing.AttrRegistryID, r.ID()),
		attribute.Bool(tracing.AttrShutdown, r.IsShuttingDown()),
	)
	defer func() { tracing.End(span, err) }()

	r.beforeReset.Emit(ctx)

	objs := r.objects.detach(ctx)
	span.SetAttributes(attribute.Int(tracing.AttrObjectCount, len(objs)))

	var errs []error
	for i := len(objs) - 1; i >= 0; i-- {
		obj := objs[i]
		if cerr := closeObject(ctx, obj); cerr != nil {
			log.ErrorErr(log.CatRegistry, "close failed", cerr, "index", obj.index)
			errs = append(errs, fmt.Errorf("close %s: %w", obj.index, cerr))
		}
		span.AddEvent(tracing.EventObjectClosed, trace.WithAttributes(
			attribute.String(tracing.AttrIndexType, obj.index.TypeName()),
			attribute.String(tracing.AttrIndexName, obj.index.Name),
		))
	}
	err = errors.Join(errs...)

	log.Info(log.CatRegistry, "objects reset", "count", len(objs), "failures", len(errs))
	r.publish(pubsub.ResetEvent, Lifecycle{Objects: len(objs)})

	if !r.IsShuttingDown() {
		r.afterReset.Emit(ctx)
	}
	return err
}

// Shutdown marks the registry as shutting down, drops every factory and
// tears down all objects. Later calls return nil.
func (r *Registry) Shutdown(ctx context.Context) (err error) {
	if !r.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	ctx, release := r.guard.acquire(ctx)
	defer release()

	ctx, span := tracing.Start(ctx, r.tracerFor(), tracing.SpanShutdown,
		attribute.String(tracing.AttrRegistryID, r.ID()),
	)
	defer func() { tracing.End(span, err) }()

	dropped := r.factories.clear()
	err = r.reset(ctx)

	log.Info(log.CatRegistry, "registry shut down", "id", r.id, "factories", dropped)
	r.publish(pubsub.ShutdownEvent, Lifecycle{})
	r.events.Close()
	return err
}

// ValidateContracts reports whether every open contract has a factory.
// Nothing is built.
func (r *Registry) ValidateContracts() bool {
	return len(r.UnsatisfiedContracts()) == 0
}

// UnsatisfiedContracts lists open contracts that no factory can serve.
func (r *Registry) UnsatisfiedContracts() []ContractRef {
	var out []ContractRef
	for _, rec := range r.contracts.snapshot() {
		if !r.factories.resolvable(rec.Index()) {
			out = append(out, ContractRef{ID: rec.ID(), Index: rec.Index()})
		}
	}
	return out
}

// TestAllContracts resolves every open contract and joins the failures.
// Each joined error is a *ContractFailure.
func (r *Registry) TestAllContracts(ctx context.Context) (err error) {
	records := r.contracts.snapshot()

	ctx, span := tracing.Start(ctx, r.tracerFor(), tracing.SpanTestContracts,
		attribute.String(tracing.AttrRegistryID, r.ID()),
		attribute.Int(tracing.AttrContractSize, len(records)),
	)
	defer func() { tracing.End(span, err) }()

	var errs []error
	for _, rec := range records {
		if terr := rec.TryGet(ctx); terr != nil {
			log.Warn(log.CatContract, "contract failed", "index", rec.Index(), "error", terr)
			span.AddEvent(tracing.EventContractFailed, trace.WithAttributes(
				attribute.String(tracing.AttrIndexType, rec.Index().TypeName()),
				attribute.String(tracing.AttrIndexName, rec.Index().Name),
			))
			errs = append(errs, &ContractFailure{Ref: ContractRef{ID: rec.ID(), Index: rec.Index()}, Err: terr})
		}
	}
	return errors.Join(errs...)
}

// tracerFor looks the global provider up per span so a provider installed
// after New is picked up.
func (r *Registry) tracerFor() trace.Tracer {
	if r.tracer != nil {
		return r.tracer
	}
	return otel.Tracer(instrumentationName)
}

func (r *Registry) publish(t pubsub.EventType, ev Lifecycle) {
	ev.Registry = r.ID()
	r.events.Publish(t, ev)
}

// Lifecycle is the payload of registry Events.
type Lifecycle struct {
	Registry string
	Index    Index
	Priority Priority
	Objects  int
}
