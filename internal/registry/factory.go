package registry

import (
	"context"
	"reflect"
)

// Result is a factory's product tagged with the type it was built as.
type Result struct {
	value any
	typ   reflect.Type
}

// ResultOf wraps v as a product of type T.
func ResultOf[T any](v T) Result {
	return Result{value: v, typ: reflect.TypeFor[T]()}
}

func (r Result) Value() any         { return r.value }
func (r Result) Type() reflect.Type { return r.typ }

// Factory builds instances of one declared type.
//
// Produce receives the instance name being resolved, which differs from the
// registered name when a named request falls back to the default factory.
// A factory that resolves other objects must pass ctx through to those calls.
type Factory interface {
	Type() reflect.Type
	Produce(ctx context.Context, name string) (Result, error)
}

// FactoryFunc adapts a typed build function into a Factory.
type FactoryFunc[T any] func(ctx context.Context, name string) (T, error)

func (f FactoryFunc[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func (f FactoryFunc[T]) Produce(ctx context.Context, name string) (Result, error) {
	v, err := f(ctx, name)
	if err != nil {
		return Result{}, err
	}
	return ResultOf(v), nil
}

// NewFactory returns a Factory that forwards the instance name to fn.
func NewFactory[T any](fn func(ctx context.Context, name string) (T, error)) Factory {
	return FactoryFunc[T](fn)
}

// NewConstructor returns a Factory that ignores the instance name.
func NewConstructor[T any](fn func(ctx context.Context) (T, error)) Factory {
	return FactoryFunc[T](func(ctx context.Context, _ string) (T, error) {
		return fn(ctx)
	})
}

// NewValue returns a Factory that always produces v.
func NewValue[T any](v T) Factory {
	return FactoryFunc[T](func(context.Context, string) (T, error) {
		return v, nil
	})
}
