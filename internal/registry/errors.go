package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is the root of every "no such entry" failure.
	ErrNotRegistered            = errors.New("not registered")
	ErrFactoryNotRegistered     = fmt.Errorf("factory %w", ErrNotRegistered)
	ErrAddonNotRegistered       = fmt.Errorf("addon %w", ErrNotRegistered)
	ErrAddonFilterNotRegistered = fmt.Errorf("addon filter %w", ErrNotRegistered)

	ErrAlreadyRegistered   = errors.New("factory already registered")
	ErrRecursiveDependency = errors.New("recursive dependency")
	ErrBadFactoryResult    = errors.New("factory produced wrong type")
	ErrObjectNotFound      = errors.New("object not owned by registry")
)

func NewErrFactoryNotRegistered(idx Index) error {
	return fmt.Errorf("%w: %s", ErrFactoryNotRegistered, idx)
}

func NewErrFactoryNotRegisteredAt(idx Index, prio Priority) error {
	return fmt.Errorf("%w: %s at priority %s", ErrFactoryNotRegistered, idx, prio)
}

func NewErrAddonNotRegistered(idx Index, id AddonID) error {
	return fmt.Errorf("%w: %s id %d", ErrAddonNotRegistered, idx, id)
}

func NewErrAddonFilterNotRegistered(idx Index, id AddonID) error {
	return fmt.Errorf("%w: %s id %d", ErrAddonFilterNotRegistered, idx, id)
}

func NewErrAlreadyRegistered(idx Index, prio Priority) error {
	return fmt.Errorf("%w: %s at priority %s", ErrAlreadyRegistered, idx, prio)
}

func NewErrRecursiveDependency(idx Index) error {
	return fmt.Errorf("%w: %s requested while under construction", ErrRecursiveDependency, idx)
}

func NewErrBadFactoryResult(idx Index, got string) error {
	return fmt.Errorf("%w: %s built a %s", ErrBadFactoryResult, idx, got)
}

func NewErrObjectNotFound(obj any) error {
	return fmt.Errorf("%w: %T", ErrObjectNotFound, obj)
}
