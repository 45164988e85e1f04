// Package registry is a process-wide object registry. Providers register
// factories for a (type, instance name) pair; consumers declare contracts for
// the objects they need and resolve them on first use. Every object is built
// at most once between resets and torn down in reverse creation order.
package registry

import (
	"reflect"
	"strconv"
	"sync"
)

// Index identifies one shared object: the Go type it is requested as and an
// instance name. The empty name is the default instance of the type.
type Index struct {
	Type reflect.Type
	Name string
}

// IndexOf returns the Index of the instance name for type T.
func IndexOf[T any](name string) Index {
	return Index{Type: reflect.TypeFor[T](), Name: name}
}

// IsDefault reports whether idx names the default instance.
func (idx Index) IsDefault() bool {
	return idx.Name == ""
}

// Default returns the default Index of the same type.
func (idx Index) Default() Index {
	return Index{Type: idx.Type}
}

// TypeName is the printable type, "<nil>" for the zero Index.
func (idx Index) TypeName() string {
	if idx.Type == nil {
		return "<nil>"
	}
	return idx.Type.String()
}

func (idx Index) String() string {
	if idx.IsDefault() {
		return idx.TypeName()
	}
	return idx.TypeName() + "/" + idx.Name
}

// Key is a string form of idx that is unique within the process. Distinct
// types that print the same (e.g. two packages named config) get distinct
// keys.
func (idx Index) Key() string {
	return strconv.FormatUint(typeTag(idx.Type), 36) + "/" + idx.Name
}

var typeTags = struct {
	sync.Mutex
	next uint64
	tags map[reflect.Type]uint64
}{tags: make(map[reflect.Type]uint64)}

func typeTag(t reflect.Type) uint64 {
	if t == nil {
		return 0
	}
	typeTags.Lock()
	defer typeTags.Unlock()
	if tag, ok := typeTags.tags[t]; ok {
		return tag
	}
	typeTags.next++
	typeTags.tags[t] = typeTags.next
	return typeTags.next
}
