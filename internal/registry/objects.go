package registry

import (
	"context"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/zjrosen/registrar/internal/cachemanager"
)

// Object is the registry's handle on one constructed instance.
type Object struct {
	index   Index
	value   any
	seq     uint64
	created time.Time
}

func (o *Object) Index() Index         { return o.index }
func (o *Object) Value() any           { return o.value }
func (o *Object) Seq() uint64          { return o.seq }
func (o *Object) CreatedAt() time.Time { return o.created }

// objectCache holds built objects by Index plus their creation order.
// mu keeps store and order consistent with each other.
type objectCache struct {
	mu    sync.RWMutex
	store cachemanager.CacheManager[string, *Object]
	order []*Object
	seq   uint64
}

func newObjectCache() *objectCache {
	return &objectCache{
		store: cachemanager.NewInMemoryCacheManager[string, *Object]("registry-objects"),
	}
}

func (c *objectCache) lookup(ctx context.Context, idx Index) (*Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(ctx, idx.Key())
}

func (c *objectCache) exists(ctx context.Context, idx Index) bool {
	_, ok := c.lookup(ctx, idx)
	return ok
}

func (c *objectCache) insert(ctx context.Context, idx Index, value any) (*Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	obj := &Object{index: idx, value: value, seq: c.seq, created: time.Now()}
	if err := c.store.Add(ctx, idx.Key(), obj); err != nil {
		return nil, err
	}
	c.order = append(c.order, obj)
	return obj, nil
}

// find scans the creation order for the object whose value is v. A value
// held under more than one Index is ambiguous and not found.
func (c *objectCache) find(v any) (*Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var found *Object
	for _, obj := range c.order {
		if !sameInstance(obj.value, v) {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = obj
	}
	return found, found != nil
}

// detach empties the cache and hands back the objects in creation order.
func (c *objectCache) detach(ctx context.Context) []*Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	objs := c.order
	c.order = nil
	_ = c.store.Flush(ctx)
	return objs
}

func (c *objectCache) list() []*Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Object(nil), c.order...)
}

func (c *objectCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// sameInstance compares by identity for reference kinds and by value for
// comparable values.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	return false
}

// ContextCloser is implemented by objects that need a context to shut down.
type ContextCloser interface {
	Close(ctx context.Context) error
}

func closeObject(ctx context.Context, obj *Object) error {
	switch v := obj.value.(type) {
	case ContextCloser:
		return v.Close(ctx)
	case io.Closer:
		return v.Close()
	}
	return nil
}
