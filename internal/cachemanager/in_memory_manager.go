package cachemanager

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/registrar/internal/log"
)

var _ CacheManager[string, struct{}] = (*InMemoryCacheManager[string, struct{}])(nil)

// NewInMemoryCacheManager creates a store whose entries never expire and
// which runs no janitor goroutine.
func NewInMemoryCacheManager[K ~string, V any](useCase string) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(gocache.NoExpiration, 0),
	}
}

// InMemoryCacheManager is the concrete implementation of the CacheManager interface
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// Get retrieves an item from the cache by its key
func (c *InMemoryCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatRegistry, "wrong type assertion when getting value", "store", c.useCase, "key", key)

		return zeroValue, false
	}

	return v, true
}

// Add stores value only if key is absent.
func (c *InMemoryCacheManager[K, V]) Add(ctx context.Context, key K, value V) error {
	if err := c.cache.Add(string(key), value, gocache.NoExpiration); err != nil {
		return fmt.Errorf("%s: %w", c.useCase, err)
	}
	return nil
}

// Flush removes every entry.
func (c *InMemoryCacheManager[K, V]) Flush(ctx context.Context) error {
	c.cache.Flush()

	return nil
}

// Len reports the number of stored entries.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}
