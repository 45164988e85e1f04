// Package cachemanager holds keyed, typed stores backed by go-cache.
// The registry keeps its constructed objects here; entries never expire and
// leave only through Flush.
package cachemanager

import "context"

type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Add(ctx context.Context, key K, value V) error
	Flush(ctx context.Context) error
	Len() int
}
