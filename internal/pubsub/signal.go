package pubsub

import (
	"sort"
	"sync"
)

// SlotID identifies a connected Signal callback.
type SlotID uint64

// Signal is a synchronous multi-listener callback list. Emit runs every
// connected callback on the caller's goroutine, in connection order, before
// returning.
type Signal[T any] struct {
	mu    sync.RWMutex
	next  SlotID
	slots map[SlotID]func(T)
}

// NewSignal returns an empty signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{slots: make(map[SlotID]func(T))}
}

// Connect adds fn and returns an id for Disconnect.
func (s *Signal[T]) Connect(fn func(T)) SlotID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.slots[id] = fn
	return id
}

// Disconnect removes the callback registered under id.
// It reports whether a callback was removed.
func (s *Signal[T]) Disconnect(id SlotID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; !ok {
		return false
	}
	delete(s.slots, id)
	return true
}

// Clear removes every callback.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = make(map[SlotID]func(T))
}

// Emit invokes every connected callback with v. The callback list is copied
// first, so callbacks may connect or disconnect without deadlocking.
func (s *Signal[T]) Emit(v T) {
	s.mu.RLock()
	ids := make([]SlotID, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.slots[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Count returns the number of connected callbacks.
func (s *Signal[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Empty reports whether no callback is connected.
func (s *Signal[T]) Empty() bool {
	return s.Count() == 0
}
