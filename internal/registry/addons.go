package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/registrar/internal/log"
)

// AddonID identifies one addon or addon filter registration.
type AddonID uint64

// Addon is one registered callback of type F.
type Addon[F any] struct {
	ID       AddonID
	Priority Priority
	Func     F
}

// Addons is the collection GetAddons returns, lowest priority first.
type Addons[F any] []Addon[F]

// Funcs returns the callbacks in collection order.
func (a Addons[F]) Funcs() []F {
	out := make([]F, len(a))
	for i, addon := range a {
		out[i] = addon.Func
	}
	return out
}

// AddonFilter rewrites a collected set of addons before the caller sees it.
type AddonFilter[F any] func(addons *Addons[F])

// KeepHighestPriority drops every addon below the highest priority present.
func KeepHighestPriority[F any]() AddonFilter[F] {
	return func(addons *Addons[F]) {
		if len(*addons) == 0 {
			return
		}
		top := (*addons)[0].Priority
		for _, a := range *addons {
			if a.Priority > top {
				top = a.Priority
			}
		}
		kept := (*addons)[:0]
		for _, a := range *addons {
			if a.Priority == top {
				kept = append(kept, a)
			}
		}
		*addons = kept
	}
}

type addonEntry struct {
	id   AddonID
	prio Priority
	fn   any
}

// addonTable is an Index keyed multimap of entries.
type addonTable map[Index][]addonEntry

func (t addonTable) insertSorted(idx Index, e addonEntry) {
	entries := t[idx]
	// Stable for equal priorities: new entries go after existing ones.
	at := sort.Search(len(entries), func(i int) bool { return entries[i].prio > e.prio })
	entries = append(entries, addonEntry{})
	copy(entries[at+1:], entries[at:])
	entries[at] = e
	t[idx] = entries
}

func (t addonTable) append(idx Index, e addonEntry) {
	t[idx] = append(t[idx], e)
}

func (t addonTable) removeID(idx Index, id AddonID) bool {
	entries := t[idx]
	for i, e := range entries {
		if e.id == id {
			t.set(idx, append(entries[:i], entries[i+1:]...))
			return true
		}
	}
	return false
}

func (t addonTable) removeWhere(idx Index, drop func(addonEntry) bool) int {
	entries := t[idx]
	kept := entries[:0]
	for _, e := range entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	t.set(idx, kept)
	return removed
}

func (t addonTable) set(idx Index, entries []addonEntry) {
	if len(entries) == 0 {
		delete(t, idx)
		return
	}
	t[idx] = entries
}

// addonDirectory holds addons and addon filters behind one lock.
type addonDirectory struct {
	mu      sync.RWMutex
	nextID  atomic.Uint64
	addons  addonTable
	filters addonTable
}

func newAddonDirectory() *addonDirectory {
	return &addonDirectory{
		addons:  make(addonTable),
		filters: make(addonTable),
	}
}

func (d *addonDirectory) id() AddonID {
	return AddonID(d.nextID.Add(1))
}

func (d *addonDirectory) counts(idx Index) (addons, filters int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.addons[idx]), len(d.filters[idx])
}

// RegisterAddon adds fn to the addons of type F for name.
func RegisterAddon[F any](r *Registry, name string, prio Priority, fn F) AddonID {
	d := r.addons
	idx := IndexOf[F](name)
	id := d.id()

	d.mu.Lock()
	d.addons.insertSorted(idx, addonEntry{id: id, prio: prio, fn: fn})
	d.mu.Unlock()

	log.Debug(log.CatAddon, "addon registered", "index", idx, "priority", prio, "id", id)
	return id
}

// UnregisterAddon removes the addon registered under id.
func UnregisterAddon[F any](r *Registry, name string, id AddonID) error {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	ok := d.addons.removeID(idx, id)
	d.mu.Unlock()

	if !ok {
		return NewErrAddonNotRegistered(idx, id)
	}
	log.Debug(log.CatAddon, "addon unregistered", "index", idx, "id", id)
	return nil
}

// UnregisterAddons removes every addon of type F for name and reports how many.
func UnregisterAddons[F any](r *Registry, name string) int {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addons.removeWhere(idx, func(addonEntry) bool { return true })
}

// UnregisterAddonsAt removes the addons of type F for name at prio.
func UnregisterAddonsAt[F any](r *Registry, name string, prio Priority) int {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addons.removeWhere(idx, func(e addonEntry) bool { return e.prio == prio })
}

// RegisterAddonFilter adds a filter over the addons of type F for name.
// Filters run in registration order.
func RegisterAddonFilter[F any](r *Registry, name string, prio Priority, filter AddonFilter[F]) AddonID {
	d := r.addons
	idx := IndexOf[F](name)
	id := d.id()

	d.mu.Lock()
	d.filters.append(idx, addonEntry{id: id, prio: prio, fn: filter})
	d.mu.Unlock()

	log.Debug(log.CatAddon, "addon filter registered", "index", idx, "priority", prio, "id", id)
	return id
}

// UnregisterAddonFilter removes one filter by id.
func UnregisterAddonFilter[F any](r *Registry, name string, id AddonID) error {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	ok := d.filters.removeID(idx, id)
	d.mu.Unlock()

	if !ok {
		return NewErrAddonFilterNotRegistered(idx, id)
	}
	return nil
}

// UnregisterAddonFilters removes every filter for name and returns how many
// were removed.
func UnregisterAddonFilters[F any](r *Registry, name string) int {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filters.removeWhere(idx, func(addonEntry) bool { return true })
}

// UnregisterAddonFiltersAt removes the filters for name registered at prio.
func UnregisterAddonFiltersAt[F any](r *Registry, name string, prio Priority) int {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filters.removeWhere(idx, func(e addonEntry) bool { return e.prio == prio })
}

// GetAddons collects the addons of type F for name, then passes the
// collection through each filter. Callbacks run without any registry lock
// held.
func GetAddons[F any](r *Registry, name string) Addons[F] {
	d := r.addons
	idx := IndexOf[F](name)

	d.mu.RLock()
	entries := append([]addonEntry(nil), d.addons[idx]...)
	filters := append([]addonEntry(nil), d.filters[idx]...)
	d.mu.RUnlock()

	out := make(Addons[F], 0, len(entries))
	for _, e := range entries {
		fn, _ := e.fn.(F)
		out = append(out, Addon[F]{ID: e.id, Priority: e.prio, Func: fn})
	}
	for _, e := range filters {
		if filter, ok := e.fn.(AddonFilter[F]); ok && filter != nil {
			filter(&out)
		}
	}
	return out
}
