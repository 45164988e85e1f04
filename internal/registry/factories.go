package registry

import (
	"slices"
	"sort"
	"sync"
)

// factoryDirectory maps an Index to its factories, one per priority.
type factoryDirectory struct {
	mu      sync.RWMutex
	entries map[Index]map[Priority]Factory
}

func newFactoryDirectory() *factoryDirectory {
	return &factoryDirectory{entries: make(map[Index]map[Priority]Factory)}
}

func (d *factoryDirectory) register(idx Index, prio Priority, f Factory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byPrio, ok := d.entries[idx]
	if !ok {
		byPrio = make(map[Priority]Factory)
		d.entries[idx] = byPrio
	}
	if _, exists := byPrio[prio]; exists {
		return NewErrAlreadyRegistered(idx, prio)
	}
	byPrio[prio] = f
	return nil
}

func (d *factoryDirectory) unregister(idx Index, prio Priority) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byPrio, ok := d.entries[idx]
	if !ok {
		return NewErrFactoryNotRegisteredAt(idx, prio)
	}
	if _, exists := byPrio[prio]; !exists {
		return NewErrFactoryNotRegisteredAt(idx, prio)
	}
	delete(byPrio, prio)
	if len(byPrio) == 0 {
		delete(d.entries, idx)
	}
	return nil
}

// resolution is the outcome of a factory lookup.
type resolution struct {
	index    Index // the Index the factory is registered under
	priority Priority
	factory  Factory
}

// resolve looks up idx, then the default Index of the same type, and picks
// the highest priority entry.
func (d *factoryDirectory) resolve(idx Index) (resolution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	at := idx
	byPrio, ok := d.entries[at]
	if !ok {
		at = idx.Default()
		byPrio, ok = d.entries[at]
	}
	if !ok {
		return resolution{}, NewErrFactoryNotRegistered(idx)
	}

	var best resolution
	found := false
	for prio, f := range byPrio {
		if !found || prio > best.priority {
			best = resolution{index: at, priority: prio, factory: f}
			found = true
		}
	}
	return best, nil
}

func (d *factoryDirectory) resolvable(idx Index) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.entries[idx]; ok {
		return true
	}
	_, ok := d.entries[idx.Default()]
	return ok
}

func (d *factoryDirectory) clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, byPrio := range d.entries {
		n += len(byPrio)
	}
	d.entries = make(map[Index]map[Priority]Factory)
	return n
}

// FactoryInfo describes the factories registered for one Index.
type FactoryInfo struct {
	Index      Index      `yaml:"-"`
	Type       string     `yaml:"type"`
	Name       string     `yaml:"name,omitempty"`
	Priorities []Priority `yaml:"-"`
	Levels     []string   `yaml:"priorities"`
}

func (d *factoryDirectory) list() []FactoryInfo {
	d.mu.RLock()
	out := make([]FactoryInfo, 0, len(d.entries))
	for idx, byPrio := range d.entries {
		prios := make([]Priority, 0, len(byPrio))
		for p := range byPrio {
			prios = append(prios, p)
		}
		out = append(out, FactoryInfo{Index: idx, Priorities: prios})
	}
	d.mu.RUnlock()

	for i := range out {
		slices.Sort(out[i].Priorities)
		out[i].Type = out[i].Index.TypeName()
		out[i].Name = out[i].Index.Name
		for _, p := range out[i].Priorities {
			out[i].Levels = append(out[i].Levels, p.String())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
