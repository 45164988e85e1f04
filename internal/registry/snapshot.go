package registry

import (
	"sort"
	"time"
)

// Snapshot is a point-in-time description of a registry.
type Snapshot struct {
	ID           string         `yaml:"id"`
	Version      string         `yaml:"version"`
	ShuttingDown bool           `yaml:"shutting_down"`
	Building     int            `yaml:"building"`
	Factories    []FactoryInfo  `yaml:"factories"`
	Objects      []ObjectInfo   `yaml:"objects"`
	Contracts    []ContractInfo `yaml:"contracts"`
	Addons       []AddonInfo    `yaml:"addons,omitempty"`
}

// ObjectInfo describes one built object.
type ObjectInfo struct {
	Seq       uint64    `yaml:"seq"`
	Type      string    `yaml:"type"`
	Name      string    `yaml:"name,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	Closeable bool      `yaml:"closeable"`
}

// ContractInfo describes one open contract. Satisfied means a factory can
// serve it; Built means the object already exists.
type ContractInfo struct {
	ID        uint64 `yaml:"id"`
	Type      string `yaml:"type"`
	Name      string `yaml:"name,omitempty"`
	Satisfied bool   `yaml:"satisfied"`
	Built     bool   `yaml:"built"`
}

// AddonInfo counts the addons and filters registered for one Index.
type AddonInfo struct {
	Type    string `yaml:"type"`
	Name    string `yaml:"name,omitempty"`
	Addons  int    `yaml:"addons"`
	Filters int    `yaml:"filters"`
}

// Snapshot describes r without building anything.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		ID:           r.ID(),
		Version:      r.Version(),
		ShuttingDown: r.IsShuttingDown(),
		Building:     r.guard.building(),
		Factories:    r.factories.list(),
	}

	for _, obj := range r.objects.list() {
		_, closeable := obj.value.(interface{ Close() error })
		if !closeable {
			_, closeable = obj.value.(ContextCloser)
		}
		s.Objects = append(s.Objects, ObjectInfo{
			Seq:       obj.seq,
			Type:      obj.index.TypeName(),
			Name:      obj.index.Name,
			CreatedAt: obj.created,
			Closeable: closeable,
		})
	}

	for _, rec := range r.contracts.snapshot() {
		idx := rec.Index()
		s.Contracts = append(s.Contracts, ContractInfo{
			ID:        rec.ID(),
			Type:      idx.TypeName(),
			Name:      idx.Name,
			Satisfied: r.factories.resolvable(idx),
			Built:     r.InstanceExists(idx),
		})
	}

	s.Addons = r.addonInfo()
	return s
}

func (r *Registry) addonInfo() []AddonInfo {
	d := r.addons
	d.mu.RLock()
	seen := make(map[Index]struct{}, len(d.addons)+len(d.filters))
	for idx := range d.addons {
		seen[idx] = struct{}{}
	}
	for idx := range d.filters {
		seen[idx] = struct{}{}
	}
	d.mu.RUnlock()

	out := make([]AddonInfo, 0, len(seen))
	for idx := range seen {
		addons, filters := d.counts(idx)
		out = append(out, AddonInfo{Type: idx.TypeName(), Name: idx.Name, Addons: addons, Filters: filters})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
