// Package flags provides feature flag support for controlled feature rollout.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/registrar/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagStrictContracts makes `registrar check` fail on unsatisfied contracts
	// even without --strict.
	FlagStrictContracts = "strict-contracts"

	// FlagExclusiveReloadHooks runs only the highest priority reload hooks
	// after a config change instead of all of them.
	FlagExclusiveReloadHooks = "exclusive-reload-hooks"

	// FlagTestContractsOnReload resolves every contract again after a reload.
	FlagTestContractsOnReload = "test-contracts-on-reload"
)

// Known lists every flag the application reads.
func Known() []string {
	return []string{FlagStrictContracts, FlagExclusiveReloadHooks, FlagTestContractsOnReload}
}

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	for name := range r.flags {
		if !slices.Contains(Known(), name) {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags and on a nil registry.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		return false
	}
	return value
}

// All returns a copy of all flags (for debugging/logging).
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
