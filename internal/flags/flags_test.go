package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{
			name:     "known flag set to true returns true",
			registry: New(map[string]bool{FlagStrictContracts: true}),
			flag:     FlagStrictContracts,
			expected: true,
		},
		{
			name:     "known flag set to false returns false",
			registry: New(map[string]bool{FlagExclusiveReloadHooks: false}),
			flag:     FlagExclusiveReloadHooks,
			expected: false,
		},
		{
			name:     "unknown flag returns false",
			registry: New(map[string]bool{FlagStrictContracts: true}),
			flag:     "unknown-flag",
			expected: false,
		},
		{
			name:     "nil registry returns false",
			registry: nil,
			flag:     FlagStrictContracts,
			expected: false,
		},
		{
			name:     "nil flags map returns false",
			registry: New(nil),
			flag:     FlagStrictContracts,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_All(t *testing.T) {
	input := map[string]bool{FlagStrictContracts: true, "custom": false}
	r := New(input)

	all := r.All()
	require.Equal(t, input, all)

	// Copies are independent in both directions.
	all[FlagStrictContracts] = false
	input[FlagExclusiveReloadHooks] = true
	require.True(t, r.Enabled(FlagStrictContracts))
	require.False(t, r.Enabled(FlagExclusiveReloadHooks))

	var nilRegistry *Registry
	require.Empty(t, nilRegistry.All())
}

func TestKnown(t *testing.T) {
	require.ElementsMatch(t, []string{
		FlagStrictContracts,
		FlagExclusiveReloadHooks,
		FlagTestContractsOnReload,
	}, Known())
}
