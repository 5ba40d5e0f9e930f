package toolchain

import (
	"testing"

	"github.com/moonrepo/moon-core/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesVersionEmptyConstraintAlwaysMatches(t *testing.T) {
	ok, err := MatchesVersion("", "1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchesVersionSatisfiesRange(t *testing.T) {
	ok, err := MatchesVersion(">=1.2.0, <2.0.0", "1.5.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesVersion(">=1.2.0, <2.0.0", "2.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesVersionRejectsInvalidConstraint(t *testing.T) {
	_, err := MatchesVersion("not-a-constraint!!", "1.0.0")
	assert.Error(t, err)
}

func TestRegistryGetUnknownToolchain(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(id.MustNew("node"))
	assert.Error(t, err)
}

func TestRegistryGetKnownToolchain(t *testing.T) {
	node := &Toolchain{ID: id.MustNew("node")}
	r := NewRegistry(node)

	got, err := r.Get(id.MustNew("node"))
	require.NoError(t, err)
	assert.Same(t, node, got)
}

func TestHashTaskContentsOptional(t *testing.T) {
	tc := &Toolchain{ID: id.MustNew("system")}
	assert.Nil(t, tc.HashTaskContents)
}

func TestSystemToolchainSetupAlwaysSatisfied(t *testing.T) {
	tc := NewSystemToolchain()
	assert.Equal(t, SystemToolchainID, tc.ID)
	version, err := tc.Setup(">=99.0.0")
	require.NoError(t, err)
	assert.Equal(t, "system", version)
}
