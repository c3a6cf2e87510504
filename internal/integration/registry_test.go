package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(cfg Config) (Integration, error) {
	return &scriptedIntegration{conditions: true}, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("bureau", noopFactory))

	svc, err := reg.Resolve(Config{Integration: "bureau"})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRegistry_DuplicateKeyRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("bureau", noopFactory))

	err := reg.Register("bureau", noopFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve(Config{Integration: "missing"})
	require.Error(t, err)
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("citizen", noopFactory))
	require.NoError(t, reg.Register("bureau", noopFactory))
	require.NoError(t, reg.Register("blacklist", noopFactory))

	assert.Equal(t, []string{"blacklist", "bureau", "citizen"}, reg.List())
}

func TestRegistry_EmptyKeyRejected(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.Register("", noopFactory))
	require.Error(t, reg.Register("x", nil))
}
