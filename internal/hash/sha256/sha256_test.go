package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashReturnsStableHexDigest(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("export of munitions requires a permit"))
	require.NoError(t, err)
	second, err := h.Hash([]byte("export of munitions requires a permit"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestChanged(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("v1"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("v2"))
	require.NoError(t, err)

	require.True(t, Changed(a, b))
	require.True(t, Changed("", a))
	require.False(t, Changed(a, a))
}
