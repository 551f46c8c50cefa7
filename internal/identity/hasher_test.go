package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasher_RequiresKey(t *testing.T) {
	_, err := NewHasher("")
	assert.ErrorIs(t, err, ErrMissingHashKey)
}

func TestHasher_Deterministic(t *testing.T) {
	h, err := NewHasher("test-key")
	require.NoError(t, err)

	a := h.HashEmail("bob@example.com")
	b := h.HashEmail("bob@example.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	// email and phone hash domains do not collide on equal input
	assert.NotEqual(t, h.HashEmail("+14155550100"), h.HashPhone("+14155550100"))

	// different keys yield different hashes
	h2, err := NewHasher("other-key")
	require.NoError(t, err)
	assert.NotEqual(t, a, h2.HashEmail("bob@example.com"))
}
