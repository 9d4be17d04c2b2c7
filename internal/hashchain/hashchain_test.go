package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkHashDeterministic(t *testing.T) {
	payload := map[string]interface{}{
		"framework": "SOC2",
		"score":     0.92,
		"nested":    map[string]interface{}{"b": 2, "a": 1},
	}

	h1, err := LinkHash(payload)
	require.NoError(t, err)
	h2, err := LinkHash(payload)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestLinkHashKeyOrderInvariant(t *testing.T) {
	// Canonicalization sorts keys, so semantically equal maps hash equal.
	a := map[string]interface{}{"x": 1, "y": "two", "z": []interface{}{1, 2}}
	b := map[string]interface{}{"z": []interface{}{1, 2}, "y": "two", "x": 1}

	ha, err := LinkHash(a)
	require.NoError(t, err)
	hb, err := LinkHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestLinkHashDistinguishesContent(t *testing.T) {
	h1, err := LinkHash(map[string]interface{}{"v": 1})
	require.NoError(t, err)
	h2, err := LinkHash(map[string]interface{}{"v": 2})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestLinkHashRejectsUnmarshalable(t *testing.T) {
	_, err := LinkHash(map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestChainHashOrderSensitive(t *testing.T) {
	a := ChainHash("proof-a", "proof-b")
	b := ChainHash("proof-b", "proof-a")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ChainHash("proof-a", "proof-b"))
}

func TestGenesisHashIsNotValidDigest(t *testing.T) {
	// The sentinel must never collide with a real SHA-256 hex digest.
	assert.NotEqual(t, 64, len(GenesisHash))
	assert.Contains(t, GenesisHash, "genesis:")
}
