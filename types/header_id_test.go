package types

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFromBytes(t *testing.T) {
	sum := sha256.Sum256([]byte("header"))
	h, err := HashFromBytes(sum[:])
	require.NoError(t, err)
	assert.Equal(t, sum[:], h.Bytes())
	assert.False(t, h.IsZero())
	assert.True(t, Hash{}.IsZero())

	_, err = HashFromBytes(sum[:10])
	assert.Error(t, err)
}

func TestHeaderIDJSON(t *testing.T) {
	id := NewHeaderID(42, sha256.Sum256([]byte("header")))

	bz, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded HeaderID
	require.NoError(t, json.Unmarshal(bz, &decoded))
	assert.Equal(t, id, decoded)
	assert.EqualValues(t, 42, decoded.Height())

	assert.Error(t, json.Unmarshal([]byte(`{"number":1,"hash":"zz"}`), &decoded))
}

func TestHeaderIDsOfForksDiffer(t *testing.T) {
	a := NewHeaderID(7, sha256.Sum256([]byte("a")))
	b := NewHeaderID(7, sha256.Sum256([]byte("b")))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a.Height(), b.Height())
}
