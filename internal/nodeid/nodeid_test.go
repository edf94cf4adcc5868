package nodeid

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	_, err := FromBytes(make([]byte, 19))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = FromString(strings.Repeat("a", 21))
	assert.ErrorIs(t, err, ErrMalformed)
	id, err := FromString(strings.Repeat("a", 20))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("61", 20), id.String())
}

func TestDistance(t *testing.T) {
	var a, b ID
	b[Length-1] = 5
	assert.Equal(t, 0, Distance(a, a).Sign())
	assert.Equal(t, int64(5), Distance(a, b).Int64())

	for i := range a {
		a[i] = 0xff
	}
	d := Distance(a, ID{})
	assert.Equal(t, -1, d.Cmp(Max))
	assert.Equal(t, 0, new(big.Int).Add(d, big.NewInt(1)).Cmp(Max))
}

func TestFromSeedIsStable(t *testing.T) {
	assert.Equal(t, FromSeed("nascu"), FromSeed("nascu"))
	assert.NotEqual(t, FromSeed("nascu"), FromSeed("other"))
}

func TestNeighbor(t *testing.T) {
	target, err := FromHex("0102030405060708090a0b0c0d0e0f1011121314")
	require.NoError(t, err)
	local, err := FromHex("a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4")
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708090aabacadaeafb0b1b2b3b4", Neighbor(target, local).String())
}
