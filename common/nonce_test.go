package common

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaraNonceEncodingsAgree(t *testing.T) {
	n := big.NewInt(0x0102)

	dec := VaraNonce(n)
	assert.Equal(t, "258", dec)

	be, err := VaraNonceFromHex("0x0102", false)
	require.NoError(t, err)
	le, err := VaraNonceFromHex("0x0201", true)
	require.NoError(t, err)
	lit, err := VaraNonceFromString("258")
	require.NoError(t, err)
	hexLit, err := VaraNonceFromString("0x00000102")
	require.NoError(t, err)

	assert.Equal(t, dec, be)
	assert.Equal(t, dec, le)
	assert.Equal(t, dec, lit)
	assert.Equal(t, dec, hexLit)
}

func TestVaraNonceLeadingZeroBytes(t *testing.T) {
	// a 32-byte little-endian U256 with trailing zero bytes
	le := "0x2a" + "00000000000000000000000000000000000000000000000000000000000000"
	nonce, err := VaraNonceFromHex(le, true)
	require.NoError(t, err)
	assert.Equal(t, "42", nonce)
}

func TestVaraNonceInvalid(t *testing.T) {
	_, err := VaraNonceFromString("")
	assert.Equal(t, ErrNonceEmpty, err)

	_, err = VaraNonceFromString("-1")
	assert.Equal(t, ErrNonceInvalid, err)

	_, err = VaraNonceFromString("12ab")
	assert.Equal(t, ErrNonceInvalid, err)

	_, err = VaraNonceFromHex("0xzz", false)
	assert.Equal(t, ErrNonceInvalid, err)

	// more than 32 bytes cannot be a U256
	_, err = VaraNonceFromHex("0x01"+
		"0000000000000000000000000000000000000000000000000000000000000000", false)
	assert.Equal(t, ErrNonceInvalid, err)
}

func TestEthNonceDeterministic(t *testing.T) {
	a := EthNonce(100, 3)
	b := EthNonce(100, 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 66)

	seen := map[string]struct{}{}
	for blk := uint64(1); blk <= 50; blk++ {
		for idx := uint64(0); idx < 20; idx++ {
			n := EthNonce(blk, idx)
			_, dup := seen[n]
			assert.False(t, dup, "collision at block %d index %d", blk, idx)
			seen[n] = struct{}{}
		}
	}

	// swapping the tuple gives a different transfer
	assert.NotEqual(t, EthNonce(3, 100), EthNonce(100, 3))
}

func TestIsEthNonce(t *testing.T) {
	n := EthNonce(100, 3)
	assert.True(t, IsEthNonce(n))
	assert.True(t, IsEthNonce("0X"+strings.ToUpper(Trim0xPrefix(n))))

	for _, s := range []string{"42", "0x42", "0x2a", "", "0x", n[:64], n + "00"} {
		assert.False(t, IsEthNonce(s), s)
	}
}

func TestTransferID(t *testing.T) {
	assert.Equal(t, TransferID("42"), TransferID("42"))
	assert.NotEqual(t, TransferID("42"), TransferID("43"))
	assert.Len(t, TransferID("42"), 32)
}
