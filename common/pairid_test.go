package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairIDDirectional(t *testing.T) {
	vara := RandVaraAddress()
	eth := RandEthAddress().Hex()

	assert.NotEqual(t, PairID(vara, eth), PairID(eth, vara))
	assert.Equal(t, PairID(vara, eth), PairID(vara, eth))
	assert.Len(t, PairID(vara, eth), 32)
}

func TestPairIDIgnoresAddressCase(t *testing.T) {
	eth := RandEthAddress()
	vara := RandVaraAddress()

	// checksummed and lower-case forms are the same token
	assert.Equal(t, PairID(vara, eth.Hex()), PairID(vara, NormalizeAddress(eth.Hex())))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("ABCDEF"))
	assert.Equal(t, "0xabcdef", NormalizeAddress(" 0xAbCdEf "))
	assert.Equal(t, "", NormalizeAddress(""))
	assert.Equal(t, "not-hex", NormalizeAddress("not-hex"))
}
