package common

import (
	"crypto/rand"
	"encoding/hex"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func RandEthAddress() ethcommon.Address {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return ethcommon.Address{}
	}
	return ethcommon.BytesToAddress(b[:])
}

// RandVaraAddress returns a random 32-byte actor id as lower-case 0x-hex.
func RandVaraAddress() string {
	b := RandBytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// RandTxHash returns a random 32-byte hash as lower-case 0x-hex.
func RandTxHash() string {
	return RandVaraAddress()
}
