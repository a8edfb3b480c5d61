package common

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const pairIDSize = 16

// PairID is the identity of a token pair. The hash is order sensitive:
// PairID(a, b) != PairID(b, a), so each direction keeps its own row.
func PairID(src, dst string) string {
	sum := blake2b.Sum256(EncodePacked(
		lengthPrefixed(addressBytes(src)),
		lengthPrefixed(addressBytes(dst)),
	))
	return hex.EncodeToString(sum[:pairIDSize])
}

// NormalizeAddress lower-cases a hex address and makes sure it carries the 0x
// prefix. Non-hex input is returned trimmed but otherwise untouched.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if !EnsureSafeAddressHexString(addr) {
		return addr
	}
	return Prepend0xPrefix(strings.ToLower(Trim0xPrefix(addr)))
}

func addressBytes(addr string) []byte {
	addr = NormalizeAddress(addr)
	if b, err := hex.DecodeString(Trim0xPrefix(addr)); err == nil {
		return b
	}
	return []byte(addr)
}

func lengthPrefixed(b []byte) []byte {
	return append([]byte{byte(len(b))}, b...)
}
