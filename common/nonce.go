package common

import (
	"encoding/hex"
	"errors"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNonceEmpty   = errors.New("nonce is empty")
	ErrNonceInvalid = errors.New("nonce is not a valid unsigned integer")
)

// VaraNonce returns the canonical nonce of a transfer initiated on Vara: the
// decimal representation of the on-chain U256 nonce.
func VaraNonce(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.Text(10)
}

// VaraNonceFromHex normalises a hex encoded U256 nonce. SCALE encodes
// integers little-endian while RPC responses are usually big-endian, so the
// caller names the byte order.
func VaraNonceFromHex(hexStr string, littleEndian bool) (string, error) {
	s := Trim0xPrefix(hexStr)
	if s == "" {
		return "", ErrNonceEmpty
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}

	b, err := hex.DecodeString(s)
	if err != nil || len(b) > 32 {
		return "", ErrNonceInvalid
	}
	if littleEndian {
		b = slices.Clone(b)
		slices.Reverse(b)
	}

	return VaraNonce(new(big.Int).SetBytes(b)), nil
}

// VaraNonceFromString accepts either a decimal literal or a 0x-prefixed
// big-endian hex string.
func VaraNonceFromString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNonceEmpty
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return VaraNonceFromHex(s, false)
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return "", ErrNonceInvalid
	}
	return VaraNonce(n), nil
}

// EthNonce returns the canonical nonce of a transfer initiated on Ethereum.
// Ethereum events carry no bridge nonce, but the pair (block number, tx index)
// identifies the request transaction and is exactly what the Vara historical
// proxy reports when it relays that transaction.
func EthNonce(blockNumber, txIndex uint64) string {
	h := crypto.Keccak256(EncodePacked(
		new(big.Int).SetUint64(blockNumber),
		new(big.Int).SetUint64(txIndex),
	))
	return Prepend0xPrefix(hex.EncodeToString(h))
}

// IsEthNonce reports whether s has the shape of an Ethereum transfer nonce:
// a 0x-prefixed 32 byte hash. Anything else is a Vara nonce.
func IsEthNonce(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	b, err := hex.DecodeString(s[2:])
	return err == nil && len(b) == 32
}

// TransferID derives the row identifier of a transfer from its canonical
// nonce. Vara nonces are decimal and Ethereum nonces are 0x-hex so the two
// spaces never overlap, the hash only fixes the width of the key.
func TransferID(nonce string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}
