package common

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	n, err := rand.Read(b[:])

	if err != nil {
		return [32]byte{}
	}
	if n != 32 {
		return [32]byte{}
	}

	return b
}

func RandBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil
	}
	return b
}

func BigIntClone(bigInt *big.Int) *big.Int {
	if bigInt == nil {
		return nil
	}
	return new(big.Int).Set(bigInt)
}

// UnixMilli converts a chain timestamp in milliseconds. Zero stays the zero
// time so that unset timestamps round-trip through the database.
func UnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func ToUnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

var hexCharRegexp = regexp.MustCompile(`^[a-fA-F0-9]$`)

func IsHexChar(c rune) bool {
	return hexCharRegexp.MatchString(string(c))
}

// EnsureSafeAddressHexString ensures that the hex string is safe to use
// It can contain 0x as prefix or not.
// It can contain a-f, A-F, 0-9
// It doesn't contain any other characters
func EnsureSafeAddressHexString(hexStr string) bool {
	if len(hexStr) < 2 {
		return false
	}
	if len(hexStr) > 100 {
		return false
	}
	if strings.HasPrefix(hexStr, "0x") || strings.HasPrefix(hexStr, "0X") {
		hexStr = hexStr[2:]
	}
	for _, c := range hexStr {
		// use regex to match each charater of the string
		if !IsHexChar(c) {
			return false
		}
	}
	return true
}
