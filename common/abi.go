package common

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	logger "github.com/sirupsen/logrus"
)

// EncodePacked concatenates values the way solidity abi.encodePacked does for
// the types the indexer hashes. Integers are encoded as 32-byte words.
func EncodePacked(values ...interface{}) []byte {
	var res [][]byte
	for _, value := range values {
		switch v := value.(type) {
		case string:
			res = append(res, encodeString(v))
		case []byte:
			res = append(res, v)
		case [32]byte:
			res = append(res, v[:])
		case *big.Int:
			res = append(res, math.U256Bytes(new(big.Int).Set(v)))
		case uint64:
			res = append(res, math.U256Bytes(new(big.Int).SetUint64(v)))
		case common.Hash:
			res = append(res, v[:])
		case common.Address:
			res = append(res, v[:])
		default:
			logger.Warnf("EncodePacked: unsupported type %T", value)
		}
	}
	return bytes.Join(res, nil)
}

func encodeString(v string) []byte {
	if strings.HasPrefix(v, "0x") {
		return encodeHexString(v)
	}

	return []byte(v)
}

func encodeHexString(v string) []byte {
	decoded, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
	if err != nil {
		// not hex after all, hash the raw text
		return []byte(v)
	}
	return decoded
}
