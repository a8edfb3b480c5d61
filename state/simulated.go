package state

import (
	"database/sql"
	"math/big"
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"
)

// RandTransfer returns a valid transfer requested on network.
func RandTransfer(network agreement.Network, nonce string) *Transfer {
	return &Transfer{
		ID:            common.TransferID(nonce),
		Nonce:         nonce,
		SourceNetwork: network,
		DestNetwork:   network.Counterpart(),
		Source:        common.RandVaraAddress(),
		Destination:   common.NormalizeAddress(common.RandEthAddress().Hex()),
		Sender:        common.RandVaraAddress(),
		Receiver:      common.NormalizeAddress(common.RandEthAddress().Hex()),
		Amount:        big.NewInt(1000),
		Status:        TransferStatusAwaitingPayment,
		TxHash:        common.RandTxHash(),
		BlockNumber:   1,
		Timestamp:     time.UnixMilli(1700000000000).UTC(),
	}
}

func RandPair(activeSince uint64) *Pair {
	vara := common.RandVaraAddress()
	eth := common.NormalizeAddress(common.RandEthAddress().Hex())
	return &Pair{
		ID:                common.PairID(vara, eth),
		VaraToken:         vara,
		VaraTokenSymbol:   "wUSDC",
		VaraTokenName:     "Wrapped USDC",
		VaraTokenDecimals: 6,
		EthToken:          eth,
		EthTokenSymbol:    "USDC",
		EthTokenName:      "USD Coin",
		EthTokenDecimals:  6,
		TokenSupply:       agreement.NetworkEthereum,
		IsActive:          true,
		ActiveSinceBlock:  activeSince,
	}
}

// getMemoryDB opens an in-memory database. A single connection keeps every
// caller on the same database.
func getMemoryDB() *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	return db
}

// NewMemoryStateDB is a StateDB over a fresh in-memory database, for tests
// of the packages that build on state.
func NewMemoryStateDB() (*StateDB, func()) {
	db := getMemoryDB()
	st, err := NewStateDB(db)
	if err != nil {
		logger.Fatal(err)
	}
	return st, func() {
		st.Close()
		db.Close()
	}
}
