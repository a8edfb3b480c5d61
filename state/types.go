package state

import (
	"math/big"
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
)

// Transfer is one cross-chain transfer, keyed by its canonical nonce.
type Transfer struct {
	ID            string
	Nonce         string
	SourceNetwork agreement.Network
	DestNetwork   agreement.Network
	Source        string // token on the source chain
	Destination   string // token on the destination chain, empty if no pair was known
	Sender        string
	Receiver      string
	Amount        *big.Int
	Status        TransferStatus
	TxHash        string
	BlockNumber   uint64
	Timestamp     time.Time

	BridgingStartedAtBlock  *uint64
	BridgingStartedAtTxHash *string

	CompletedAt       *time.Time
	CompletedAtBlock  *uint64
	CompletedAtTxHash *string

	IsPriorityFeePaid bool
}

func (t *Transfer) Clone() *Transfer {
	c := *t
	c.Amount = common.BigIntClone(t.Amount)
	return &c
}

// Pair maps a Vara token to an Ethereum token.
type Pair struct {
	ID                string
	VaraToken         string
	VaraTokenSymbol   string
	VaraTokenName     string
	VaraTokenDecimals uint8
	EthToken          string
	EthTokenSymbol    string
	EthTokenName      string
	EthTokenDecimals  uint8
	TokenSupply       agreement.Network // network where the token is native
	IsActive          bool
	IsRemoved         bool
	ActiveSinceBlock  uint64
	ActiveToBlock     *uint64
	UpgradedTo        *string // id of the pair that replaced this one
}

// GearEthBridgeMessage is a message put into the Vara outbound queue.
type GearEthBridgeMessage struct {
	Hash        string
	Nonce       string
	Source      string
	Destination string
	BlockNumber uint64
	Timestamp   time.Time
}

// MerkleRootInMessageQueue is a queue merkle root taken at a Vara block,
// optionally submitted to Ethereum later.
type MerkleRootInMessageQueue struct {
	BlockNumber uint64 // Vara block, also the id
	MerkleRoot  string
	Timestamp   time.Time

	SubmittedAtBlock  *uint64
	SubmittedAtTxHash *string
}

// CheckpointSlot is a beacon slot accepted by the checkpoint light client.
type CheckpointSlot struct {
	Slot         uint64
	TreeHashRoot string
	BlockNumber  uint64
	Timestamp    time.Time
}

// Program is a tracked on-chain program address, keyed by (network, name).
type Program struct {
	Network        agreement.Network
	Name           string
	Address        string
	UpdatedAtBlock uint64
}
