package agreement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

// Payload is the closed set of event categories the indexer understands.
// The unexported method keeps the set closed to this package; every variant
// routes to its own PayloadVisitor method.
type Payload interface {
	Kind() string
	accept(ev *Event, v PayloadVisitor) error
}

// Amount is a U256 carried as a JSON string in decimal or 0x-hex form.
type Amount = math.HexOrDecimal256

func AmountToBig(a *Amount) *big.Int {
	if a == nil {
		return nil
	}
	return new(big.Int).Set((*big.Int)(a))
}

func NewAmount(n *big.Int) *Amount {
	return (*Amount)(new(big.Int).Set(n))
}

// VaraBridgingRequested is emitted by vft-manager when a user locks or burns
// tokens on Vara. Nonce is the eth-bridge message nonce, in whatever encoding
// the adapter produced.
type VaraBridgingRequested struct {
	Nonce     string  `json:"nonce"`
	VaraToken string  `json:"varaTokenId"`
	Amount    *Amount `json:"amount"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
}

func (*VaraBridgingRequested) Kind() string { return KindVaraBridgingRequested }
func (p *VaraBridgingRequested) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitVaraBridgingRequested(ev, p)
}

// EthBridgingRequested is emitted by the ERC20 manager. It carries no nonce;
// the transfer is identified by the block and index of its transaction.
type EthBridgingRequested struct {
	Token    string  `json:"token"`
	Amount   *Amount `json:"amount"`
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
}

func (*EthBridgingRequested) Kind() string { return KindEthBridgingRequested }
func (p *EthBridgingRequested) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitEthBridgingRequested(ev, p)
}

// BridgingPaid reports the bridging fee was paid. On Ethereum the fee is paid
// in the request transaction and Nonce is empty.
type BridgingPaid struct {
	Nonce string `json:"nonce,omitempty"`
}

func (*BridgingPaid) Kind() string { return KindBridgingPaid }
func (p *BridgingPaid) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitBridgingPaid(ev, p)
}

// PriorityBridgingPaid reports the priority fee was paid.
type PriorityBridgingPaid struct {
	Nonce string `json:"nonce,omitempty"`
}

func (*PriorityBridgingPaid) Kind() string { return KindPriorityBridgingPaid }
func (p *PriorityBridgingPaid) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitPriorityBridgingPaid(ev, p)
}

// BridgingFailed is an explicit failure signal for a transfer.
type BridgingFailed struct {
	Nonce  string `json:"nonce,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (*BridgingFailed) Kind() string { return KindBridgingFailed }
func (p *BridgingFailed) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitBridgingFailed(ev, p)
}

// HistoricalProxyRelayed is emitted on Vara once an Ethereum transaction has
// been proven and its request delivered.
type HistoricalProxyRelayed struct {
	Slot             uint64 `json:"slot"`
	BlockNumber      uint64 `json:"blockNumber"`
	TransactionIndex uint64 `json:"transactionIndex"`
}

func (*HistoricalProxyRelayed) Kind() string { return KindHistoricalProxyRelayed }
func (p *HistoricalProxyRelayed) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitHistoricalProxyRelayed(ev, p)
}

// EthBridgeMessageQueued is emitted by the eth-bridge pallet when a message is
// put into the outbound queue.
type EthBridgeMessageQueued struct {
	Hash        string `json:"hash"`
	Nonce       string `json:"nonce"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (*EthBridgeMessageQueued) Kind() string { return KindEthBridgeMessageQueued }
func (p *EthBridgeMessageQueued) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitEthBridgeMessageQueued(ev, p)
}

// QueueMerkleRootChanged is the periodic merkle root of the outbound queue.
type QueueMerkleRootChanged struct {
	Root string `json:"root"`
}

func (*QueueMerkleRootChanged) Kind() string { return KindQueueMerkleRootChanged }
func (p *QueueMerkleRootChanged) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitQueueMerkleRootChanged(ev, p)
}

// CheckpointAdded is emitted by the checkpoint light client for every new
// beacon slot it accepts.
type CheckpointAdded struct {
	Slot         uint64 `json:"slot"`
	TreeHashRoot string `json:"treeHashRoot"`
}

func (*CheckpointAdded) Kind() string { return KindCheckpointAdded }
func (p *CheckpointAdded) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitCheckpointAdded(ev, p)
}

// ProgramChanged is the Gear pallet lifecycle event of a program.
type ProgramChanged struct {
	ProgramID string        `json:"programId"`
	Change    ProgramChange `json:"change"`
}

func (*ProgramChanged) Kind() string { return KindProgramChanged }
func (p *ProgramChanged) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitProgramChanged(ev, p)
}

// TokenMappingAdded registers a new pair in vft-manager.
type TokenMappingAdded struct {
	VaraToken         string  `json:"varaToken"`
	VaraTokenSymbol   string  `json:"varaTokenSymbol"`
	VaraTokenName     string  `json:"varaTokenName"`
	VaraTokenDecimals uint8   `json:"varaTokenDecimals"`
	EthToken          string  `json:"ethToken"`
	EthTokenSymbol    string  `json:"ethTokenSymbol"`
	EthTokenName      string  `json:"ethTokenName"`
	EthTokenDecimals  uint8   `json:"ethTokenDecimals"`
	Supply            Network `json:"supply"`
}

func (*TokenMappingAdded) Kind() string { return KindTokenMappingAdded }
func (p *TokenMappingAdded) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitTokenMappingAdded(ev, p)
}

// TokenMappingRemoved retires a pair in vft-manager.
type TokenMappingRemoved struct {
	VaraToken string `json:"varaToken"`
	EthToken  string `json:"ethToken"`
}

func (*TokenMappingRemoved) Kind() string { return KindTokenMappingRemoved }
func (p *TokenMappingRemoved) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitTokenMappingRemoved(ev, p)
}

// MessageProcessed is emitted by the Ethereum message queue once a Vara
// message was delivered.
type MessageProcessed struct {
	VaraBlockNumber uint64 `json:"blockNumber"`
	MessageHash     string `json:"messageHash"`
	MessageNonce    string `json:"messageNonce"`
	Source          string `json:"source"` // Vara program that sent the message
}

func (*MessageProcessed) Kind() string { return KindMessageProcessed }
func (p *MessageProcessed) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitMessageProcessed(ev, p)
}

// MerkleRootSubmitted is emitted on Ethereum when a relayer submits a queue
// merkle root taken at a Vara block.
type MerkleRootSubmitted struct {
	VaraBlockNumber uint64 `json:"blockNumber"`
	MerkleRoot      string `json:"merkleRoot"`
}

func (*MerkleRootSubmitted) Kind() string { return KindMerkleRootSubmitted }
func (p *MerkleRootSubmitted) accept(ev *Event, v PayloadVisitor) error {
	return v.VisitMerkleRootSubmitted(ev, p)
}
