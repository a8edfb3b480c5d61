package agreement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TEENet-io/bridge-indexer/common"
)

// Event kinds as reported by the adapters: "Service/Method" for Sails
// programs, "Pallet.Event" for runtime events and "Contract.Event" for
// Ethereum logs.
const (
	KindVaraBridgingRequested  = "VftManager/BridgingRequested"
	KindEthBridgingRequested   = "ERC20Manager.BridgingRequested"
	KindBridgingPaid           = "BridgingPayment/BridgingPaid"
	KindPriorityBridgingPaid   = "BridgingPayment/PriorityBridgingPaid"
	KindBridgingFailed         = "VftManager/BridgingFailed"
	KindHistoricalProxyRelayed = "HistoricalProxy/Relayed"
	KindEthBridgeMessageQueued = "GearEthBridge.MessageQueued"
	KindQueueMerkleRootChanged = "GearEthBridge.QueueMerkleRootChanged"
	KindCheckpointAdded        = "CheckpointLightClient/NewCheckpoint"
	KindProgramChanged         = "Gear.ProgramChanged"
	KindTokenMappingAdded      = "VftManager/TokenMappingAdded"
	KindTokenMappingRemoved    = "VftManager/TokenMappingRemoved"
	KindMessageProcessed       = "MessageQueue.MessageProcessed"
	KindMerkleRootSubmitted    = "MessageQueue.MerkleRoot"

	// Ethereum spellings of the payment and failure events
	KindEthFeePaid         = "BridgingPayment.FeePaid"
	KindEthPriorityFeePaid = "BridgingPayment.PriorityFeePaid"
	KindEthBridgingFailed  = "ERC20Manager.BridgingFailed"
)

var ErrPayloadInvalid = errors.New("event payload is invalid")

// RawEvent is the wire form of an already decoded event.
type RawEvent struct {
	BlockNumber    uint64          `json:"blockNumber"`
	BlockHash      string          `json:"blockHash"`
	BlockTimestamp int64           `json:"blockTimestamp"` // unix milliseconds
	TxHash         string          `json:"txHash"`
	TxIndex        uint64          `json:"txIndex"`
	LogIndex       uint64          `json:"logIndex"` // position in the block
	Source         string          `json:"source"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

var payloadFactories = map[Network]map[string]func() Payload{
	NetworkVara: {
		KindVaraBridgingRequested:  func() Payload { return &VaraBridgingRequested{} },
		KindBridgingPaid:           func() Payload { return &BridgingPaid{} },
		KindPriorityBridgingPaid:   func() Payload { return &PriorityBridgingPaid{} },
		KindBridgingFailed:         func() Payload { return &BridgingFailed{} },
		KindHistoricalProxyRelayed: func() Payload { return &HistoricalProxyRelayed{} },
		KindEthBridgeMessageQueued: func() Payload { return &EthBridgeMessageQueued{} },
		KindQueueMerkleRootChanged: func() Payload { return &QueueMerkleRootChanged{} },
		KindCheckpointAdded:        func() Payload { return &CheckpointAdded{} },
		KindProgramChanged:         func() Payload { return &ProgramChanged{} },
		KindTokenMappingAdded:      func() Payload { return &TokenMappingAdded{} },
		KindTokenMappingRemoved:    func() Payload { return &TokenMappingRemoved{} },
	},
	NetworkEthereum: {
		KindEthBridgingRequested: func() Payload { return &EthBridgingRequested{} },
		KindEthFeePaid:           func() Payload { return &BridgingPaid{} },
		KindEthPriorityFeePaid:   func() Payload { return &PriorityBridgingPaid{} },
		KindEthBridgingFailed:    func() Payload { return &BridgingFailed{} },
		KindMessageProcessed:     func() Payload { return &MessageProcessed{} },
		KindMerkleRootSubmitted:  func() Payload { return &MerkleRootSubmitted{} },
	},
}

// DecodeEvent turns a raw adapter event into a typed Event. Unknown kinds
// return (nil, nil): the streams legitimately carry unrelated traffic.
func DecodeEvent(network Network, raw *RawEvent) (*Event, error) {
	factories, ok := payloadFactories[network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", network)
	}

	newPayload, ok := factories[raw.Kind]
	if !ok {
		return nil, nil
	}

	payload := newPayload()
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return nil, fmt.Errorf("%w: kind=%s block=%d: %v", ErrPayloadInvalid, raw.Kind, raw.BlockNumber, err)
		}
	}

	return &Event{
		Network: network,
		Block: BlockHeader{
			Number:    raw.BlockNumber,
			Hash:      raw.BlockHash,
			Timestamp: common.UnixMilli(raw.BlockTimestamp),
		},
		TxHash:   raw.TxHash,
		TxIndex:  raw.TxIndex,
		LogIndex: raw.LogIndex,
		Source:   common.NormalizeAddress(raw.Source),
		Payload:  payload,
	}, nil
}
