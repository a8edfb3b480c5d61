// Golbal Agreement on types

package agreement

import (
	"fmt"
	"time"
)

// Network names one side of the bridge.
type Network string

const (
	NetworkVara     Network = "Vara"
	NetworkEthereum Network = "Ethereum"
)

func (n Network) Valid() bool {
	return n == NetworkVara || n == NetworkEthereum
}

// Counterpart returns the other side of the bridge.
func (n Network) Counterpart() Network {
	if n == NetworkVara {
		return NetworkEthereum
	}
	return NetworkVara
}

// BlockHeader identifies the block an event was emitted in.
type BlockHeader struct {
	Number    uint64
	Hash      string
	Timestamp time.Time
}

// Event is one decoded on-chain event as delivered by a chain adapter.
type Event struct {
	Network Network
	Block   BlockHeader
	TxHash   string // extrinsic hash on Vara, tx hash on Ethereum
	TxIndex  uint64
	LogIndex uint64 // emission order in the block
	Source   string // emitting program (Vara) or contract (Ethereum)
	Payload  Payload
}

// Dispatch hands the typed payload to the matching visitor method.
func (ev *Event) Dispatch(v PayloadVisitor) error {
	if ev.Payload == nil {
		return nil
	}
	return ev.Payload.accept(ev, v)
}

func (ev *Event) Kind() string {
	if ev.Payload == nil {
		return ""
	}
	return ev.Payload.Kind()
}

// Debug
func (ev *Event) String() string {
	return fmt.Sprintf("%s %s@%d tx=%s src=%s", ev.Network, ev.Kind(), ev.Block.Number, ev.TxHash, ev.Source)
}

// ProgramChange is the new state reported by a Gear ProgramChanged event.
type ProgramChange string

const (
	ProgramChangeActive     ProgramChange = "Active"
	ProgramChangeInactive   ProgramChange = "Inactive"
	ProgramChangeExited     ProgramChange = "Exited"
	ProgramChangeTerminated ProgramChange = "Terminated"
	ProgramChangeProgramSet ProgramChange = "ProgramSet"
)

// Deactivated reports whether the program handed its state to an inheritor.
func (c ProgramChange) Deactivated() bool {
	return c == ProgramChangeInactive || c == ProgramChangeExited
}
