// Implement following interfaces to plug a chain into the indexer.
package chainsync

import (
	"context"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/registry"
	"github.com/TEENet-io/bridge-indexer/state"
)

// Chain's Sync Worker, do the dirty job.
type SyncWorker interface {
	// Highest block that can no longer be reverted.
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)

	// Fetch interesting events of blocks [from, to] from the blockchain.
	// Notice, the events shall be ordered from old -> new, within a block
	// in emission order. Otherwise the bridge process will have logic bugs.
	GetTimeOrderedEvents(ctx context.Context, from, to uint64) ([]*agreement.Event, error)
}

// StateStore is the durable side of a pipeline.
type StateStore interface {
	state.Store
	registry.ProgramStore
	GetLastProcessedBlock(network agreement.Network) (uint64, bool, error)
}
