package chainsync

import (
	"fmt"

	"github.com/TEENet-io/bridge-indexer/agreement"
)

// BatchError halts a pipeline. It names the block range that could not be
// committed and the last cause.
type BatchError struct {
	Network  agreement.Network
	From     uint64
	To       uint64
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch [%d, %d] failed after %d attempts: %v", e.Network, e.From, e.To, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
