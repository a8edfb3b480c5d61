package chainsync

import (
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
)

const (
	DefaultBatchSize       = 100
	DefaultMaxBatchRetries = 8
	DefaultRetryBaseDelay  = 500 * time.Millisecond
	DefaultRetryMaxDelay   = time.Minute
)

// Configuration
type ChainSyncConfig struct {
	Network                 agreement.Network
	IntervalCheckBlockchain time.Duration // interval to trigger the scan of blockchain.
	StartBlock              uint64        // first block to scan when nothing was processed yet.
	ForceScanBlkNum         int64         // retro scan block, tell Sync() to scan from this block, -1 to honor the value in state.
	BatchSize               uint64        // blocks per batch.
	MaxBatchRetries         int           // retries of a failing batch before the pipeline halts.
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
}

func (cfg *ChainSyncConfig) withDefaults() *ChainSyncConfig {
	c := *cfg
	if c.IntervalCheckBlockchain <= 0 {
		c.IntervalCheckBlockchain = time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxBatchRetries < 0 {
		c.MaxBatchRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return &c
}

// backoff is the wait before retry number attempt (1-based).
func (cfg *ChainSyncConfig) backoff(attempt int) time.Duration {
	d := cfg.RetryBaseDelay
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
