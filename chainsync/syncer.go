// ChainSync: drives one chain's pipeline (fetch events, handle, commit).
// SyncWorker: defines the interface that a chain adapter should implement.
package chainsync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/TEENet-io/bridge-indexer/handler"
	"github.com/TEENet-io/bridge-indexer/metrics"
	"github.com/TEENet-io/bridge-indexer/registry"
	"github.com/TEENet-io/bridge-indexer/state"
	pkgerrors "github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// ChainSync processes the finalized blocks of one chain in order, one batch
// at a time. A batch is committed entirely or retried from its first block.
type ChainSync struct {
	cfg        *ChainSyncConfig
	store      StateStore
	SyncWorker SyncWorker
	registry   *registry.Registry
	resolver   *registry.Resolver

	nextBlock atomic.Uint64 // first block not committed yet
}

func NewChainSync(cfg *ChainSyncConfig, store StateStore, syncWorker SyncWorker, inheritors registry.InheritorClient) (*ChainSync, error) {
	cfg = cfg.withDefaults()
	if !cfg.Network.Valid() {
		return nil, state.ErrNetworkInvalid
	}

	next := cfg.StartBlock
	stored, ok, err := store.GetLastProcessedBlock(cfg.Network)
	if err != nil {
		logger.WithField("network", cfg.Network).Error("failed to get last processed block from database when initializing synchronizer")
		return nil, err
	}
	if ok && stored+1 > next {
		next = stored + 1
	}
	if cfg.ForceScanBlkNum != -1 {
		next = uint64(cfg.ForceScanBlkNum)
	}

	// the registry lives as long as the pipeline run
	reg := registry.New()
	if err := reg.Load(store); err != nil {
		return nil, err
	}

	cs := &ChainSync{
		cfg:        cfg,
		store:      store,
		SyncWorker: syncWorker,
		registry:   reg,
		resolver:   registry.NewResolver(reg, inheritors),
	}
	cs.nextBlock.Store(next)
	return cs, nil
}

// NextBlock is the first block the pipeline has not committed.
func (cs *ChainSync) NextBlock() uint64 {
	return cs.nextBlock.Load()
}

// The Big Loop! It returns on cancellation or when a batch cannot be
// committed, in which case the error is a *BatchError.
func (cs *ChainSync) Loop(ctx context.Context) error {
	// Ticker
	scanTicker := time.NewTicker(cs.cfg.IntervalCheckBlockchain)
	defer scanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-scanTicker.C:
			if err := cs.Sync(ctx); err != nil {
				return err
			}
		}
	}
}

// Sync processes every block finalized so far.
func (cs *ChainSync) Sync(ctx context.Context) error {
	finalized, err := cs.SyncWorker.GetFinalizedBlockNumber(ctx)
	if err != nil {
		// nothing is staged yet, try again on the next tick
		logger.WithFields(logger.Fields{
			"network": cs.cfg.Network,
			"error":   err,
		}).Warn("failed to get finalized block number")
		metrics.RecordBatchFailure(string(cs.cfg.Network), "finalized")
		return nil
	}

	for next := cs.nextBlock.Load(); next <= finalized; next = cs.nextBlock.Load() {
		to := next + cs.cfg.BatchSize - 1
		if to > finalized {
			to = finalized
		}

		if err := cs.processWithRetry(ctx, next, to); err != nil {
			return err
		}
		cs.nextBlock.Store(to + 1)
	}
	return nil
}

func (cs *ChainSync) processWithRetry(ctx context.Context, from, to uint64) error {
	var err error
	attempts := 0
	for attempt := 0; attempt <= cs.cfg.MaxBatchRetries; attempt++ {
		if attempt > 0 {
			delay := cs.cfg.backoff(attempt)
			logger.WithFields(logger.Fields{
				"network": cs.cfg.Network,
				"from":    from,
				"to":      to,
				"attempt": attempt,
				"delay":   delay,
				"error":   err,
			}).Warn("retrying batch")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts++
		if err = cs.processBatch(ctx, from, to); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	logger.WithFields(logger.Fields{
		"network":  cs.cfg.Network,
		"from":     from,
		"to":       to,
		"attempts": attempts,
		"error":    err,
	}).Error("halting pipeline")
	return &BatchError{Network: cs.cfg.Network, From: from, To: to, Attempts: attempts, Err: err}
}

// processBatch runs one attempt on blocks [from, to]. Nothing it stages
// survives a failure.
func (cs *ChainSync) processBatch(ctx context.Context, from, to uint64) error {
	network := string(cs.cfg.Network)
	start := time.Now()

	// program migrations committed by earlier batches, or dropped by a
	// failed attempt
	if err := cs.registry.Load(cs.store); err != nil {
		metrics.RecordBatchFailure(network, "registry")
		return pkgerrors.Wrap(err, "failed to load program registry")
	}

	events, err := cs.SyncWorker.GetTimeOrderedEvents(ctx, from, to)
	if err != nil {
		metrics.RecordBatchFailure(network, "fetch")
		return pkgerrors.Wrapf(err, "failed to get events of blocks [%d, %d]", from, to)
	}

	b := state.NewBatch(cs.cfg.Network, cs.store)
	h := handler.New(ctx, cs.resolver, b)
	for _, ev := range events {
		if ev.Block.Number < from || ev.Block.Number > to {
			metrics.RecordBatchFailure(network, "fetch")
			return pkgerrors.Errorf("event %s outside of batch [%d, %d]", ev, from, to)
		}
		if err := h.Handle(ev); err != nil {
			metrics.RecordBatchFailure(network, "handle")
			return err
		}
	}

	b.SetProcessedBlock(to)
	size := b.Size()
	if err := b.Commit(ctx); err != nil {
		stage := "commit"
		if errors.Is(err, state.ErrUnresolvedNonce) {
			stage = "unresolved"
		}
		metrics.RecordBatchFailure(network, stage)
		return err
	}

	metrics.RecordBatchCommitted(network, to, time.Since(start).Seconds())
	logger.WithFields(logger.Fields{
		"network": cs.cfg.Network,
		"from":    from,
		"to":      to,
		"events":  len(events),
		"staged":  size,
	}).Info("batch committed")
	return nil
}
