// Server = vara pipeline + ethereum pipeline + db/state + http reporter.
// All components are configured via envionment variables or a config file.

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/chainsync"
	"github.com/TEENet-io/bridge-indexer/registry"
	"github.com/TEENet-io/bridge-indexer/reporter"
	"github.com/TEENet-io/bridge-indexer/state"
)

// Default params for server.
// More often we don't recommend users to tweak those.
const (
	busyTimeoutMs = 5000

	frequencyToCheckFinalizedBlock = 5 * time.Second
)

// PipelineConfig is the per-chain part of the configuration.
type PipelineConfig struct {
	RpcUrl       string // json rpc url of the chain adapter
	RpcNamespace string // e.g. "vara" for vara_events
	StartBlk     uint64 // first block when the database is empty
	RetroScanBlk int64  // tell Sync() to scan from this block, -1 to honor the value in statedb.
}

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type IndexerServerConfig struct {
	// state side
	DbFilePath string

	// chain side
	Vara     PipelineConfig
	Ethereum PipelineConfig

	// gear node serving the inheritor of an exited program
	InheritorRpcUrl    string
	InheritorRpcMethod string

	// addresses of the tracked programs, seeded on first start
	Programs []*state.Program

	// pipeline tuning
	FrequencyToCheckFinalizedBlock time.Duration
	BatchSize                      uint64
	MaxBatchRetries                int
	RetryBaseDelay                 time.Duration
	RetryMaxDelay                  time.Duration

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// IndexerServer holds the objects that consists of the indexer server.
type IndexerServer struct {
	cfg *IndexerServerConfig

	sqldb      *sql.DB
	MyStateDb  *state.StateDB
	Inheritors *registry.RPCInheritorClient

	VaraWorker *chainsync.RPCWorker
	EthWorker  *chainsync.RPCWorker
	MyVaraSync *chainsync.ChainSync
	MyEthSync  *chainsync.ChainSync

	MyReporter *reporter.HttpReporter
}

// dsn serialises writers on the sqlite file.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d", path, busyTimeoutMs)
}

// OpenStateDB opens the database file and seeds the tracked programs.
func OpenStateDB(path string, programs []*state.Program) (*sql.DB, *state.StateDB, error) {
	sqldb, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "failed to open db file")
	}

	myStateDb, err := state.NewStateDB(sqldb)
	if err != nil {
		sqldb.Close()
		return nil, nil, pkgerrors.Wrap(err, "failed to create state db")
	}

	// first start only, later migrations are taken from the chain
	if err := myStateDb.SeedPrograms(programs); err != nil {
		myStateDb.Close()
		sqldb.Close()
		return nil, nil, pkgerrors.Wrap(err, "failed to seed programs")
	}
	return sqldb, myStateDb, nil
}

func (bsc *IndexerServerConfig) syncConfig(network agreement.Network, pc PipelineConfig) *chainsync.ChainSyncConfig {
	interval := bsc.FrequencyToCheckFinalizedBlock
	if interval <= 0 {
		interval = frequencyToCheckFinalizedBlock
	}
	return &chainsync.ChainSyncConfig{
		Network:                 network,
		IntervalCheckBlockchain: interval,
		StartBlock:              pc.StartBlk,
		ForceScanBlkNum:         pc.RetroScanBlk,
		BatchSize:               bsc.BatchSize,
		MaxBatchRetries:         bsc.MaxBatchRetries,
		RetryBaseDelay:          bsc.RetryBaseDelay,
		RetryMaxDelay:           bsc.RetryMaxDelay,
	}
}

// NewIndexerServer connects every component. Nothing runs until Run.
func NewIndexerServer(ctx context.Context, bsc *IndexerServerConfig) (*IndexerServer, error) {
	s := &IndexerServer{cfg: bsc}

	var err error
	s.sqldb, s.MyStateDb, err = OpenStateDB(bsc.DbFilePath, bsc.Programs)
	if err != nil {
		return nil, err
	}

	s.Inheritors, err = registry.DialInheritorClient(ctx, bsc.InheritorRpcUrl, bsc.InheritorRpcMethod, registry.DefaultInheritorCacheSize)
	if err != nil {
		s.Close()
		return nil, pkgerrors.Wrapf(err, "cannot connect to gear node %s", bsc.InheritorRpcUrl)
	}

	s.VaraWorker, err = chainsync.DialRPCWorker(ctx, bsc.Vara.RpcUrl, agreement.NetworkVara, bsc.Vara.RpcNamespace)
	if err != nil {
		s.Close()
		return nil, pkgerrors.Wrapf(err, "cannot connect to vara adapter %s", bsc.Vara.RpcUrl)
	}
	s.EthWorker, err = chainsync.DialRPCWorker(ctx, bsc.Ethereum.RpcUrl, agreement.NetworkEthereum, bsc.Ethereum.RpcNamespace)
	if err != nil {
		s.Close()
		return nil, pkgerrors.Wrapf(err, "cannot connect to ethereum adapter %s", bsc.Ethereum.RpcUrl)
	}

	s.MyVaraSync, err = chainsync.NewChainSync(bsc.syncConfig(agreement.NetworkVara, bsc.Vara), s.MyStateDb, s.VaraWorker, s.Inheritors)
	if err != nil {
		s.Close()
		return nil, pkgerrors.Wrap(err, "failed to create vara synchronizer")
	}
	s.MyEthSync, err = chainsync.NewChainSync(bsc.syncConfig(agreement.NetworkEthereum, bsc.Ethereum), s.MyStateDb, s.EthWorker, s.Inheritors)
	if err != nil {
		s.Close()
		return nil, pkgerrors.Wrap(err, "failed to create ethereum synchronizer")
	}

	s.MyReporter = reporter.NewHttpReporter(bsc.HttpIp, bsc.HttpPort, s.MyStateDb)
	return s, nil
}

// Run blocks until ctx is cancelled or one of the pipelines halts. A halted
// pipeline stops the whole server: the other side would only pile up
// unresolved nonces.
func (s *IndexerServer) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.MyVaraSync.Loop(gCtx)
	})
	g.Go(func() error {
		return s.MyEthSync.Loop(gCtx)
	})
	g.Go(func() error {
		return s.MyReporter.Run(gCtx)
	})
	g.Go(func() error {
		logTransferCount(gCtx, s.MyStateDb)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logTransferCount(ctx context.Context, st *state.StateDB) {
	ch := make(chan uint64, 16)
	sub := st.SubscribeTransferCount(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				logger.WithField("error", err).Warn("transfer count subscription closed")
			}
			return
		case n := <-ch:
			logger.WithField("transfers", n).Debug("transfers indexed")
		}
	}
}

func (s *IndexerServer) Close() {
	if s.VaraWorker != nil {
		s.VaraWorker.Close()
	}
	if s.EthWorker != nil {
		s.EthWorker.Close()
	}
	if s.Inheritors != nil {
		s.Inheritors.Close()
	}
	if s.MyStateDb != nil {
		s.MyStateDb.Close()
	}
	if s.sqldb != nil {
		s.sqldb.Close()
	}
}

// Create, then start the indexer server and wait.
// Press Ctrl-C to kill the server.
func StartIndexerServerAndWait(bsc *IndexerServerConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("cancelling context")
		cancel()
	}()

	s, err := NewIndexerServer(ctx, bsc)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Run(ctx)
}
