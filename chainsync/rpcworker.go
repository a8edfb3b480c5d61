package chainsync

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/metrics"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	logger "github.com/sirupsen/logrus"
)

// RPCWorker reads already decoded events from a chain adapter speaking
// JSON-RPC under a namespace, e.g. vara_finalizedBlock and vara_events.
type RPCWorker struct {
	client    *rpc.Client
	network   agreement.Network
	namespace string
}

func NewRPCWorker(client *rpc.Client, network agreement.Network, namespace string) *RPCWorker {
	return &RPCWorker{client: client, network: network, namespace: namespace}
}

func DialRPCWorker(ctx context.Context, url string, network agreement.Network, namespace string) (*RPCWorker, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewRPCWorker(client, network, namespace), nil
}

func (w *RPCWorker) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := w.client.CallContext(ctx, &n, w.namespace+"_finalizedBlock"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (w *RPCWorker) GetTimeOrderedEvents(ctx context.Context, from, to uint64) ([]*agreement.Event, error) {
	var raws []*agreement.RawEvent
	if err := w.client.CallContext(ctx, &raws, w.namespace+"_events", hexutil.Uint64(from), hexutil.Uint64(to)); err != nil {
		return nil, err
	}

	events := make([]*agreement.Event, 0, len(raws))
	for _, raw := range raws {
		if raw.BlockNumber < from || raw.BlockNumber > to {
			return nil, fmt.Errorf("adapter returned block %d for range [%d, %d]", raw.BlockNumber, from, to)
		}

		ev, err := agreement.DecodeEvent(w.network, raw)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			logger.WithFields(logger.Fields{
				"network": w.network,
				"kind":    raw.Kind,
				"block":   raw.BlockNumber,
			}).Info("ignoring unknown event")
			metrics.RecordEvent(string(w.network), raw.Kind, true)
			continue
		}
		events = append(events, ev)
	}

	// adapters may group by kind
	slices.SortStableFunc(events, func(a, b *agreement.Event) int {
		if c := cmp.Compare(a.Block.Number, b.Block.Number); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TxIndex, b.TxIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.LogIndex, b.LogIndex)
	})
	return events, nil
}

func (w *RPCWorker) Close() {
	w.client.Close()
}
