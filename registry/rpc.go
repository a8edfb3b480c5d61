package registry

import (
	"context"

	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultInheritorMethod    = "gear_programInheritor"
	DefaultInheritorCacheSize = 256
)

// RPCInheritorClient resolves inheritors over the node's JSON-RPC. The
// inheritor of an exited program never changes, so answers are cached.
type RPCInheritorClient struct {
	client *rpc.Client
	method string
	cache  *lru.Cache[string, string]
}

func NewRPCInheritorClient(client *rpc.Client, method string, cacheSize int) *RPCInheritorClient {
	if method == "" {
		method = DefaultInheritorMethod
	}
	if cacheSize <= 0 {
		cacheSize = DefaultInheritorCacheSize
	}
	return &RPCInheritorClient{
		client: client,
		method: method,
		cache:  lru.NewCache[string, string](cacheSize),
	}
}

func DialInheritorClient(ctx context.Context, url, method string, cacheSize int) (*RPCInheritorClient, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewRPCInheritorClient(client, method, cacheSize), nil
}

func (c *RPCInheritorClient) GetInheritor(ctx context.Context, programID, blockHash string) (string, error) {
	if inheritor, ok := c.cache.Get(programID); ok {
		return inheritor, nil
	}

	// null when the node knows no inheritor
	var inheritor *string
	args := []interface{}{programID}
	if blockHash != "" {
		args = append(args, blockHash)
	}
	if err := c.client.CallContext(ctx, &inheritor, c.method, args...); err != nil {
		return "", err
	}
	if inheritor == nil {
		return "", nil
	}

	addr := common.NormalizeAddress(*inheritor)
	if addr != "" {
		c.cache.Add(programID, addr)
	}
	return addr, nil
}

func (c *RPCInheritorClient) Close() {
	c.client.Close()
}
