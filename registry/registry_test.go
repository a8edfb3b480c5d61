package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/TEENet-io/bridge-indexer/state"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vftAddr       = common.RandVaraAddress()
	inheritorAddr = common.RandVaraAddress()
)

func newTestEnv(t *testing.T) (*state.StateDB, *Registry, func()) {
	st, close := state.NewMemoryStateDB()
	require.NoError(t, st.SeedPrograms([]*state.Program{
		{Network: agreement.NetworkVara, Name: VftManager, Address: vftAddr},
		{Network: agreement.NetworkEthereum, Name: Erc20Manager, Address: "0x00000000000000000000000000000000000000e2"},
	}))

	r := New()
	require.NoError(t, r.Load(st))
	return st, r, close
}

func deactivation(block uint64) *agreement.Event {
	return &agreement.Event{
		Network: agreement.NetworkVara,
		Block:   agreement.BlockHeader{Number: block, Hash: "0xb10c"},
	}
}

func TestRegistryLookups(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	addr, ok := r.Address(agreement.NetworkVara, VftManager)
	require.True(t, ok)
	assert.Equal(t, vftAddr, addr)

	name, ok := r.Name(agreement.NetworkEthereum, "0x00000000000000000000000000000000000000E2")
	require.True(t, ok)
	assert.Equal(t, Erc20Manager, name)

	// names are per network
	_, ok = r.Name(agreement.NetworkEthereum, vftAddr)
	assert.False(t, ok)

	r.Set(agreement.NetworkVara, VftManager, inheritorAddr)
	assert.False(t, r.Is(agreement.NetworkVara, VftManager, vftAddr))
	assert.True(t, r.Is(agreement.NetworkVara, VftManager, inheritorAddr))

	// uncommitted changes are dropped by a reload
	require.NoError(t, r.Load(st))
	assert.True(t, r.Is(agreement.NetworkVara, VftManager, vftAddr))
}

func TestTrackedProgramMigration(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	client := NewMockInheritorClient(map[string]string{vftAddr: inheritorAddr})
	resolver := NewResolver(r, client)

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, resolver.ProgramDeactivated(context.Background(), deactivation(30), vftAddr, b))
	assert.True(t, r.Is(agreement.NetworkVara, VftManager, inheritorAddr))

	require.NoError(t, b.Commit(context.Background()))

	fresh := New()
	require.NoError(t, fresh.Load(st))
	assert.True(t, fresh.Is(agreement.NetworkVara, VftManager, inheritorAddr))

	// the old address is remembered but no longer current
	assert.False(t, fresh.Is(agreement.NetworkVara, VftManager, vftAddr))
	assert.True(t, fresh.WasEver(agreement.NetworkVara, VftManager, vftAddr))
	assert.True(t, fresh.WasEver(agreement.NetworkVara, VftManager, inheritorAddr))
	assert.False(t, fresh.WasEver(agreement.NetworkVara, HistoricalProxy, vftAddr))
	assert.False(t, fresh.WasEver(agreement.NetworkEthereum, VftManager, vftAddr))
}

func TestUncommittedHistoryIsDropped(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	r.Set(agreement.NetworkVara, VftManager, inheritorAddr)
	assert.True(t, r.WasEver(agreement.NetworkVara, VftManager, inheritorAddr))

	require.NoError(t, r.Load(st))
	assert.False(t, r.WasEver(agreement.NetworkVara, VftManager, inheritorAddr))
	assert.True(t, r.WasEver(agreement.NetworkVara, VftManager, vftAddr))
}

func TestInheritorFailureIsFatal(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	client := NewMockInheritorClient(nil)
	client.Err = errors.New("connection refused")
	resolver := NewResolver(r, client)

	b := st.NewBatch(agreement.NetworkVara)
	err := resolver.ProgramDeactivated(context.Background(), deactivation(30), vftAddr, b)
	assert.ErrorIs(t, err, client.Err)
	assert.True(t, r.Is(agreement.NetworkVara, VftManager, vftAddr))
	assert.Equal(t, 0, b.Size())
}

func TestMissingInheritorIsIgnored(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	resolver := NewResolver(r, NewMockInheritorClient(nil))

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, resolver.ProgramDeactivated(context.Background(), deactivation(30), vftAddr, b))
	assert.True(t, r.Is(agreement.NetworkVara, VftManager, vftAddr))
	assert.Equal(t, 0, b.Size())
}

func TestTokenMigration(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()
	ctx := context.Background()

	pair := state.RandPair(1)
	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.AddPair(pair))
	require.NoError(t, b.Commit(ctx))

	newToken := common.RandVaraAddress()
	client := NewMockInheritorClient(map[string]string{pair.VaraToken: newToken})
	resolver := NewResolver(r, client)

	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, resolver.ProgramDeactivated(ctx, deactivation(40), pair.VaraToken, b))
	require.NoError(t, b.Commit(ctx))

	old, ok, err := st.GetPair(pair.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, old.IsActive)
	assert.Equal(t, uint64(40), *old.ActiveToBlock)

	next, ok, err := st.GetActivePairByVaraToken(newToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, next.ID, *old.UpgradedTo)
	assert.Equal(t, pair.VaraTokenSymbol, next.VaraTokenSymbol)
	assert.Equal(t, pair.VaraTokenDecimals, next.VaraTokenDecimals)

	// the token is not a tracked program
	_, ok = r.Name(agreement.NetworkVara, newToken)
	assert.False(t, ok)
}

func TestUntrackedProgramIsIgnored(t *testing.T) {
	st, r, close := newTestEnv(t)
	defer close()

	client := NewMockInheritorClient(nil)
	resolver := NewResolver(r, client)

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, resolver.ProgramDeactivated(context.Background(), deactivation(30), common.RandVaraAddress(), b))
	assert.Equal(t, 0, client.Calls)
	assert.Equal(t, 0, b.Size())
}

type gearService struct {
	calls      int
	inheritors map[string]string
}

func (s *gearService) ProgramInheritor(programID string, blockHash *string) (*string, error) {
	s.calls++
	inheritor, ok := s.inheritors[programID]
	if !ok {
		return nil, nil
	}
	return &inheritor, nil
}

func TestRPCInheritorClient(t *testing.T) {
	svc := &gearService{inheritors: map[string]string{vftAddr: "0xABCD"}}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("gear", svc))
	defer server.Stop()

	client := NewRPCInheritorClient(rpc.DialInProc(server), "", 0)
	defer client.Close()
	ctx := context.Background()

	inheritor, err := client.GetInheritor(ctx, vftAddr, "0xb10c")
	require.NoError(t, err)
	assert.Equal(t, "0xabcd", inheritor)

	// answered from the cache
	_, err = client.GetInheritor(ctx, vftAddr, "0xb10c")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.calls)

	// unknown programs are not cached
	inheritor, err = client.GetInheritor(ctx, inheritorAddr, "")
	require.NoError(t, err)
	assert.Empty(t, inheritor)
	_, err = client.GetInheritor(ctx, inheritorAddr, "")
	require.NoError(t, err)
	assert.Equal(t, 3, svc.calls)

	bad := NewRPCInheritorClient(rpc.DialInProc(server), "gear_nope", 0)
	defer bad.Close()
	_, err = bad.GetInheritor(ctx, vftAddr, "")
	assert.Error(t, err)
}
