package state

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateDB(t *testing.T) (*StateDB, func()) {
	sqlDB := getMemoryDB()

	statedb, err := NewStateDB(sqlDB)
	require.NoError(t, err)

	return statedb, func() {
		statedb.Close()
		sqlDB.Close()
	}
}

func blockAt(n uint64) agreement.BlockHeader {
	return agreement.BlockHeader{Number: n, Timestamp: time.UnixMilli(int64(1700000000000 + n*1000)).UTC()}
}

func getTransfer(t *testing.T, st *StateDB, nonce string) *Transfer {
	tr, ok, err := st.GetTransfer(nonce)
	require.NoError(t, err)
	require.True(t, ok, "transfer %s not found", nonce)
	return tr
}

func TestTransferScenario(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	b := st.NewBatch(agreement.NetworkVara)
	tr := RandTransfer(agreement.NetworkVara, "42")
	tr.Amount = big.NewInt(1000)
	require.NoError(t, b.RecordNewTransfer(tr))
	require.NoError(t, b.UpdateTransferStatus("42", TransferStatusBridging, blockAt(5), "0xpaid"))
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.SetCompletedTransfer("42", blockAt(100).Timestamp, 100, "0xdone"))
	require.NoError(t, b.Commit(ctx))

	got := getTransfer(t, st, "42")
	assert.Equal(t, common.TransferID("42"), got.ID)
	assert.Equal(t, TransferStatusCompleted, got.Status)
	assert.Equal(t, "1000", got.Amount.String())
	require.NotNil(t, got.CompletedAtBlock)
	assert.Equal(t, uint64(100), *got.CompletedAtBlock)
	assert.Equal(t, "0xdone", *got.CompletedAtTxHash)
	assert.Equal(t, blockAt(100).Timestamp, *got.CompletedAt)
	require.NotNil(t, got.BridgingStartedAtBlock)
	assert.Equal(t, uint64(5), *got.BridgingStartedAtBlock)
	assert.Equal(t, tr.Sender, got.Sender)
}

func TestRequestAndPaidInEitherOrder(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	// paid first
	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.UpdateTransferStatus("1", TransferStatusBridging, blockAt(3), "0xa"))
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "1")))
	require.NoError(t, b.Commit(ctx))

	// requested first
	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "2")))
	require.NoError(t, b.UpdateTransferStatus("2", TransferStatusBridging, blockAt(3), "0xb"))
	require.NoError(t, b.Commit(ctx))

	assert.Equal(t, TransferStatusBridging, getTransfer(t, st, "1").Status)
	assert.Equal(t, TransferStatusBridging, getTransfer(t, st, "2").Status)
}

func TestReplayIsIdempotent(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	tr := RandTransfer(agreement.NetworkEthereum, common.EthNonce(10, 1))
	stage := func() *Batch {
		b := st.NewBatch(agreement.NetworkEthereum)
		require.NoError(t, b.RecordNewTransfer(tr))
		require.NoError(t, b.UpdateTransferStatus(tr.Nonce, TransferStatusBridging, blockAt(10), "0xa"))
		b.SetProcessedBlock(10)
		return b
	}

	require.NoError(t, stage().Commit(ctx))
	require.NoError(t, stage().Commit(ctx))

	n, err := st.CountTransfers()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// complete, then replay the earlier batch: no regression
	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.SetCompletedTransfer(tr.Nonce, time.Time{}, 20, "0xc"))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, stage().Commit(ctx))

	got := getTransfer(t, st, tr.Nonce)
	assert.Equal(t, TransferStatusCompleted, got.Status)
	assert.Equal(t, uint64(10), *got.BridgingStartedAtBlock)
}

func TestCommitClearsBatch(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "5")))
	assert.Equal(t, 1, b.Size())
	require.NoError(t, b.Commit(context.Background()))
	assert.Equal(t, 0, b.Size())
}

func TestPriorityBeforeCreation(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.SetIsPriority("7"))
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "7")))
	require.NoError(t, b.Commit(context.Background()))

	got := getTransfer(t, st, "7")
	assert.True(t, got.IsPriorityFeePaid)
	assert.Equal(t, TransferStatusAwaitingPayment, got.Status)
}

func TestUnresolvedNonceRollsBack(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "1")))
	require.NoError(t, b.UpdateTransferStatus("2", TransferStatusBridging, blockAt(1), "0xa"))
	b.SetProcessedBlock(10)

	err := b.Commit(context.Background())
	assert.ErrorIs(t, err, ErrUnresolvedNonce)
	assert.Contains(t, err.Error(), "nonce=2")

	_, ok, err := st.GetTransfer("1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = st.GetLastProcessedBlock(agreement.NetworkVara)
	require.NoError(t, err)
	assert.False(t, ok)

	// the failed batch is kept for inspection
	assert.Equal(t, 2, b.Size())
}

func TestUpdateOfOtherChainWaitsForTransfer(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	pending := func() uint64 {
		n, err := st.CountPendingUpdates()
		require.NoError(t, err)
		return n
	}

	// the destination pipeline runs ahead of the source one
	b := st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.SetCompletedTransfer("42", blockAt(100).Timestamp, 100, "0xdone"))
	b.SetProcessedBlock(100)
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.UpdateTransferStatus("42", TransferStatusBridging, blockAt(101), "0xlate"))
	require.NoError(t, b.Commit(ctx))

	_, ok, err := st.GetTransfer("42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), pending())
	last, _, err := st.GetLastProcessedBlock(agreement.NetworkEthereum)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), last)

	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "42")))
	require.NoError(t, b.UpdateTransferStatus("42", TransferStatusBridging, blockAt(5), "0xpaid"))
	require.NoError(t, b.Commit(ctx))

	got := getTransfer(t, st, "42")
	assert.Equal(t, TransferStatusCompleted, got.Status)
	assert.Equal(t, uint64(5), *got.BridgingStartedAtBlock)
	assert.Equal(t, "0xpaid", *got.BridgingStartedAtTxHash)
	assert.Equal(t, uint64(100), *got.CompletedAtBlock)
	assert.Equal(t, "0xdone", *got.CompletedAtTxHash)
	assert.Equal(t, blockAt(100).Timestamp, *got.CompletedAt)
	assert.Zero(t, pending())

	// the same on the other side: a relay before the ethereum request
	nonce := common.EthNonce(7, 1)
	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.SetIsPriority(nonce))
	require.NoError(t, b.SetCompletedTransfer(nonce, blockAt(20).Timestamp, 20, "0xrelay"))
	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, uint64(1), pending())

	b = st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkEthereum, nonce)))
	require.NoError(t, b.Commit(ctx))

	got = getTransfer(t, st, nonce)
	assert.Equal(t, TransferStatusCompleted, got.Status)
	assert.True(t, got.IsPriorityFeePaid)
	assert.Nil(t, got.BridgingStartedAtBlock)
	assert.Zero(t, pending())
}

func TestPaymentAfterCompletion(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "42")))
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.SetCompletedTransfer("42", blockAt(100).Timestamp, 100, "0xdone"))
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.UpdateTransferStatus("42", TransferStatusBridging, blockAt(5), "0xpaid"))
	require.NoError(t, b.Commit(ctx))

	got := getTransfer(t, st, "42")
	assert.Equal(t, TransferStatusCompleted, got.Status)
	require.NotNil(t, got.BridgingStartedAtBlock)
	assert.Equal(t, uint64(5), *got.BridgingStartedAtBlock)
	assert.Equal(t, uint64(100), *got.CompletedAtBlock)
}

func TestPendingUpdateRollsBackWithBatch(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.SetCompletedTransfer("42", time.Time{}, 100, "0xdone"))
	require.NoError(t, b.UpdateTransferStatus(common.EthNonce(1, 1), TransferStatusBridging, blockAt(1), "0xa"))
	assert.ErrorIs(t, b.Commit(context.Background()), ErrUnresolvedNonce)

	n, err := st.CountPendingUpdates()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedIsTerminal(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "9")))
	require.NoError(t, b.FailTransfer("9", blockAt(2), "0xf"))
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkEthereum)
	require.NoError(t, b.SetCompletedTransfer("9", time.Time{}, 3, "0xc"))
	require.NoError(t, b.Commit(ctx))

	got := getTransfer(t, st, "9")
	assert.Equal(t, TransferStatusFailed, got.Status)
	assert.Nil(t, got.CompletedAtBlock)
}

func TestInvalidTransfer(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkVara)

	tr := RandTransfer(agreement.NetworkVara, "1")
	tr.Amount = nil
	assert.ErrorIs(t, b.RecordNewTransfer(tr), ErrTransferInvalid)

	tr = RandTransfer(agreement.NetworkVara, "1")
	tr.DestNetwork = agreement.NetworkVara
	assert.ErrorIs(t, b.RecordNewTransfer(tr), ErrNetworkInvalid)

	assert.ErrorIs(t, b.UpdateTransferStatus("1", TransferStatusAwaitingPayment, blockAt(1), ""), ErrStatusInvalid)
	assert.ErrorIs(t, b.SetIsPriority(""), ErrTransferInvalid)
}

func TestPairUpgrade(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	old := RandPair(1)
	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.AddPair(old))
	require.NoError(t, b.Commit(ctx))

	newVara := common.RandVaraAddress()
	b = st.NewBatch(agreement.NetworkVara)
	next, err := b.UpgradePair(old.ID, newVara, blockAt(50))
	require.NoError(t, err)

	// visible to later events of the same batch
	_, ok, err := b.ActivePairByVaraToken(old.VaraToken)
	require.NoError(t, err)
	assert.False(t, ok)
	p, ok, err := b.ActivePairByEthToken(old.EthToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, next.ID, p.ID)

	require.NoError(t, b.Commit(ctx))

	gotOld, ok, err := st.GetPair(old.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, gotOld.IsActive)
	assert.Equal(t, uint64(50), *gotOld.ActiveToBlock)
	assert.Equal(t, next.ID, *gotOld.UpgradedTo)

	gotNew, ok, err := st.GetActivePairByVaraToken(newVara)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, gotNew.IsActive)
	assert.Equal(t, uint64(50), gotNew.ActiveSinceBlock)
	assert.Equal(t, old.VaraTokenSymbol, gotNew.VaraTokenSymbol)
	assert.Equal(t, old.VaraTokenName, gotNew.VaraTokenName)
	assert.Equal(t, old.VaraTokenDecimals, gotNew.VaraTokenDecimals)
	assert.Equal(t, old.EthToken, gotNew.EthToken)
	assert.Nil(t, gotNew.UpgradedTo)

	// a superseded pair cannot be upgraded again
	b = st.NewBatch(agreement.NetworkVara)
	_, err = b.UpgradePair(old.ID, common.RandVaraAddress(), blockAt(60))
	assert.ErrorIs(t, err, ErrPairInvalid)
}

func TestPairRemoveAndReadd(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	pair := RandPair(1)
	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.AddPair(pair))
	require.NoError(t, b.Commit(ctx))

	b = st.NewBatch(agreement.NetworkVara)
	b.RemovePair(pair.VaraToken, pair.EthToken, blockAt(10))
	require.NoError(t, b.Commit(ctx))

	got, ok, err := st.GetPair(pair.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.IsActive)
	assert.True(t, got.IsRemoved)
	assert.Equal(t, uint64(10), *got.ActiveToBlock)

	// replaying the original add does not bring it back
	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.AddPair(pair))
	require.NoError(t, b.Commit(ctx))
	_, ok, err = st.GetActivePairByVaraToken(pair.VaraToken)
	require.NoError(t, err)
	assert.False(t, ok)

	// a later add does
	readd := *pair
	readd.ActiveSinceBlock = 20
	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.AddPair(&readd))
	require.NoError(t, b.Commit(ctx))

	got, ok, err = st.GetActivePairByVaraToken(pair.VaraToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.IsRemoved)
	assert.Nil(t, got.ActiveToBlock)
	assert.Equal(t, uint64(20), got.ActiveSinceBlock)
}

func TestTransferCountFeed(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	ch := make(chan uint64, 1)
	sub := st.SubscribeTransferCount(ch)
	defer sub.Unsubscribe()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "1")))
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "2")))
	require.NoError(t, b.Commit(ctx))

	select {
	case n := <-ch:
		assert.Equal(t, uint64(2), n)
	case <-time.After(time.Second):
		t.Fatal("no transfer count published")
	}

	// no new transfer, no notification
	b = st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "1")))
	require.NoError(t, b.SetIsPriority("2"))
	require.NoError(t, b.Commit(ctx))

	select {
	case n := <-ch:
		t.Fatalf("unexpected count %d", n)
	default:
	}
}

func TestCheckpointOnlyMovesForward(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	b := st.NewBatch(agreement.NetworkEthereum)
	b.SetProcessedBlock(10)
	require.NoError(t, b.Commit(ctx))

	b.SetProcessedBlock(5)
	require.NoError(t, b.Commit(ctx))

	n, ok, err := st.GetLastProcessedBlock(agreement.NetworkEthereum)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), n)

	_, ok, err = st.GetLastProcessedBlock(agreement.NetworkVara)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessagesRootsAndSlots(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	b := st.NewBatch(agreement.NetworkVara)
	msg := &GearEthBridgeMessage{Hash: "0x01", Nonce: "3", Source: "0x02", Destination: "0x03", BlockNumber: 7}
	b.AddEthBridgeMessage(msg)
	b.AddEthBridgeMessage(msg)
	b.AddMerkleRoot(&MerkleRootInMessageQueue{BlockNumber: 7, MerkleRoot: "0xroot"})
	b.NewSlot(64, "0xtree", blockAt(7))
	require.NoError(t, b.Commit(ctx))

	gotMsg, ok, err := st.GetEthBridgeMessage("0x01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", gotMsg.Nonce)

	slot, ok, err := st.GetCheckpointSlot(64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xtree", slot.TreeHashRoot)

	b = st.NewBatch(agreement.NetworkEthereum)
	b.SetMerkleRootSubmitted(7, "0xroot", blockAt(300), "0xsubmit")
	// unknown roots are only logged
	b.SetMerkleRootSubmitted(8, "0xother", blockAt(300), "0xsubmit")
	require.NoError(t, b.Commit(ctx))

	root, ok, err := st.GetMerkleRoot(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, root.SubmittedAtBlock)
	assert.Equal(t, uint64(300), *root.SubmittedAtBlock)
	assert.Equal(t, "0xsubmit", *root.SubmittedAtTxHash)
}

func TestPrograms(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()
	ctx := context.Background()

	require.NoError(t, st.SeedPrograms([]*Program{
		{Network: agreement.NetworkVara, Name: "vft-manager", Address: "0xAA"},
	}))
	// seeding again keeps the stored address
	require.NoError(t, st.SeedPrograms([]*Program{
		{Network: agreement.NetworkVara, Name: "vft-manager", Address: "0xFF"},
	}))

	b := st.NewBatch(agreement.NetworkVara)
	b.SetProgram(&Program{Network: agreement.NetworkVara, Name: "vft-manager", Address: "0xbb", UpdatedAtBlock: 20})
	require.NoError(t, b.Commit(ctx))

	// a replayed older change does not win
	b.SetProgram(&Program{Network: agreement.NetworkVara, Name: "vft-manager", Address: "0xcc", UpdatedAtBlock: 10})
	require.NoError(t, b.Commit(ctx))

	programs, err := st.GetPrograms()
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, "0xbb", programs[0].Address)
	assert.Equal(t, uint64(20), programs[0].UpdatedAtBlock)

	// every address ever seen, ordered by the block it took over
	history, err := st.GetProgramHistory()
	require.NoError(t, err)
	addrs := []string{}
	for _, p := range history {
		addrs = append(addrs, p.Address)
	}
	assert.Equal(t, []string{"0xaa", "0xcc", "0xbb"}, addrs)

	assert.ErrorIs(t, st.SeedPrograms([]*Program{{Network: "Solana", Name: "x"}}), ErrNetworkInvalid)
}

func TestGetTransfersByStatus(t *testing.T) {
	st, close := newTestStateDB(t)
	defer close()

	b := st.NewBatch(agreement.NetworkVara)
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "1")))
	require.NoError(t, b.RecordNewTransfer(RandTransfer(agreement.NetworkVara, "2")))
	require.NoError(t, b.UpdateTransferStatus("2", TransferStatusBridging, blockAt(1), "0x"))
	require.NoError(t, b.Commit(context.Background()))

	awaiting, err := st.GetTransfersByStatus(TransferStatusAwaitingPayment)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, "1", awaiting[0].Nonce)

	_, err = st.GetTransfersByStatus("Nope")
	assert.ErrorIs(t, err, ErrStatusInvalid)
}
