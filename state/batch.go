package state

import (
	"context"
	"fmt"
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	logger "github.com/sirupsen/logrus"
)

// PairReader looks up committed pairs. A Batch consults it after the pairs
// staged by itself.
type PairReader interface {
	GetPair(id string) (*Pair, bool, error)
	GetActivePairByVaraToken(token string) (*Pair, bool, error)
	GetActivePairByEthToken(token string) (*Pair, bool, error)
}

// Store is where a Batch lands on Commit.
type Store interface {
	PairReader
	CommitBatch(ctx context.Context, b *Batch) error
}

type transferPatch struct {
	nonce           string
	status          TransferStatus // empty when only the priority flag changes
	bridgingBlock   *uint64
	bridgingTxHash  *string
	completedAt     *time.Time
	completedBlock  *uint64
	completedTxHash *string
	priority        bool
}

// merge folds o into p. Whatever p already carries wins.
func (p *transferPatch) merge(o *transferPatch) {
	if o.status != "" {
		p.status = mergeStatus(p.status, o.status)
	}
	if p.bridgingBlock == nil {
		p.bridgingBlock, p.bridgingTxHash = o.bridgingBlock, o.bridgingTxHash
	}
	if p.status == TransferStatusCompleted && p.completedBlock == nil {
		p.completedAt, p.completedBlock, p.completedTxHash = o.completedAt, o.completedBlock, o.completedTxHash
	}
	p.priority = p.priority || o.priority
}

// nonceNetwork is the network a transfer with this canonical nonce was
// requested on.
func nonceNetwork(nonce string) agreement.Network {
	if common.IsEthNonce(nonce) {
		return agreement.NetworkEthereum
	}
	return agreement.NetworkVara
}

type pairPatch struct {
	id            string
	activeToBlock uint64
	upgradedTo    *string
	removed       bool
}

type merkleSubmission struct {
	varaBlock uint64
	root      string
	ethBlock  uint64
	txHash    string
}

// Batch stages everything one batch of events produces. Inserts and keyed
// updates are kept apart so that Commit can write all inserts before any
// update that refers to them. A Batch belongs to exactly one pipeline and is
// not safe for concurrent use.
type Batch struct {
	network agreement.Network
	store   Store

	transfers   []*Transfer
	transferIdx map[string]int // nonce -> index in transfers

	patches    map[string]*transferPatch
	patchOrder []string

	pairs          []*Pair
	pairIdx        map[string]int
	pairPatches    map[string]*pairPatch
	pairPatchOrder []string

	messages   []*GearEthBridgeMessage
	messageIdx map[string]struct{}

	merkleRoots []*MerkleRootInMessageQueue
	submissions []*merkleSubmission
	slots       []*CheckpointSlot
	programs    []*Program

	processedBlock *uint64
}

func NewBatch(network agreement.Network, store Store) *Batch {
	b := &Batch{network: network, store: store}
	b.reset()
	return b
}

func (b *Batch) reset() {
	b.transfers = nil
	b.transferIdx = make(map[string]int)
	b.patches = make(map[string]*transferPatch)
	b.patchOrder = nil
	b.pairs = nil
	b.pairIdx = make(map[string]int)
	b.pairPatches = make(map[string]*pairPatch)
	b.pairPatchOrder = nil
	b.messages = nil
	b.messageIdx = make(map[string]struct{})
	b.merkleRoots = nil
	b.submissions = nil
	b.slots = nil
	b.programs = nil
	b.processedBlock = nil
}

func (b *Batch) Network() agreement.Network {
	return b.network
}

// Size is the number of staged operations.
func (b *Batch) Size() int {
	return len(b.transfers) + len(b.patches) + len(b.pairs) + len(b.pairPatches) +
		len(b.messages) + len(b.merkleRoots) + len(b.submissions) + len(b.slots) + len(b.programs)
}

// RecordNewTransfer stages the creation of a transfer. A second transfer with
// the same nonce in the same batch is dropped; the first one wins.
func (b *Batch) RecordNewTransfer(t *Transfer) error {
	t = t.Clone()
	if t.ID == "" && t.Nonce != "" {
		t.ID = common.TransferID(t.Nonce)
	}
	if t.Status == "" {
		t.Status = TransferStatusAwaitingPayment
	}
	if _, err := new(sqlTransfer).encode(t); err != nil {
		return err
	}

	if _, ok := b.transferIdx[t.Nonce]; ok {
		logger.WithField("nonce", t.Nonce).Warn("duplicate transfer in batch, keeping the first")
		return nil
	}
	b.transferIdx[t.Nonce] = len(b.transfers)
	b.transfers = append(b.transfers, t)
	return nil
}

func (b *Batch) patch(nonce string) *transferPatch {
	p, ok := b.patches[nonce]
	if !ok {
		p = &transferPatch{nonce: nonce}
		b.patches[nonce] = p
		b.patchOrder = append(b.patchOrder, nonce)
	}
	return p
}

// UpdateTransferStatus stages a forward transition of the transfer with the
// given nonce. The transfer does not need to exist yet; it is resolved at
// commit time. A transfer requested on this batch's network must be known by
// then, one requested on the other network may still be missing and the
// update waits for it. blk and txHash locate the event that caused the transition.
func (b *Batch) UpdateTransferStatus(nonce string, status TransferStatus, blk agreement.BlockHeader, txHash string) error {
	if nonce == "" {
		return fmt.Errorf("%w: empty nonce", ErrTransferInvalid)
	}
	if !status.Valid() || status == TransferStatusAwaitingPayment {
		return fmt.Errorf("%w: cannot move to %q", ErrStatusInvalid, status)
	}

	p := b.patch(nonce)
	p.status = mergeStatus(p.status, status)

	switch status {
	case TransferStatusBridging:
		if p.bridgingBlock == nil {
			block, hash := blk.Number, txHash
			p.bridgingBlock, p.bridgingTxHash = &block, &hash
		}
	case TransferStatusCompleted:
		if p.status == TransferStatusCompleted && p.completedBlock == nil {
			at, block, hash := blk.Timestamp, blk.Number, txHash
			p.completedAt, p.completedBlock, p.completedTxHash = &at, &block, &hash
		}
	}
	return nil
}

// SetCompletedTransfer stages the completion of a transfer.
func (b *Batch) SetCompletedTransfer(nonce string, timestamp time.Time, blockNumber uint64, txHash string) error {
	return b.UpdateTransferStatus(nonce, TransferStatusCompleted, agreement.BlockHeader{
		Number:    blockNumber,
		Timestamp: timestamp,
	}, txHash)
}

// FailTransfer stages the terminal failure of a transfer.
func (b *Batch) FailTransfer(nonce string, blk agreement.BlockHeader, txHash string) error {
	return b.UpdateTransferStatus(nonce, TransferStatusFailed, blk, txHash)
}

// SetIsPriority stages the priority flag. It does not touch the status.
func (b *Batch) SetIsPriority(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("%w: empty nonce", ErrTransferInvalid)
	}
	b.patch(nonce).priority = true
	return nil
}

func (b *Batch) AddEthBridgeMessage(m *GearEthBridgeMessage) {
	if _, ok := b.messageIdx[m.Hash]; ok {
		return
	}
	c := *m
	b.messageIdx[m.Hash] = struct{}{}
	b.messages = append(b.messages, &c)
}

func (b *Batch) AddMerkleRoot(r *MerkleRootInMessageQueue) {
	c := *r
	b.merkleRoots = append(b.merkleRoots, &c)
}

// SetMerkleRootSubmitted stages the submission of the root taken at Vara
// block varaBlock. A root that was never indexed is only logged at commit.
func (b *Batch) SetMerkleRootSubmitted(varaBlock uint64, root string, blk agreement.BlockHeader, txHash string) {
	b.submissions = append(b.submissions, &merkleSubmission{
		varaBlock: varaBlock,
		root:      root,
		ethBlock:  blk.Number,
		txHash:    txHash,
	})
}

func (b *Batch) NewSlot(slot uint64, treeHashRoot string, blk agreement.BlockHeader) {
	b.slots = append(b.slots, &CheckpointSlot{
		Slot:         slot,
		TreeHashRoot: treeHashRoot,
		BlockNumber:  blk.Number,
		Timestamp:    blk.Timestamp,
	})
}

// SetProgram stages a program address change.
func (b *Batch) SetProgram(p *Program) {
	c := *p
	b.programs = append(b.programs, &c)
}

// SetProcessedBlock stages the pipeline checkpoint. It is written in the same
// transaction as the rest of the batch.
func (b *Batch) SetProcessedBlock(n uint64) {
	b.processedBlock = &n
}

// AddPair stages a new pair, or the reactivation of a removed one.
func (b *Batch) AddPair(p *Pair) error {
	c := *p
	c.VaraToken = common.NormalizeAddress(c.VaraToken)
	c.EthToken = common.NormalizeAddress(c.EthToken)
	c.ID = common.PairID(c.VaraToken, c.EthToken)
	c.IsActive = true
	c.IsRemoved = false
	c.ActiveToBlock = nil
	c.UpgradedTo = nil
	if _, err := new(sqlPair).encode(&c); err != nil {
		return err
	}

	// a re-add in the same batch overrides an earlier removal
	if _, ok := b.pairPatches[c.ID]; ok {
		delete(b.pairPatches, c.ID)
		b.pairPatchOrder = removeString(b.pairPatchOrder, c.ID)
	}
	if i, ok := b.pairIdx[c.ID]; ok {
		b.pairs[i] = &c
		return nil
	}
	b.pairIdx[c.ID] = len(b.pairs)
	b.pairs = append(b.pairs, &c)
	return nil
}

// RemovePair stages the retirement of the pair (varaToken, ethToken).
func (b *Batch) RemovePair(varaToken, ethToken string, blk agreement.BlockHeader) {
	id := common.PairID(varaToken, ethToken)
	b.setPairPatch(&pairPatch{id: id, activeToBlock: blk.Number, removed: true})
}

func (b *Batch) setPairPatch(pp *pairPatch) {
	if _, ok := b.pairPatches[pp.id]; !ok {
		b.pairPatchOrder = append(b.pairPatchOrder, pp.id)
	}
	b.pairPatches[pp.id] = pp
}

// UpgradePair supersedes the pair oldID by a new pair whose Vara token is
// newVaraToken. The new pair carries forward the token metadata and is active
// from the given block; the old one is closed at that block and points at
// its successor.
func (b *Batch) UpgradePair(oldID, newVaraToken string, blk agreement.BlockHeader) (*Pair, error) {
	old, ok, err := b.GetPair(oldID)
	if err != nil {
		return nil, err
	}
	if !ok || !old.IsActive {
		return nil, fmt.Errorf("%w: no active pair %s to upgrade", ErrPairInvalid, oldID)
	}

	next := *old
	next.VaraToken = common.NormalizeAddress(newVaraToken)
	next.ID = common.PairID(next.VaraToken, next.EthToken)
	next.ActiveSinceBlock = blk.Number
	if next.ID == oldID {
		return nil, fmt.Errorf("%w: pair %s upgraded to itself", ErrPairInvalid, oldID)
	}
	if err := b.AddPair(&next); err != nil {
		return nil, err
	}

	upgradedTo := next.ID
	b.setPairPatch(&pairPatch{id: oldID, activeToBlock: blk.Number, upgradedTo: &upgradedTo})

	return b.effective(b.pairs[b.pairIdx[next.ID]]), nil
}

// effective applies a staged patch to a copy of p.
func (b *Batch) effective(p *Pair) *Pair {
	c := *p
	if pp, ok := b.pairPatches[p.ID]; ok {
		to := pp.activeToBlock
		c.IsActive = false
		c.ActiveToBlock = &to
		if pp.removed {
			c.IsRemoved = true
		}
		if pp.upgradedTo != nil {
			c.UpgradedTo = pp.upgradedTo
		}
	}
	return &c
}

// GetPair returns the pair with the given id as it would be after commit.
func (b *Batch) GetPair(id string) (*Pair, bool, error) {
	if i, ok := b.pairIdx[id]; ok {
		return b.effective(b.pairs[i]), true, nil
	}
	p, ok, err := b.store.GetPair(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return b.effective(p), true, nil
}

// ActivePairByVaraToken looks up the active pair for a Vara token, seeing
// pairs added, removed or upgraded earlier in this batch.
func (b *Batch) ActivePairByVaraToken(token string) (*Pair, bool, error) {
	token = common.NormalizeAddress(token)
	return b.activePair(func(p *Pair) bool { return p.VaraToken == token },
		func() (*Pair, bool, error) { return b.store.GetActivePairByVaraToken(token) })
}

// ActivePairByEthToken is ActivePairByVaraToken for the Ethereum side.
func (b *Batch) ActivePairByEthToken(token string) (*Pair, bool, error) {
	token = common.NormalizeAddress(token)
	return b.activePair(func(p *Pair) bool { return p.EthToken == token },
		func() (*Pair, bool, error) { return b.store.GetActivePairByEthToken(token) })
}

func (b *Batch) activePair(match func(*Pair) bool, fallback func() (*Pair, bool, error)) (*Pair, bool, error) {
	for i := len(b.pairs) - 1; i >= 0; i-- {
		p := b.effective(b.pairs[i])
		if p.IsActive && match(p) {
			return p, true, nil
		}
	}

	p, ok, err := fallback()
	if err != nil || !ok {
		return nil, false, err
	}
	p = b.effective(p)
	if !p.IsActive {
		return nil, false, nil
	}
	return p, true, nil
}

// Commit lands the batch atomically and clears it. A failed commit leaves the
// batch untouched; the caller discards it and rebuilds from the events.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.store.CommitBatch(ctx, b); err != nil {
		return err
	}
	b.reset()
	return nil
}

func removeString(s []string, v string) []string {
	for i := range s {
		if s[i] == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
