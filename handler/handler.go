package handler

import (
	"context"
	"fmt"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/TEENet-io/bridge-indexer/metrics"
	"github.com/TEENet-io/bridge-indexer/registry"
	"github.com/TEENet-io/bridge-indexer/state"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// Handler turns the events of one batch into staged work on that batch.
// It is built per batch and used by one goroutine.
type Handler struct {
	ctx      context.Context
	registry *registry.Registry
	resolver *registry.Resolver
	batch    *state.Batch
}

var _ agreement.PayloadVisitor = (*Handler)(nil)

func New(ctx context.Context, resolver *registry.Resolver, batch *state.Batch) *Handler {
	return &Handler{
		ctx:      ctx,
		registry: resolver.Registry(),
		resolver: resolver,
		batch:    batch,
	}
}

// Handle stages the effects of ev. Events of the wrong network are rejected.
func (h *Handler) Handle(ev *agreement.Event) error {
	if ev.Network != h.batch.Network() {
		return fmt.Errorf("%s event in %s batch: %s", ev.Network, h.batch.Network(), ev)
	}
	if ev.Payload == nil {
		return nil
	}

	if err := ev.Dispatch(h); err != nil {
		return errors.Wrapf(err, "failed to handle %s", ev)
	}
	return nil
}

func (h *Handler) handled(ev *agreement.Event) {
	metrics.RecordEvent(string(ev.Network), ev.Kind(), false)
}

func (h *Handler) ignore(ev *agreement.Event, reason string) error {
	logger.WithFields(logger.Fields{
		"event":  ev.Kind(),
		"block":  ev.Block.Number,
		"source": ev.Source,
		"reason": reason,
	}).Info("ignoring event")
	metrics.RecordEvent(string(ev.Network), ev.Kind(), true)
	return nil
}

// from reports whether ev was emitted by the tracked program name.
func (h *Handler) from(ev *agreement.Event, name string) bool {
	return h.registry.Is(ev.Network, name, ev.Source)
}

// transferNonce returns the canonical nonce carried by a payment or failure
// event. On Ethereum the fee is paid in the request transaction, so a missing
// nonce is the nonce of that transaction. An Ethereum event may also name a
// transfer requested on Vara, whose nonce is an integer.
func (h *Handler) transferNonce(ev *agreement.Event, raw string) (string, error) {
	if ev.Network == agreement.NetworkVara {
		return common.VaraNonceFromString(raw)
	}
	if raw == "" {
		return common.EthNonce(ev.Block.Number, ev.TxIndex), nil
	}
	if common.IsEthNonce(raw) {
		return common.NormalizeAddress(raw), nil
	}
	return common.VaraNonceFromString(raw)
}

func (h *Handler) transition(ev *agreement.Event, nonce string, status state.TransferStatus) error {
	var err error
	if status == state.TransferStatusCompleted {
		err = h.batch.SetCompletedTransfer(nonce, ev.Block.Timestamp, ev.Block.Number, ev.TxHash)
	} else {
		err = h.batch.UpdateTransferStatus(nonce, status, ev.Block, ev.TxHash)
	}
	if err != nil {
		return err
	}
	metrics.RecordTransition(string(ev.Network), string(status))
	h.handled(ev)
	return nil
}

func (h *Handler) VisitVaraBridgingRequested(ev *agreement.Event, p *agreement.VaraBridgingRequested) error {
	if !h.from(ev, registry.VftManager) {
		return h.ignore(ev, "not from vft-manager")
	}

	nonce, err := common.VaraNonceFromString(p.Nonce)
	if err != nil {
		return err
	}

	token := common.NormalizeAddress(p.VaraToken)
	var destination string
	pair, ok, err := h.batch.ActivePairByVaraToken(token)
	if err != nil {
		return err
	}
	if ok {
		destination = pair.EthToken
	} else {
		logger.WithFields(logger.Fields{"nonce": nonce, "token": token}).Warn("no active pair for requested token")
	}

	return h.recordTransfer(ev, &state.Transfer{
		Nonce:         nonce,
		SourceNetwork: agreement.NetworkVara,
		DestNetwork:   agreement.NetworkEthereum,
		Source:        token,
		Destination:   destination,
		Sender:        common.NormalizeAddress(p.Sender),
		Receiver:      common.NormalizeAddress(p.Receiver),
		Amount:        agreement.AmountToBig(p.Amount),
	})
}

func (h *Handler) VisitEthBridgingRequested(ev *agreement.Event, p *agreement.EthBridgingRequested) error {
	if !h.from(ev, registry.Erc20Manager) {
		return h.ignore(ev, "not from erc20-manager")
	}

	nonce := common.EthNonce(ev.Block.Number, ev.TxIndex)
	token := common.NormalizeAddress(p.Token)
	var destination string
	pair, ok, err := h.batch.ActivePairByEthToken(token)
	if err != nil {
		return err
	}
	if ok {
		destination = pair.VaraToken
	} else {
		logger.WithFields(logger.Fields{"nonce": nonce, "token": token}).Warn("no active pair for requested token")
	}

	return h.recordTransfer(ev, &state.Transfer{
		Nonce:         nonce,
		SourceNetwork: agreement.NetworkEthereum,
		DestNetwork:   agreement.NetworkVara,
		Source:        token,
		Destination:   destination,
		Sender:        common.NormalizeAddress(p.Sender),
		Receiver:      common.NormalizeAddress(p.Receiver),
		Amount:        agreement.AmountToBig(p.Amount),
	})
}

func (h *Handler) recordTransfer(ev *agreement.Event, t *state.Transfer) error {
	t.Status = state.TransferStatusAwaitingPayment
	t.TxHash = ev.TxHash
	t.BlockNumber = ev.Block.Number
	t.Timestamp = ev.Block.Timestamp
	if err := h.batch.RecordNewTransfer(t); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"nonce":  t.Nonce,
		"from":   t.SourceNetwork,
		"amount": t.Amount,
		"block":  t.BlockNumber,
	}).Debug("transfer requested")
	h.handled(ev)
	return nil
}

func (h *Handler) VisitBridgingPaid(ev *agreement.Event, p *agreement.BridgingPaid) error {
	if !h.from(ev, registry.BridgingPayment) {
		return h.ignore(ev, "not from bridging-payment")
	}
	nonce, err := h.transferNonce(ev, p.Nonce)
	if err != nil {
		return err
	}
	return h.transition(ev, nonce, state.TransferStatusBridging)
}

func (h *Handler) VisitPriorityBridgingPaid(ev *agreement.Event, p *agreement.PriorityBridgingPaid) error {
	if !h.from(ev, registry.BridgingPayment) {
		return h.ignore(ev, "not from bridging-payment")
	}
	nonce, err := h.transferNonce(ev, p.Nonce)
	if err != nil {
		return err
	}
	if err := h.batch.SetIsPriority(nonce); err != nil {
		return err
	}
	h.handled(ev)
	return nil
}

func (h *Handler) VisitBridgingFailed(ev *agreement.Event, p *agreement.BridgingFailed) error {
	manager := registry.VftManager
	if ev.Network == agreement.NetworkEthereum {
		manager = registry.Erc20Manager
	}
	if !h.from(ev, manager) {
		return h.ignore(ev, "not from "+manager)
	}

	nonce, err := h.transferNonce(ev, p.Nonce)
	if err != nil {
		return err
	}
	logger.WithFields(logger.Fields{"nonce": nonce, "reason": p.Reason}).Warn("bridging failed")
	return h.transition(ev, nonce, state.TransferStatusFailed)
}

func (h *Handler) VisitHistoricalProxyRelayed(ev *agreement.Event, p *agreement.HistoricalProxyRelayed) error {
	if !h.from(ev, registry.HistoricalProxy) {
		return h.ignore(ev, "not from historical-proxy")
	}
	nonce := common.EthNonce(p.BlockNumber, p.TransactionIndex)
	return h.transition(ev, nonce, state.TransferStatusCompleted)
}

func (h *Handler) VisitEthBridgeMessageQueued(ev *agreement.Event, p *agreement.EthBridgeMessageQueued) error {
	nonce, err := common.VaraNonceFromString(p.Nonce)
	if err != nil {
		return err
	}
	h.batch.AddEthBridgeMessage(&state.GearEthBridgeMessage{
		Hash:        common.NormalizeAddress(p.Hash),
		Nonce:       nonce,
		Source:      common.NormalizeAddress(p.Source),
		Destination: common.NormalizeAddress(p.Destination),
		BlockNumber: ev.Block.Number,
		Timestamp:   ev.Block.Timestamp,
	})
	h.handled(ev)
	return nil
}

func (h *Handler) VisitQueueMerkleRootChanged(ev *agreement.Event, p *agreement.QueueMerkleRootChanged) error {
	h.batch.AddMerkleRoot(&state.MerkleRootInMessageQueue{
		BlockNumber: ev.Block.Number,
		MerkleRoot:  common.NormalizeAddress(p.Root),
		Timestamp:   ev.Block.Timestamp,
	})
	h.handled(ev)
	return nil
}

func (h *Handler) VisitCheckpointAdded(ev *agreement.Event, p *agreement.CheckpointAdded) error {
	if !h.from(ev, registry.CheckpointLightClient) {
		return h.ignore(ev, "not from checkpoint-light-client")
	}
	h.batch.NewSlot(p.Slot, common.NormalizeAddress(p.TreeHashRoot), ev.Block)
	h.handled(ev)
	return nil
}

func (h *Handler) VisitProgramChanged(ev *agreement.Event, p *agreement.ProgramChanged) error {
	if !p.Change.Deactivated() {
		return h.ignore(ev, "program change "+string(p.Change))
	}
	if err := h.resolver.ProgramDeactivated(h.ctx, ev, p.ProgramID, h.batch); err != nil {
		return err
	}
	h.handled(ev)
	return nil
}

func (h *Handler) VisitTokenMappingAdded(ev *agreement.Event, p *agreement.TokenMappingAdded) error {
	if !h.from(ev, registry.VftManager) {
		return h.ignore(ev, "not from vft-manager")
	}
	if err := h.batch.AddPair(&state.Pair{
		VaraToken:         p.VaraToken,
		VaraTokenSymbol:   p.VaraTokenSymbol,
		VaraTokenName:     p.VaraTokenName,
		VaraTokenDecimals: p.VaraTokenDecimals,
		EthToken:          p.EthToken,
		EthTokenSymbol:    p.EthTokenSymbol,
		EthTokenName:      p.EthTokenName,
		EthTokenDecimals:  p.EthTokenDecimals,
		TokenSupply:       p.Supply,
		ActiveSinceBlock:  ev.Block.Number,
	}); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"vara":   p.VaraToken,
		"eth":    p.EthToken,
		"symbol": p.VaraTokenSymbol,
	}).Info("pair added")
	h.handled(ev)
	return nil
}

func (h *Handler) VisitTokenMappingRemoved(ev *agreement.Event, p *agreement.TokenMappingRemoved) error {
	if !h.from(ev, registry.VftManager) {
		return h.ignore(ev, "not from vft-manager")
	}
	h.batch.RemovePair(p.VaraToken, p.EthToken, ev.Block)
	logger.WithFields(logger.Fields{"vara": p.VaraToken, "eth": p.EthToken}).Info("pair removed")
	h.handled(ev)
	return nil
}

func (h *Handler) VisitMessageProcessed(ev *agreement.Event, p *agreement.MessageProcessed) error {
	if !h.from(ev, registry.MessageQueue) {
		return h.ignore(ev, "not from message-queue")
	}
	// only messages of vft-manager are transfers, including those sent by an
	// address it has since migrated away from
	if !h.registry.WasEver(agreement.NetworkVara, registry.VftManager, p.Source) {
		return h.ignore(ev, "message not sent by vft-manager")
	}

	nonce, err := common.VaraNonceFromString(p.MessageNonce)
	if err != nil {
		return err
	}
	return h.transition(ev, nonce, state.TransferStatusCompleted)
}

func (h *Handler) VisitMerkleRootSubmitted(ev *agreement.Event, p *agreement.MerkleRootSubmitted) error {
	if !h.from(ev, registry.MessageQueue) {
		return h.ignore(ev, "not from message-queue")
	}
	h.batch.SetMerkleRootSubmitted(p.VaraBlockNumber, common.NormalizeAddress(p.MerkleRoot), ev.Block, ev.TxHash)
	h.handled(ev)
	return nil
}
