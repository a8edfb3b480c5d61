package registry

import (
	"context"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/TEENet-io/bridge-indexer/state"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// InheritorClient asks the Vara node which program inherited a deactivated
// one. blockHash pins the query to the block of the deactivation.
type InheritorClient interface {
	GetInheritor(ctx context.Context, programID, blockHash string) (string, error)
}

// Resolver keeps program and token addresses correct across redeployments.
type Resolver struct {
	registry *Registry
	client   InheritorClient
}

func NewResolver(registry *Registry, client InheritorClient) *Resolver {
	return &Resolver{registry: registry, client: client}
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

// ProgramDeactivated handles a Vara program that exited or became inactive.
// A tracked program is re-pointed at its inheritor, a program that is the
// Vara token of an active pair turns into a pair upgrade, anything else is
// ignored. Failing to reach the node is an error; the batch must be retried.
func (r *Resolver) ProgramDeactivated(ctx context.Context, ev *agreement.Event, programID string, b *state.Batch) error {
	programID = common.NormalizeAddress(programID)

	if name, ok := r.registry.Name(agreement.NetworkVara, programID); ok {
		inheritor, err := r.inheritor(ctx, ev, programID)
		if err != nil || inheritor == "" {
			return err
		}

		r.registry.Set(agreement.NetworkVara, name, inheritor)
		b.SetProgram(&state.Program{
			Network:        agreement.NetworkVara,
			Name:           name,
			Address:        inheritor,
			UpdatedAtBlock: ev.Block.Number,
		})
		logger.WithFields(logger.Fields{
			"program": name,
			"from":    programID,
			"to":      inheritor,
			"block":   ev.Block.Number,
		}).Info("program migrated")
		return nil
	}

	pair, ok, err := b.ActivePairByVaraToken(programID)
	if err != nil {
		return err
	}
	if ok {
		inheritor, err := r.inheritor(ctx, ev, programID)
		if err != nil || inheritor == "" {
			return err
		}

		next, err := b.UpgradePair(pair.ID, inheritor, ev.Block)
		if err != nil {
			return err
		}
		logger.WithFields(logger.Fields{
			"symbol":  pair.VaraTokenSymbol,
			"oldPair": pair.ID,
			"newPair": next.ID,
			"token":   inheritor,
			"block":   ev.Block.Number,
		}).Info("token migrated")
		return nil
	}

	logger.WithFields(logger.Fields{
		"program": programID,
		"block":   ev.Block.Number,
	}).Info("ignoring deactivation of untracked program")
	return nil
}

// inheritor returns "" without error when the node knows no inheritor.
func (r *Resolver) inheritor(ctx context.Context, ev *agreement.Event, programID string) (string, error) {
	inheritor, err := r.client.GetInheritor(ctx, programID, ev.Block.Hash)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve inheritor of %s at block %d", programID, ev.Block.Number)
	}

	inheritor = common.NormalizeAddress(inheritor)
	if inheritor == "" || inheritor == programID {
		logger.WithFields(logger.Fields{
			"program": programID,
			"block":   ev.Block.Number,
		}).Warn("deactivated program has no inheritor")
		return "", nil
	}
	return inheritor, nil
}
