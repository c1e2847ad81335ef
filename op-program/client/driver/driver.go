package driver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l2"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// defaultMaxSteps bounds the number of driver iterations, in case of bugs. Better than looping forever.
const defaultMaxSteps = 10_000_000

var errTooManySteps = errors.New("way too many derivation steps, something is wrong")

// Pipeline is the part of the derivation pipeline the driver steps.
type Pipeline interface {
	InitialReset(ctx context.Context, l2SafeHead eth.L2BlockRef) error
	ProducePayload(ctx context.Context, l2SafeHead eth.L2BlockRef) (*derive.AttributesWithParent, error)
	DepositsOnlyAttributes(parent eth.BlockID, derivedFrom eth.L1BlockRef) (*derive.AttributesWithParent, error)
	Origin() eth.L1BlockRef
}

// L2Chain is the chain derived blocks are confirmed against.
type L2Chain interface {
	derive.L2Source
	SafeHead() eth.L2BlockRef
	InsertDerived(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error)
}

// Driver runs the derivation pipeline until the target L2 block is safe or the L1 data is exhausted.
type Driver struct {
	logger log.Logger
	cfg    *rollup.Config
	spec   *rollup.ChainSpec

	pipeline Pipeline
	l2       L2Chain
	cursor   *derive.PipelineCursor

	targetBlockNum uint64
	maxSteps       int
}

func NewDriver(logger log.Logger, cfg *rollup.Config, pipeline Pipeline, l2Source L2Chain, targetBlockNum uint64) *Driver {
	return &Driver{
		logger:         logger,
		cfg:            cfg,
		spec:           rollup.NewChainSpec(cfg),
		pipeline:       pipeline,
		l2:             l2Source,
		targetBlockNum: targetBlockNum,
		maxSteps:       defaultMaxSteps,
	}
}

// RunComplete derives blocks until completion, and returns the final safe head.
// An error wrapping claim.ErrClaimNotValid is returned when the derived chain diverges from the claimed chain.
func (d *Driver) RunComplete(ctx context.Context) (eth.L2BlockRef, error) {
	safe := d.l2.SafeHead()
	if safe.Number >= d.targetBlockNum {
		d.logger.Info("Derivation complete: target is not after agreed block", "head", safe, "target", d.targetBlockNum)
		return safe, nil
	}
	if err := d.pipeline.InitialReset(ctx, safe); err != nil {
		return safe, fmt.Errorf("failed initial pipeline reset: %w", err)
	}
	origin := d.pipeline.Origin()
	d.cursor = derive.NewPipelineCursor(origin, d.spec.ChannelTimeout(origin.Time), derive.TipCursor{L2SafeHead: safe})

	for step := 0; step < d.maxSteps; step++ {
		safe = d.l2.SafeHead()
		if safe.Number >= d.targetBlockNum {
			d.logger.Info("Derivation complete: reached L2 block as safe", "head", safe)
			return safe, nil
		}
		attrs, err := d.pipeline.ProducePayload(ctx, safe)
		if err == io.EOF {
			d.logger.Info("Derivation complete: no further L1 data to process", "head", safe, "origin", d.pipeline.Origin())
			return safe, nil
		} else if errors.Is(err, derive.ErrTemporary) {
			// Temporary errors are not caused by missing data here, channels timing out can cause them too.
			d.logger.Warn("Temporary error in derivation", "err", err)
			continue
		} else if errors.Is(err, derive.ErrReset) {
			return safe, fmt.Errorf("unexpected reset error: %w", err)
		} else if err != nil {
			return safe, err
		}
		if err := d.processAttributes(attrs); err != nil {
			return d.l2.SafeHead(), err
		}
	}
	return d.l2.SafeHead(), errTooManySteps
}

// processAttributes confirms the attributes against the L2 chain, handling them as invalid
// when the chain does not contain the block they build.
func (d *Driver) processAttributes(attrs *derive.AttributesWithParent) error {
	ref, err := d.l2.InsertDerived(attrs)
	if errors.Is(err, l2.ErrBeyondClaim) {
		return fmt.Errorf("%w: %w", claim.ErrClaimNotValid, err)
	} else if errors.Is(err, l2.ErrBlockMismatch) {
		if !d.cfg.IsHolocene(uint64(attrs.Attributes.Timestamp)) {
			d.logger.Warn("Dropping derived attributes not matching the L2 chain", "parent", attrs.Parent, "err", err)
			return nil
		}
		if attrs.Attributes.IsDepositsOnly() {
			return fmt.Errorf("%w: deposits-only attributes rejected: %w", claim.ErrClaimNotValid, err)
		}
		d.logger.Warn("Replacing derived attributes with deposits-only attributes", "parent", attrs.Parent, "err", err)
		depositsOnly, err := d.pipeline.DepositsOnlyAttributes(attrs.Parent.ID(), attrs.DerivedFrom)
		if err != nil {
			return fmt.Errorf("failed to build deposits-only attributes: %w", err)
		}
		return d.processAttributes(depositsOnly)
	} else if err != nil {
		return err
	}
	// The output root of blocks after the agreed one is not known without execution.
	if err := d.cursor.Advance(attrs.DerivedFrom, ref, eth.Bytes32{}); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	d.logger.Debug("Derived block", "head", ref, "derivedFrom", attrs.DerivedFrom)
	return nil
}
