package derive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// maxStepsPerPayload bounds the work ProducePayload does before handing control back to the caller.
const maxStepsPerPayload = 100_000

var errTooManySteps = errors.New("too many derivation steps without producing attributes")

type L1Fetcher interface {
	L1BlockRefByNumberFetcher
	L1BlockRefByHash(context.Context, common.Hash) (eth.L1BlockRef, error)
	L1ReceiptsFetcher
	L1TransactionFetcher
}

type ResettableStage interface {
	// Reset resets a pull stage. `base` refers to the L1 Block Reference to reset to, with corresponding configuration.
	Reset(ctx context.Context, base eth.L1BlockRef, baseCfg eth.SystemConfig) error
}

type L2Source interface {
	SafeBlockFetcher
	L2BlockRefByHash(ctx context.Context, l2Hash common.Hash) (eth.L2BlockRef, error)
	SystemConfigL2Fetcher
}

type PipelineState uint8

const (
	// PipelineNeedsReset is the state before the first reset and after any reset or critical error.
	PipelineNeedsReset PipelineState = iota
	// PipelineIdle means the last call produced attributes, or the pipeline was just reset.
	PipelineIdle
	// PipelineStepping means the pipeline is in between producing attributes.
	PipelineStepping
	// PipelineExhausted means there is no more L1 data to derive from, until the L1 chain grows.
	PipelineExhausted
)

func (s PipelineState) String() string {
	switch s {
	case PipelineNeedsReset:
		return "needs-reset"
	case PipelineIdle:
		return "idle"
	case PipelineStepping:
		return "stepping"
	case PipelineExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// DerivationPipeline is updated with new L1 data, and the Step() function can be iterated on to generate attributes
type DerivationPipeline struct {
	log       log.Logger
	rollupCfg *rollup.Config
	spec      *rollup.ChainSpec
	l1Fetcher L1Fetcher
	l2        L2Source

	stages    []ResettableStage
	traversal l1TraversalStage
	attrib    *AttributesQueue

	state  PipelineState
	origin eth.L1BlockRef

	metrics Metrics
}

// NewDerivationPipeline creates a DerivationPipeline, to turn L1 data into L2 block-inputs.
// The pipeline starts in the PipelineNeedsReset state.
func NewDerivationPipeline(log log.Logger, rollupCfg *rollup.Config, l1Fetcher L1Fetcher, l1Blobs L1BlobsFetcher,
	altDA AltDAInputFetcher, l2Source L2Source, metrics Metrics,
) *DerivationPipeline {
	spec := rollup.NewChainSpec(rollupCfg)
	// Pull stages
	l1Traversal := NewL1Traversal(log, rollupCfg, l1Fetcher)
	dataSrc := NewDataSourceFactory(log, rollupCfg, l1Fetcher, l1Blobs, altDA) // auxiliary stage for L1Retrieval
	l1Src := NewL1Retrieval(log, dataSrc, l1Traversal)
	frameQueue := NewFrameQueue(log, rollupCfg, l1Src, metrics)
	channelMux := NewChannelMux(log, spec, frameQueue, metrics)
	chInReader := NewChannelInReader(rollupCfg, log, channelMux, metrics)
	batchMux := NewBatchMux(log, rollupCfg, chInReader, l2Source)
	attrBuilder := NewFetchingAttributesBuilder(rollupCfg, l1Fetcher, l2Source)
	attributesQueue := NewAttributesQueue(log, rollupCfg, attrBuilder, batchMux)

	// Reset from ResetSignal, in order of the stages: traversal first, attributes last.
	stages := []ResettableStage{l1Traversal, l1Src, frameQueue, channelMux, chInReader, batchMux, attributesQueue}

	return &DerivationPipeline{
		log:       log,
		rollupCfg: rollupCfg,
		spec:      spec,
		l1Fetcher: l1Fetcher,
		l2:        l2Source,
		stages:    stages,
		traversal: l1Traversal,
		attrib:    attributesQueue,
		state:     PipelineNeedsReset,
		metrics:   metrics,
	}
}

func (dp *DerivationPipeline) RollupConfig() *rollup.Config {
	return dp.rollupCfg
}

// Origin is the L1 block of the inner-most stage of the derivation pipeline,
// i.e. the L1 chain up to and including this point included and/or produced all the safe L2 blocks.
func (dp *DerivationPipeline) Origin() eth.L1BlockRef {
	return dp.origin
}

func (dp *DerivationPipeline) State() PipelineState {
	return dp.state
}

// Signal routes a control message to the stages of the pipeline.
// Resets are applied to every stage before returning, and resetting twice to the same origin
// leaves the pipeline as if it was reset once.
func (dp *DerivationPipeline) Signal(ctx context.Context, s Signal) error {
	switch x := s.(type) {
	case ResetSignal:
		return dp.reset(ctx, x.L1Origin, x.SystemConfig)
	case FlushChannelSignal:
		dp.log.Info("flushing current channel", "origin", dp.origin)
		dp.attrib.FlushChannel()
		return nil
	case ActivationSignal:
		dp.activate(x.Fork)
		return nil
	default:
		return fmt.Errorf("unknown pipeline signal: %v", s)
	}
}

func (dp *DerivationPipeline) reset(ctx context.Context, origin eth.L1BlockRef, sysCfg eth.SystemConfig) error {
	dp.metrics.RecordPipelineReset()
	for i, stage := range dp.stages {
		if err := stage.Reset(ctx, origin, sysCfg); err != io.EOF {
			dp.state = PipelineNeedsReset
			if err == nil {
				err = errors.New("stage did not complete reset")
			}
			return fmt.Errorf("stage %d failed resetting: %w", i, err)
		}
	}
	dp.origin = origin
	dp.state = PipelineIdle
	dp.log.Info("reset derivation pipeline", "origin", origin, "batcher", sysCfg.BatcherAddr)
	return nil
}

// InitialReset rewinds the pipeline to an L1 origin old enough to read all the channel data
// that the blocks after l2SafeHead may be derived from, and resets every stage to it.
func (dp *DerivationPipeline) InitialReset(ctx context.Context, l2SafeHead eth.L2BlockRef) error {
	origin, sysCfg, err := dp.findResetOrigin(ctx, l2SafeHead)
	if err != nil {
		return err
	}
	return dp.Signal(ctx, ResetSignal{L1Origin: origin, SystemConfig: sysCfg})
}

func (dp *DerivationPipeline) findResetOrigin(ctx context.Context, resetL2Safe eth.L2BlockRef) (eth.L1BlockRef, eth.SystemConfig, error) {
	dp.log.Info("rewinding derivation pipeline L1 traversal to handle reset", "safe", resetL2Safe)

	// Walk back L2 chain to find the L1 origin that is old enough to start buffering channel data from.
	pipelineL2 := resetL2Safe
	l1Origin := resetL2Safe.L1Origin

	pipelineOrigin, err := dp.l1Fetcher.L1BlockRefByHash(ctx, l1Origin.Hash)
	if err != nil {
		return eth.L1BlockRef{}, eth.SystemConfig{}, NewTemporaryError(fmt.Errorf("failed to fetch the new L1 progress: origin: %s; err: %w", l1Origin, err))
	}

	for {
		afterL2Genesis := pipelineL2.Number > dp.rollupCfg.Genesis.L2.Number
		afterL1Genesis := pipelineL2.L1Origin.Number > dp.rollupCfg.Genesis.L1.Number
		afterChannelTimeout := pipelineL2.L1Origin.Number+dp.spec.ChannelTimeout(pipelineOrigin.Time) > l1Origin.Number
		if !(afterL2Genesis && afterL1Genesis && afterChannelTimeout) {
			break
		}
		parent, err := dp.l2.L2BlockRefByHash(ctx, pipelineL2.ParentHash)
		if err != nil {
			return eth.L1BlockRef{}, eth.SystemConfig{}, NewResetError(fmt.Errorf("failed to fetch L2 parent block %s: %w", pipelineL2.ParentID(), err))
		}
		pipelineL2 = parent
		pipelineOrigin, err = dp.l1Fetcher.L1BlockRefByHash(ctx, pipelineL2.L1Origin.Hash)
		if err != nil {
			return eth.L1BlockRef{}, eth.SystemConfig{}, NewTemporaryError(fmt.Errorf("failed to fetch the new L1 progress: origin: %s; err: %w", pipelineL2.L1Origin, err))
		}
	}

	sysCfg, err := dp.l2.SystemConfigByL2Hash(ctx, pipelineL2.Hash)
	if err != nil {
		return eth.L1BlockRef{}, eth.SystemConfig{}, NewTemporaryError(fmt.Errorf("failed to fetch L1 config of L2 block %s: %w", pipelineL2.ID(), err))
	}
	return pipelineOrigin, sysCfg, nil
}

// activate switches the multiplexed stages to the implementation of the given fork.
func (dp *DerivationPipeline) activate(fork rollup.ForkName) {
	dp.log.Info("transforming stages", "fork", fork)
	for _, stage := range dp.stages {
		if tf, ok := stage.(ForkTransformer); ok {
			tf.Transform(fork)
		}
	}
}

// Step tries to progress the pipeline by one unit of work.
// An error is returned when no attributes could be produced in this step.
// io.EOF means the pipeline ran out of L1 data, NotEnoughData means it should be stepped again.
func (dp *DerivationPipeline) Step(ctx context.Context, pendingSafeHead eth.L2BlockRef) (outAttrib *AttributesWithParent, outErr error) {
	if dp.state == PipelineNeedsReset {
		return nil, NewResetError(errors.New("derivation pipeline needs a reset before it can continue"))
	}
	defer func() {
		switch {
		case outAttrib != nil:
			dp.state = PipelineIdle
		case outErr == nil || errors.Is(outErr, NotEnoughData) || errors.Is(outErr, ErrTemporary):
			dp.state = PipelineStepping
		case outErr == io.EOF:
			dp.state = PipelineExhausted
		default:
			// reset and critical errors, and anything unclassified
			dp.state = PipelineNeedsReset
		}
		dp.metrics.SetDerivationIdle(dp.state == PipelineExhausted)
	}()

	// Any new L1 origin is noticed here, before the stages read from it.
	prevOrigin := dp.origin
	newOrigin := dp.attrib.Origin()
	if prevOrigin != newOrigin {
		for _, fork := range dp.rollupCfg.ActivatedForks(prevOrigin.Time, newOrigin.Time) {
			dp.activate(fork)
		}
		dp.origin = newOrigin
		dp.metrics.RecordL1Ref("l1_derived", newOrigin)
	}

	if attrib, err := dp.attrib.NextAttributes(ctx, pendingSafeHead); err == nil {
		return attrib, nil
	} else if err == io.EOF {
		// If every stage has returned io.EOF, try to advance the L1 Origin
		return nil, dp.traversal.AdvanceL1Block(ctx)
	} else {
		return nil, fmt.Errorf("derivation failed: %w", err)
	}
}

// ProducePayload steps the pipeline until it produces the attributes of the block after l2SafeHead.
// It returns io.EOF when the L1 chain is exhausted, and any temporary, reset or critical error as is.
// After a reset or critical error the pipeline only continues after a ResetSignal.
func (dp *DerivationPipeline) ProducePayload(ctx context.Context, l2SafeHead eth.L2BlockRef) (*AttributesWithParent, error) {
	for i := 0; i < maxStepsPerPayload; i++ {
		attrib, err := dp.Step(ctx, l2SafeHead)
		switch {
		case attrib != nil:
			dp.metrics.RecordL2Ref("l2_derived_parent", l2SafeHead)
			return attrib, nil
		case err == nil, errors.Is(err, NotEnoughData):
			continue
		case err == io.EOF:
			dp.log.Debug("derivation process went idle", "progress", dp.Origin())
			return nil, io.EOF
		default:
			return nil, err
		}
	}
	return nil, NewTemporaryError(errTooManySteps)
}

// DepositsOnlyAttributes replaces the last produced attributes with a deposits-only version,
// after the engine found them to be invalid. The current channel is flushed.
func (dp *DerivationPipeline) DepositsOnlyAttributes(parent eth.BlockID, derivedFrom eth.L1BlockRef) (*AttributesWithParent, error) {
	return dp.attrib.DepositsOnlyAttributes(parent, derivedFrom)
}
