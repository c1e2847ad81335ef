package derive

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

type ChannelFlusher interface {
	FlushChannel()
}

type SingularBatchProvider interface {
	ResettableStage
	ChannelFlusher
	Origin() eth.L1BlockRef
	NextBatch(context.Context, eth.L2BlockRef) (*SingularBatch, bool, error)
}

// BatchMux multiplexes between the BatchQueue (pre-Holocene) and the BatchStage (Holocene).
// The variant is picked on Reset from the L1 origin, or switched explicitly with Transform.
type BatchMux struct {
	log  log.Logger
	cfg  *rollup.Config
	prev NextBatchProvider
	l2   SafeBlockFetcher

	kind  stageKind
	queue *BatchQueue
	stage *BatchStage
}

var _ SingularBatchProvider = (*BatchMux)(nil)

// NewBatchMux returns an uninitialized BatchMux. Reset has to be called before
// calling other methods, to activate the right stage for a given L1 origin.
func NewBatchMux(lgr log.Logger, cfg *rollup.Config, prev NextBatchProvider, l2 SafeBlockFetcher) *BatchMux {
	return &BatchMux{log: lgr, cfg: cfg, prev: prev, l2: l2}
}

func (b *BatchMux) Reset(ctx context.Context, base eth.L1BlockRef, sysCfg eth.SystemConfig) error {
	if b.cfg.IsHolocene(base.Time) {
		if b.kind != stageHolocene {
			b.log.Info("BatchMux: activating Holocene stage during reset", "origin", base)
			b.kind, b.queue, b.stage = stageHolocene, nil, NewBatchStage(b.log, b.cfg, b.prev, b.l2)
		}
		return b.stage.Reset(ctx, base, sysCfg)
	}
	if b.kind != stagePreHolocene {
		b.log.Info("BatchMux: activating pre-Holocene stage during reset", "origin", base)
		b.kind, b.queue, b.stage = stagePreHolocene, NewBatchQueue(b.log, b.cfg, b.prev, b.l2), nil
	}
	return b.queue.Reset(ctx, base, sysCfg)
}

func (b *BatchMux) Transform(f rollup.ForkName) {
	switch f {
	case rollup.Holocene:
		b.transformHolocene()
	}
}

func (b *BatchMux) transformHolocene() {
	switch b.kind {
	case stagePreHolocene:
		b.log.Info("BatchMux: transforming to Holocene stage")
		bs := NewBatchStage(b.log, b.cfg, b.prev, b.l2)
		// Queued batches are dropped at Holocene activation, but the first Holocene channel
		// still needs the L1 blocks collected before it.
		bs.l1Blocks = slices.Clone(b.queue.l1Blocks)
		bs.origin = b.queue.origin
		b.kind, b.queue, b.stage = stageHolocene, nil, bs
	case stageHolocene:
		// A reset to the activation block keeps the previous origin, so Transform is not reached twice.
		panic(fmt.Sprintf("Holocene BatchStage already active, old origin: %v", b.stage.Origin()))
	default:
		panic(fmt.Sprintf("batch stage transformed before reset: %v", b.kind))
	}
}

func (b *BatchMux) Origin() eth.L1BlockRef {
	return b.prev.Origin()
}

func (b *BatchMux) NextBatch(ctx context.Context, parent eth.L2BlockRef) (*SingularBatch, bool, error) {
	switch b.kind {
	case stagePreHolocene:
		return b.queue.NextBatch(ctx, parent)
	case stageHolocene:
		return b.stage.NextBatch(ctx, parent)
	default:
		return nil, false, NewResetError(fmt.Errorf("batch stage used before reset"))
	}
}

func (b *BatchMux) FlushChannel() {
	switch b.kind {
	case stagePreHolocene:
		b.queue.FlushChannel()
	case stageHolocene:
		b.stage.FlushChannel()
	}
}
