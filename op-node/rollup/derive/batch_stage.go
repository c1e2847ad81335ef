package derive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// BatchStage replaces the BatchQueue since Holocene. Batches must arrive in order, so nothing is
// buffered: every batch is either applied, skipped as past, or dropped together with its channel.
type BatchStage struct {
	baseBatchStage
}

var _ SingularBatchProvider = (*BatchStage)(nil)

func NewBatchStage(log log.Logger, cfg *rollup.Config, prev NextBatchProvider, l2 SafeBlockFetcher) *BatchStage {
	return &BatchStage{baseBatchStage: newBaseBatchStage(log, cfg, prev, l2)}
}

func (bs *BatchStage) Reset(_ context.Context, base eth.L1BlockRef, _ eth.SystemConfig) error {
	bs.reset(base)
	return io.EOF
}

func (bs *BatchStage) FlushChannel() {
	bs.nextSpan = bs.nextSpan[:0]
	bs.prev.FlushChannel()
}

func (bs *BatchStage) NextBatch(ctx context.Context, parent eth.L2BlockRef) (*SingularBatch, bool, error) {
	// with Holocene, we can always update (and prune) the origins because we don't backwards-invalidate.
	bs.updateOrigins(parent)

	// If origin behind (or at parent), we drain previous stage(s), and then return.
	// A channel from the parent's L1 origin block can only contain past batches.
	if bs.originBehind(parent) || parent.L1Origin.Number == bs.origin.Number {
		if _, err := bs.prev.NextBatch(ctx); err != nil {
			// includes io.EOF and NotEnoughData
			return nil, false, err
		}
		// continue draining
		return nil, false, NotEnoughData
	}

	if len(bs.l1Blocks) < 2 {
		// By now the L1 origin of the safe head and the following L1 block must be buffered.
		return nil, false, NewCriticalError(fmt.Errorf(
			"unexpected low buffered origins count, origin: %s, parent: %s", bs.origin.ID(), parent.ID()))
	}

	// The epoch can be one block ahead of the safe head after empty batches advanced it.
	if epoch := bs.l1Blocks[0]; parent.L1Origin != epoch.ID() && parent.L1Origin.Number != epoch.Number-1 {
		return nil, false, NewResetError(fmt.Errorf("buffered L1 chain epoch %s in batch queue does not match safe head origin %s", epoch, parent.L1Origin))
	}

	batch, err := bs.nextSingularBatchCandidate(ctx, parent)
	if err == io.EOF {
		// Empty batches are only considered once the span cache and previous stages are drained.
		empty, err := bs.deriveNextEmptyBatch(ctx, true, parent)
		// An empty batch always advances the safe head.
		return empty, true, err
	} else if err != nil {
		return nil, false, err
	}

	validity := checkSingularBatch(bs.config, bs.Log(), bs.l1Blocks, parent, batch, bs.origin)
	switch validity {
	case BatchAccept:
		batch.LogContext(bs.Log()).Debug("Found next singular batch")
		return batch, len(bs.nextSpan) == 0, nil
	case BatchPast:
		batch.LogContext(bs.Log()).Warn("Dropping past singular batch")
		// read in the next batch until we're through all past batches
		return nil, false, NotEnoughData
	case BatchDrop:
		batch.LogContext(bs.Log()).Warn("Dropping invalid singular batch, flushing channel")
		bs.FlushChannel()
		// previous stages are drained before empty batch derivation kicks in
		return nil, false, NotEnoughData
	case BatchUndecided: // l2 fetcher error, try again
		return nil, false, NotEnoughData
	case BatchFuture:
		return nil, false, NewCriticalError(fmt.Errorf("impossible batch validity: %v", validity))
	default:
		return nil, false, NewCriticalError(fmt.Errorf("unknown batch validity type: %d", validity))
	}
}

func (bs *BatchStage) nextSingularBatchCandidate(ctx context.Context, parent eth.L2BlockRef) (*SingularBatch, error) {
	// First check for next span-derived batch
	if nextBatch, _ := bs.nextFromSpanBatch(parent); nextBatch != nil {
		return nextBatch, nil
	}

	// A singular batch is forwarded as the candidate.
	// A span batch is checked first and then forwarded as its first singular batch.
	batch, err := bs.prev.NextBatch(ctx)
	if err != nil { // includes io.EOF
		return nil, err
	}
	switch typ := batch.GetBatchType(); typ {
	case SingularBatchType:
		singularBatch, ok := batch.AsSingularBatch()
		if !ok {
			return nil, NewCriticalError(errors.New("failed type assertion to SingularBatch"))
		}
		return singularBatch, nil
	case SpanBatchType:
		spanBatch, ok := batch.AsSpanBatch()
		if !ok {
			return nil, NewCriticalError(errors.New("failed type assertion to SpanBatch"))
		}

		validity, _ := checkSpanBatchPrefix(ctx, bs.config, bs.Log(), bs.l1Blocks, parent, spanBatch, bs.origin, bs.l2)
		switch validity {
		case BatchAccept:
			spanBatch.LogContext(bs.Log()).Info("Found next valid span batch")
		case BatchPast:
			spanBatch.LogContext(bs.Log()).Warn("Dropping past span batch")
			return nil, NotEnoughData
		case BatchDrop:
			spanBatch.LogContext(bs.Log()).Warn("Dropping invalid span batch, flushing channel")
			bs.FlushChannel()
			return nil, NotEnoughData
		case BatchUndecided: // l2 fetcher error, try again
			return nil, NotEnoughData
		default:
			return nil, NewCriticalError(fmt.Errorf("impossible span batch validity: %v", validity))
		}

		singularBatches, err := spanBatch.GetSingularBatches(bs.l1Blocks, parent)
		if err != nil {
			return nil, NewCriticalError(err)
		}
		bs.nextSpan = singularBatches
		// span-batches are non-empty, so the below pop is safe.
		return bs.popNextBatch(parent), nil
	default:
		return nil, NewCriticalError(fmt.Errorf("unrecognized batch type: %d", typ))
	}
}
