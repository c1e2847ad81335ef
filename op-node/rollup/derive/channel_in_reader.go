package derive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// RawChannelProvider is the channel stage the reader pulls from.
type RawChannelProvider interface {
	ResettableStage
	Origin() eth.L1BlockRef
	NextRawChannel(ctx context.Context) ([]byte, error)
	FlushChannel()
}

// ChannelInReader reads a batch from the channel
// This does decompression and limits the max RLP size
// This is a pure function from the channel, but each channel (or channel fragment)
// must be tagged with an L1 inclusion block to be passed to the batch queue.
type ChannelInReader struct {
	log  log.Logger
	cfg  *rollup.Config
	spec *rollup.ChainSpec

	nextBatchFn func() (*BatchData, error)

	prev    RawChannelProvider
	metrics Metrics
}

var _ ResettableStage = (*ChannelInReader)(nil)

// NewChannelInReader creates a ChannelInReader, which should be Reset(origin) before use.
func NewChannelInReader(cfg *rollup.Config, log log.Logger, prev RawChannelProvider, metrics Metrics) *ChannelInReader {
	return &ChannelInReader{
		cfg:     cfg,
		spec:    rollup.NewChainSpec(cfg),
		log:     log,
		prev:    prev,
		metrics: metrics,
	}
}

func (cr *ChannelInReader) Origin() eth.L1BlockRef {
	return cr.prev.Origin()
}

// WriteChannel sets the channel data to read batches from.
func (cr *ChannelInReader) WriteChannel(data []byte) error {
	origin := cr.prev.Origin()
	f, err := BatchReader(bytes.NewBuffer(data), cr.spec.MaxRLPBytesPerChannel(origin.Time), cr.cfg.IsFjord(origin.Time))
	if err != nil {
		cr.log.Error("Error creating batch reader from channel data", "err", err)
		return err
	}
	cr.nextBatchFn = f
	cr.metrics.RecordChannelInputBytes(len(data))
	return nil
}

// NextChannel forces the next read to continue with the next channel,
// resetting any decoding/decompression state to a fresh start.
func (cr *ChannelInReader) NextChannel() {
	cr.nextBatchFn = nil
}

// NextBatch pulls out the next batch from the channel if it has it.
// It returns io.EOF when it cannot make any more progress.
// It returns NotEnoughData when a channel was finished or dropped and it needs to be called again.
func (cr *ChannelInReader) NextBatch(ctx context.Context) (Batch, error) {
	if cr.nextBatchFn == nil {
		if data, err := cr.prev.NextRawChannel(ctx); err == io.EOF {
			return nil, io.EOF
		} else if err != nil {
			return nil, err
		} else if err := cr.WriteChannel(data); err != nil {
			// the channel is unreadable as a whole, drop it
			return nil, NotEnoughData
		}
	}

	batchData, err := cr.nextBatchFn()
	if err == io.EOF {
		cr.NextChannel()
		return nil, NotEnoughData
	} else if err != nil {
		cr.log.Warn("failed to read batch from channel reader, skipping to next channel now", "err", err)
		cr.NextChannel()
		return nil, NotEnoughData
	}

	batch := batchWithMetadata{comprAlgo: batchData.ComprAlgo}
	switch typ := batchData.GetBatchType(); typ {
	case SingularBatchType:
		batch.Batch, err = GetSingularBatch(batchData)
		if err != nil {
			cr.log.Warn("dropping undecodable singular batch", "err", err)
			return nil, NotEnoughData
		}
		batch.LogContext(cr.log).Debug("decoded singular batch from channel", "stage_origin", cr.Origin())
		cr.metrics.RecordDerivedBatches("singular")
		return batch, nil
	case SpanBatchType:
		if origin := cr.Origin(); !cr.cfg.IsDelta(origin.Time) {
			// Check hard fork activation with the L1 inclusion block time instead of the L1 origin block time.
			// Therefore, even if the batch passed this rule, it can be dropped in the batch queue.
			// This is just for early dropping invalid batches as soon as possible.
			cr.log.Error("cannot accept span batch in L1 block before Delta", "l1_origin_time", origin.Time, "l1_origin_hash", origin.Hash)
			return nil, NewTemporaryError(fmt.Errorf("cannot accept span batch in L1 block %s at time %d", origin, origin.Time))
		}

		batch.Batch, err = DeriveSpanBatch(batchData, cr.cfg.BlockTime, cr.cfg.Genesis.L2Time, cr.cfg.L2ChainID)
		if err != nil {
			cr.log.Warn("dropping undecodable span batch", "err", err)
			return nil, NotEnoughData
		}
		batch.LogContext(cr.log).Debug("decoded span batch from channel", "stage_origin", cr.Origin())
		cr.metrics.RecordDerivedBatches("span")
		return batch, nil
	default:
		// error is bubbled up to user, but pipeline can skip the batch and continue after.
		return nil, NewTemporaryError(fmt.Errorf("unrecognized batch type: %d", typ))
	}
}

func (cr *ChannelInReader) Reset(ctx context.Context, _ eth.L1BlockRef, _ eth.SystemConfig) error {
	cr.nextBatchFn = nil
	return io.EOF
}

// FlushChannel flushes the prev channel stage and drops the batch reader of the current channel.
func (cr *ChannelInReader) FlushChannel() {
	cr.nextBatchFn = nil
	cr.prev.FlushChannel()
}
