package derive

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

func TestBatchStagePastAndDrop(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	l1 := l1Chain(rng, 20, 22)
	safeHead := eth.L2BlockRef{Hash: testutils.RandomHash(rng), Number: 5, Time: 20, L1Origin: l1[0].ID()}

	epochA := func(parent common.Hash, timestamp uint64) *SingularBatch {
		return &SingularBatch{ParentHash: parent, EpochNum: rollup.Epoch(l1[0].Number), EpochHash: l1[0].Hash, Timestamp: timestamp}
	}
	past := epochA(safeHead.Hash, 20)
	future := epochA(safeHead.Hash, 24)
	wrongParent := epochA(common.Hash{0xaa}, 22)
	valid := epochA(safeHead.Hash, 22)

	input := &fakeBatchQueueInput{batches: []Batch{past, future, wrongParent, valid}, origin: l1[1]}
	bs := NewBatchStage(testlog.Logger(t, log.LevelError), batchStageConfig(true), input, notFoundL2{})
	require.ErrorIs(t, bs.Reset(context.Background(), l1[0], eth.SystemConfig{}), io.EOF)

	// a past batch is skipped without touching the channel
	_, _, err := bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, NotEnoughData)
	require.Zero(t, input.flushed)

	// future batches are not buffered anymore: they invalidate the rest of their channel
	_, _, err = bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, NotEnoughData)
	require.Equal(t, 1, input.flushed)

	_, _, err = bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, NotEnoughData)
	require.Equal(t, 2, input.flushed)

	b, last, err := bs.NextBatch(context.Background(), safeHead)
	require.NoError(t, err)
	require.True(t, last)
	require.Equal(t, valid, b)

	// sequencing window of epoch 10 is still open at origin 11
	_, _, err = bs.NextBatch(context.Background(), nextL2(rng, safeHead, l1[0]))
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 2, input.flushed)
}

func TestBatchStageDrainsWhenOriginNotAhead(t *testing.T) {
	rng := rand.New(rand.NewSource(4321))
	l1 := l1Chain(rng, 20, 22)
	safeHead := eth.L2BlockRef{Hash: testutils.RandomHash(rng), Number: 5, Time: 20, L1Origin: l1[0].ID()}
	batch := &SingularBatch{ParentHash: safeHead.Hash, EpochNum: rollup.Epoch(l1[0].Number), EpochHash: l1[0].Hash, Timestamp: 22}

	input := &fakeBatchQueueInput{batches: []Batch{batch}, origin: l1[0]}
	bs := NewBatchStage(testlog.Logger(t, log.LevelError), batchStageConfig(true), input, notFoundL2{})
	require.ErrorIs(t, bs.Reset(context.Background(), l1[0], eth.SystemConfig{}), io.EOF)

	// batches read from the safe head's own origin can only be past batches
	_, _, err := bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, NotEnoughData)
	_, _, err = bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, input.i)
}

func TestBatchStageEmptyBatchAfterSeqWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(5678))
	l1 := l1Chain(rng, 20, 24, 28)
	safeHead := eth.L2BlockRef{Hash: testutils.RandomHash(rng), Number: 5, Time: 20, L1Origin: l1[0].ID()}

	input := &fakeBatchQueueInput{origin: l1[0]}
	bs := NewBatchStage(testlog.Logger(t, log.LevelError), batchStageConfig(true), input, notFoundL2{})
	require.ErrorIs(t, bs.Reset(context.Background(), l1[0], eth.SystemConfig{}), io.EOF)
	// origins are appended one L1 block at a time
	input.origin = l1[1]
	_, _, err := bs.NextBatch(context.Background(), safeHead)
	require.ErrorIs(t, err, io.EOF)

	input.origin = l1[2]
	b, last, err := bs.NextBatch(context.Background(), safeHead)
	require.NoError(t, err)
	require.True(t, last)
	require.Equal(t, &SingularBatch{
		ParentHash: safeHead.Hash,
		EpochNum:   rollup.Epoch(l1[0].Number),
		EpochHash:  l1[0].Hash,
		Timestamp:  22,
	}, b)
}

func TestBatchStageFlushChannelDropsSpan(t *testing.T) {
	input := &fakeBatchQueueInput{}
	bs := NewBatchStage(testlog.Logger(t, log.LevelError), batchStageConfig(true), input, notFoundL2{})
	bs.nextSpan = []*SingularBatch{{Timestamp: 22}, {Timestamp: 24}}
	bs.FlushChannel()
	require.Empty(t, bs.nextSpan)
	require.Equal(t, 1, input.flushed)
}
