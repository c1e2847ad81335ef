package derive

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mantlenetworkio/mantle-fp/op-node/metrics"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

type fakeRawChannels struct {
	origin   eth.L1BlockRef
	channels [][]byte
	flushed  int
}

func (f *fakeRawChannels) Reset(context.Context, eth.L1BlockRef, eth.SystemConfig) error {
	return io.EOF
}

func (f *fakeRawChannels) Origin() eth.L1BlockRef {
	return f.origin
}

func (f *fakeRawChannels) NextRawChannel(context.Context) ([]byte, error) {
	if len(f.channels) == 0 {
		return nil, io.EOF
	}
	next := f.channels[0]
	f.channels = f.channels[1:]
	return next, nil
}

func (f *fakeRawChannels) FlushChannel() {
	f.flushed++
}

// zlibChannel compresses the RLP encoding of the given batches.
func zlibChannel(t *testing.T, batches ...InnerBatchData) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	for _, b := range batches {
		require.NoError(t, rlp.Encode(zw, NewBatchData(b)))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// readBatches reads batches from the reader until io.EOF.
func readBatches(t *testing.T, cr *ChannelInReader) []Batch {
	var out []Batch
	for i := 0; i < 100; i++ {
		b, err := cr.NextBatch(context.Background())
		if err == io.EOF {
			return out
		} else if err == NotEnoughData {
			continue
		}
		require.NoError(t, err)
		out = append(out, b)
	}
	t.Fatal("reader did not run out of data")
	return nil
}

func TestBatchReaderLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	batch := &SingularBatch{Timestamp: 1, Transactions: []hexutil.Bytes{testutils.RandomData(rng, 300)}}
	data := zlibChannel(t, batch)

	next, err := BatchReader(bytes.NewReader(data), 10_000, false)
	require.NoError(t, err)
	bd, err := next()
	require.NoError(t, err)
	require.Equal(t, uint8(SingularBatchType), bd.GetBatchType())
	require.Equal(t, Zlib, bd.ComprAlgo)
	_, err = next()
	require.ErrorIs(t, err, io.EOF)

	next, err = BatchReader(bytes.NewReader(data), 100, false)
	require.NoError(t, err)
	_, err = next()
	require.ErrorIs(t, err, ErrBatchDecompression)
}

func TestBatchReaderCompression(t *testing.T) {
	_, err := BatchReader(bytes.NewReader([]byte{0x42, 0x00}), 100, true)
	require.ErrorContains(t, err, "cannot distinguish")

	_, err = BatchReader(bytes.NewReader([]byte{ChannelVersionBrotli, 0x00}), 100, false)
	require.ErrorContains(t, err, "before Fjord")

	co, err := NewChannelOut(Brotli10, 10_000)
	require.NoError(t, err)
	require.NoError(t, co.AddBatch(&SingularBatch{Timestamp: 7}))
	require.NoError(t, co.Close())
	next, err := BatchReader(bytes.NewReader(co.compressed.Bytes()), 10_000, true)
	require.NoError(t, err)
	bd, err := next()
	require.NoError(t, err)
	require.Equal(t, Brotli, bd.ComprAlgo)
	b, err := GetSingularBatch(bd)
	require.NoError(t, err)
	require.Equal(t, uint64(7), b.Timestamp)
}

func TestChannelInReader(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	zero := uint64(0)
	cfg := &rollup.Config{BlockTime: 2, L2ChainID: big.NewInt(901), DeltaTime: &zero}

	first := &SingularBatch{Timestamp: 12, Transactions: []hexutil.Bytes{testutils.RandomData(rng, 20)}}
	second := &SingularBatch{Timestamp: 14, Transactions: []hexutil.Bytes{}}
	span := randomSpanBatch(t, rng, cfg.L2ChainID, 0, 2, 3)
	rawSpan, err := span.ToRawSpanBatch()
	require.NoError(t, err)

	prev := &fakeRawChannels{
		origin: eth.L1BlockRef{Number: 1, Time: 10},
		channels: [][]byte{
			{0x42, 0x42}, // unreadable channel, dropped as a whole
			zlibChannel(t, first, second),
			zlibChannel(t, rawSpan),
		},
	}
	cr := NewChannelInReader(cfg, testlog.Logger(t, log.LevelError), prev, metrics.NoopMetrics)
	batches := readBatches(t, cr)
	require.Len(t, batches, 3)

	b0, ok := batches[0].AsSingularBatch()
	require.True(t, ok)
	require.Equal(t, first, b0)
	b1, ok := batches[1].AsSingularBatch()
	require.True(t, ok)
	require.Equal(t, second, b1)
	sb, ok := batches[2].AsSpanBatch()
	require.True(t, ok)
	require.Equal(t, span.GetBlockCount(), sb.GetBlockCount())

	cr.FlushChannel()
	require.Equal(t, 1, prev.flushed)
}

func TestChannelInReaderSpanBeforeDelta(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := &rollup.Config{BlockTime: 2, L2ChainID: big.NewInt(901)}
	rawSpan, err := randomSpanBatch(t, rng, cfg.L2ChainID, 0, 2, 2).ToRawSpanBatch()
	require.NoError(t, err)

	prev := &fakeRawChannels{channels: [][]byte{zlibChannel(t, rawSpan)}}
	cr := NewChannelInReader(cfg, testlog.Logger(t, log.LevelError), prev, metrics.NoopMetrics)
	_, err = cr.NextBatch(context.Background())
	require.ErrorIs(t, err, ErrTemporary)
}

func TestChannelInReaderOversizedChannel(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	cfg := &rollup.Config{BlockTime: 2, L2ChainID: big.NewInt(901)}
	// a single batch that decompresses past the pre-Fjord channel read limit
	oversized := &SingularBatch{Transactions: []hexutil.Bytes{make([]byte, 10_000_001)}}
	small := &SingularBatch{Timestamp: 2, Transactions: []hexutil.Bytes{testutils.RandomData(rng, 8)}}

	prev := &fakeRawChannels{channels: [][]byte{zlibChannel(t, oversized), zlibChannel(t, small)}}
	cr := NewChannelInReader(cfg, testlog.Logger(t, log.LevelError), prev, metrics.NoopMetrics)

	_, err := cr.NextBatch(context.Background())
	require.ErrorIs(t, err, NotEnoughData, "oversized channel is dropped")
	batches := readBatches(t, cr)
	require.Len(t, batches, 1)
	got, ok := batches[0].AsSingularBatch()
	require.True(t, ok)
	require.Equal(t, small, got)
}
