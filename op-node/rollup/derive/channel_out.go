package derive

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/klauspost/compress/zlib"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

var (
	ErrMaxFrameSizeTooSmall    = errors.New("maxSize is too small to fit the fixed frame overhead")
	ErrChannelOutAlreadyClosed = errors.New("channel-out already closed")
	ErrTooManyRLPBytes         = errors.New("batch would cause RLP bytes to go over limit")
)

// ChannelOut accumulates batches into a compressed channel and cuts it into frames.
// The zero value is not usable, use NewChannelOut.
type ChannelOut struct {
	id ChannelID
	// Frame ID of the next frame to emit. Increment after emitting
	frame uint64
	// rlpLength is the uncompressed size of the channel. Must be less than MaxRLPBytesPerChannel
	rlpLength int

	algo       CompressionAlgo
	compressed *bytes.Buffer
	compress   io.WriteCloser

	maxRLPBytesPerChannel uint64
	closed                bool
}

// NewChannelOut creates a channel with a random ID, compressing with the given algorithm.
// Brotli channels are only accepted by derivation after Fjord.
func NewChannelOut(algo CompressionAlgo, maxRLPBytesPerChannel uint64) (*ChannelOut, error) {
	c := &ChannelOut{
		algo:                  algo,
		compressed:            new(bytes.Buffer),
		maxRLPBytesPerChannel: maxRLPBytesPerChannel,
	}
	if _, err := rand.Read(c.id[:]); err != nil {
		return nil, err
	}
	switch {
	case algo == Zlib:
		zw, err := zlib.NewWriterLevel(c.compressed, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		c.compress = zw
	case algo.IsBrotli():
		c.compressed.WriteByte(ChannelVersionBrotli)
		c.compress = brotli.NewWriterLevel(c.compressed, GetBrotliLevel(algo))
	default:
		return nil, fmt.Errorf("unsupported compression algo: %q", algo)
	}
	return c, nil
}

func (co *ChannelOut) ID() ChannelID {
	return co.id
}

// InputBytes returns the uncompressed RLP size of the batches added so far.
func (co *ChannelOut) InputBytes() int {
	return co.rlpLength
}

// ReadyBytes returns the number of compressed bytes that can be cut into frames.
func (co *ChannelOut) ReadyBytes() int {
	return co.compressed.Len()
}

// AddBatch adds a batch to the channel. It returns an error if the channel is
// closed or the batch would push the channel over the RLP read limit.
func (co *ChannelOut) AddBatch(batch InnerBatchData) error {
	if co.closed {
		return ErrChannelOutAlreadyClosed
	}
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, NewBatchData(batch)); err != nil {
		return err
	}
	if co.rlpLength+buf.Len() > int(co.maxRLPBytesPerChannel) {
		return fmt.Errorf("could not add %d bytes to channel of %d bytes, max is %d. err: %w",
			buf.Len(), co.rlpLength, co.maxRLPBytesPerChannel, ErrTooManyRLPBytes)
	}
	co.rlpLength += buf.Len()
	_, err := co.compress.Write(buf.Bytes())
	return err
}

// AddBlock converts an L2 block into a singular batch and adds it to the channel.
func (co *ChannelOut) AddBlock(rollupCfg *rollup.Config, block *types.Block) (*L1BlockInfo, error) {
	batch, l1Info, err := BlockToSingularBatch(rollupCfg, block)
	if err != nil {
		return nil, err
	}
	return l1Info, co.AddBatch(batch)
}

// Close flushes the compressor. No more batches can be added afterwards.
func (co *ChannelOut) Close() error {
	if co.closed {
		return ErrChannelOutAlreadyClosed
	}
	co.closed = true
	return co.compress.Close()
}

// OutputFrame writes a frame to w with a given max size and returns the frame
// number.
// Use `ReadyBytes` and `Close` to inspect and finalize the ready buffer.
// Returns an error if the `maxSize` < FrameV0OverHeadSize.
// Returns io.EOF when the channel is closed & there are no more frames.
// Returns nil if there is still more buffered data.
// Returns an error if it ran into an error during processing.
func (co *ChannelOut) OutputFrame(w *bytes.Buffer, maxSize uint64) (uint16, error) {
	// Check that the maxSize is large enough for the frame overhead size.
	if maxSize < FrameV0OverHeadSize {
		return 0, ErrMaxFrameSizeTooSmall
	}

	f := createEmptyFrame(co.id, co.frame, co.ReadyBytes(), co.closed, maxSize)

	if _, err := io.ReadFull(co.compressed, f.Data); err != nil {
		return 0, err
	}

	if err := f.MarshalBinary(w); err != nil {
		return 0, err
	}

	co.frame += 1
	fn := f.FrameNumber
	if f.IsLast {
		return fn, io.EOF
	} else {
		return fn, nil
	}
}

// createEmptyFrame creates new empty Frame with given information. Frame data must be copied from ChannelOut.
func createEmptyFrame(id ChannelID, frame uint64, readyBytes int, closed bool, maxSize uint64) *Frame {
	f := Frame{
		ID:          id,
		FrameNumber: uint16(frame),
	}

	// Copy data from the local buffer into the frame data buffer
	maxDataSize := maxSize - FrameV0OverHeadSize
	if maxDataSize >= uint64(readyBytes) {
		maxDataSize = uint64(readyBytes)
		// If we are closed & will not spill past the current frame
		// mark it as the final frame of the channel.
		if closed {
			f.IsLast = true
		}
	}
	f.Data = make([]byte, maxDataSize)
	return &f
}

// BlockToSingularBatch transforms a block into a batch object that can easily be RLP encoded.
func BlockToSingularBatch(rollupCfg *rollup.Config, block *types.Block) (*SingularBatch, *L1BlockInfo, error) {
	if len(block.Transactions()) == 0 {
		return nil, nil, fmt.Errorf("block %v has no transactions", block.Hash())
	}

	opaqueTxs := make([]eth.Data, 0, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		if tx.Type() == types.DepositTxType {
			continue
		}
		otx, err := tx.MarshalBinary()
		if err != nil {
			return nil, nil, fmt.Errorf("could not encode tx %v in block %v: %w", i, tx.Hash(), err)
		}
		opaqueTxs = append(opaqueTxs, otx)
	}

	l1InfoTx := block.Transactions()[0]
	if l1InfoTx.Type() != types.DepositTxType {
		return nil, nil, ErrNotDepositTx
	}
	l1Info, err := L1BlockInfoFromBytes(rollupCfg, block.Time(), l1InfoTx.Data())
	if err != nil {
		return nil, l1Info, fmt.Errorf("could not parse the L1 Info deposit: %w", err)
	}

	return &SingularBatch{
		ParentHash:   block.ParentHash(),
		EpochNum:     rollup.Epoch(l1Info.Number),
		EpochHash:    l1Info.BlockHash,
		Timestamp:    block.Time(),
		Transactions: opaqueTxs,
	}, l1Info, nil
}
