package derive

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

func randomSpanBatch(t *testing.T, rng *rand.Rand, chainID *big.Int, genesisTime, blockTime uint64, blocks int) *SpanBatch {
	signer := types.NewLondonSigner(chainID)
	sb := NewSpanBatch(genesisTime, chainID)
	parent := testutils.RandomHash(rng)
	origin := testutils.RandomBlockRef(rng)
	origin.Number = 1000
	seq := uint64(0)
	for i := 0; i < blocks; i++ {
		if i > 0 && rng.Intn(3) == 0 {
			origin = testutils.NextRandomRef(rng, origin)
			seq = 0
		}
		var txs []hexutil.Bytes
		for j := rng.Intn(3); j > 0; j-- {
			data, err := testutils.RandomDynamicFeeTx(rng, signer).MarshalBinary()
			require.NoError(t, err)
			txs = append(txs, data)
		}
		require.NoError(t, sb.AppendSingularBatch(&SingularBatch{
			ParentHash:   parent,
			EpochNum:     rollup.Epoch(origin.Number),
			EpochHash:    origin.Hash,
			Timestamp:    genesisTime + blockTime*uint64(100+i),
			Transactions: txs,
		}, seq))
		seq++
	}
	return sb
}

func TestSpanBatchRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(0x5a5a))
	chainID := big.NewInt(901)
	for i := 0; i < 10; i++ {
		sb := randomSpanBatch(t, rng, chainID, 10, 2, 1+rng.Intn(8))

		raw, err := sb.ToRawSpanBatch()
		require.NoError(t, err)
		data, err := NewBatchData(raw).MarshalBinary()
		require.NoError(t, err)

		var decoded BatchData
		require.NoError(t, decoded.UnmarshalBinary(data))
		require.Equal(t, uint8(SpanBatchType), decoded.GetBatchType())

		got, err := DeriveSpanBatch(&decoded, 2, 10, chainID)
		require.NoError(t, err)
		require.Equal(t, sb.ParentCheck, got.ParentCheck)
		require.Equal(t, sb.L1OriginCheck, got.L1OriginCheck)
		require.Equal(t, sb.GetBlockCount(), got.GetBlockCount())
		for j := range sb.Batches {
			diff := cmp.Diff(sb.Batches[j], got.Batches[j], cmpopts.EquateEmpty())
			require.Empty(t, diff, "block %d", j)
		}
		require.Equal(t, sb.TxCount(), got.TxCount())
	}
}

func TestSpanBatchSingularBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	chainID := big.NewInt(901)
	sb := randomSpanBatch(t, rng, chainID, 10, 2, 6)

	var origins []eth.L1BlockRef
	for _, b := range sb.Batches {
		if len(origins) == 0 || origins[len(origins)-1].Number != uint64(b.EpochNum) {
			origins = append(origins, eth.L1BlockRef{Number: uint64(b.EpochNum), Hash: testutils.RandomHash(rng)})
		}
	}
	safeHead := eth.L2BlockRef{Time: sb.Batches[1].Timestamp}
	batches, err := sb.GetSingularBatches(origins, safeHead)
	require.NoError(t, err)
	require.Len(t, batches, len(sb.Batches)-2, "blocks up to the safe head are skipped")
	for i, b := range batches {
		el := sb.Batches[i+2]
		require.Equal(t, el.Timestamp, b.Timestamp)
		require.Equal(t, el.EpochNum, b.EpochNum)
		require.NotEqual(t, [32]byte{}, [32]byte(b.EpochHash))
	}

	_, err = sb.GetSingularBatches(origins[:0], eth.L2BlockRef{})
	require.Error(t, err, "missing L1 origins")
}

func TestSpanBatchInvalid(t *testing.T) {
	_, err := NewSpanBatch(0, big.NewInt(1)).ToRawSpanBatch()
	require.Error(t, err)

	empty := &RawSpanBatch{}
	_, err = empty.ToSpanBatch(2, 0, big.NewInt(1))
	require.ErrorIs(t, err, ErrEmptySpanBatch)

	underflow := &RawSpanBatch{
		spanBatchPayload: spanBatchPayload{
			blockCount:    2,
			originBits:    big.NewInt(2),
			blockTxCounts: []uint64{0, 0},
		},
	}
	_, err = underflow.ToSpanBatch(2, 0, big.NewInt(1))
	require.ErrorContains(t, err, "underflow")
}
