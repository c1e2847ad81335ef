package derive

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

type mockAttributesBuilder struct {
	mock.Mock
}

func (m *mockAttributesBuilder) PreparePayloadAttributes(_ context.Context, l2Parent eth.L2BlockRef, epoch eth.BlockID) (*eth.PayloadAttributes, error) {
	out := m.Called(l2Parent, epoch)
	attrs, _ := out.Get(0).(*eth.PayloadAttributes)
	return attrs, out.Error(1)
}

// fakeSingularBatches hands out its batches in order, each one concluding, then io.EOF.
type fakeSingularBatches struct {
	origin  eth.L1BlockRef
	batches []*SingularBatch
	flushed int
}

func (f *fakeSingularBatches) Origin() eth.L1BlockRef {
	return f.origin
}

func (f *fakeSingularBatches) Reset(context.Context, eth.L1BlockRef, eth.SystemConfig) error {
	return io.EOF
}

func (f *fakeSingularBatches) FlushChannel() {
	f.flushed++
}

func (f *fakeSingularBatches) NextBatch(context.Context, eth.L2BlockRef) (*SingularBatch, bool, error) {
	if len(f.batches) == 0 {
		return nil, false, io.EOF
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, true, nil
}

func TestAttributesQueue(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	cfg := &rollup.Config{BlockTime: 2}
	cfg.ActivateAtGenesis(rollup.Holocene)
	origin := testutils.RandomBlockRef(rng)
	safeHead := testutils.RandomL2BlockRef(rng)
	safeHead.L1Origin = origin.ID()

	deposit := hexutil.Bytes{types.DepositTxType, 0x01}
	userTx := hexutil.Bytes{types.DynamicFeeTxType, 0x02}
	batch := &SingularBatch{
		ParentHash:   safeHead.Hash,
		EpochNum:     rollup.Epoch(origin.Number),
		EpochHash:    origin.Hash,
		Timestamp:    safeHead.Time + cfg.BlockTime,
		Transactions: []hexutil.Bytes{userTx},
	}

	newQueue := func(t *testing.T, batches ...*SingularBatch) (*AttributesQueue, *fakeSingularBatches, *mockAttributesBuilder) {
		prev := &fakeSingularBatches{origin: origin, batches: batches}
		builder := &mockAttributesBuilder{}
		builder.On("PreparePayloadAttributes", safeHead, batch.Epoch()).Return(&eth.PayloadAttributes{
			Timestamp:    hexutil.Uint64(batch.Timestamp),
			Transactions: []eth.Data{deposit},
		}, nil)
		return NewAttributesQueue(testlog.Logger(t, log.LevelError), cfg, builder, prev), prev, builder
	}

	t.Run("BatchToAttributes", func(t *testing.T) {
		aq, _, builder := newQueue(t, batch)
		attrs, err := aq.NextAttributes(context.Background(), safeHead)
		require.NoError(t, err)
		builder.AssertExpectations(t)
		require.True(t, attrs.Attributes.NoTxPool)
		require.Equal(t, []eth.Data{deposit, userTx}, attrs.Attributes.Transactions)
		require.Equal(t, safeHead, attrs.Parent)
		require.Equal(t, origin, attrs.DerivedFrom)
		require.True(t, attrs.Concluding)
		require.True(t, attrs.IsDerived())

		_, err = aq.NextAttributes(context.Background(), safeHead)
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("DepositsOnlyAfterInvalidBatch", func(t *testing.T) {
		aq, prev, _ := newQueue(t, batch)
		attrs, err := aq.NextAttributes(context.Background(), safeHead)
		require.NoError(t, err)

		depositsOnly, err := aq.DepositsOnlyAttributes(safeHead.ID(), origin)
		require.NoError(t, err)
		require.Equal(t, []eth.Data{deposit}, depositsOnly.Attributes.Transactions)
		require.True(t, depositsOnly.Attributes.IsDepositsOnly())
		require.Equal(t, attrs.Parent, depositsOnly.Parent)
		require.Equal(t, attrs.DerivedFrom, depositsOnly.DerivedFrom)
		require.Equal(t, 1, prev.flushed, "the rest of the channel is flushed")
		// the original attributes are left untouched
		require.Len(t, attrs.Attributes.Transactions, 2)
	})

	t.Run("DepositsOnlyChecks", func(t *testing.T) {
		aq, _, _ := newQueue(t, batch)
		_, err := aq.DepositsOnlyAttributes(safeHead.ID(), origin)
		require.ErrorContains(t, err, "no attributes generated yet")

		_, err = aq.NextAttributes(context.Background(), safeHead)
		require.NoError(t, err)
		_, err = aq.DepositsOnlyAttributes(safeHead.ID(), testutils.NextRandomRef(rng, origin))
		require.ErrorContains(t, err, "unexpected derivation origin")
		_, err = aq.DepositsOnlyAttributes(eth.BlockID{Hash: common.Hash{0xaa}, Number: safeHead.Number}, origin)
		require.ErrorContains(t, err, "unexpected parent")
	})

	t.Run("BadParentHash", func(t *testing.T) {
		aq, _, _ := newQueue(t, batch)
		other := safeHead
		other.Hash = common.Hash{0xbb}
		_, err := aq.NextAttributes(context.Background(), other)
		require.ErrorIs(t, err, ErrReset)

		// the batch stays buffered until the stage is reset or flushed
		aq.FlushChannel()
		_, err = aq.NextAttributes(context.Background(), safeHead)
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("BuilderError", func(t *testing.T) {
		prev := &fakeSingularBatches{origin: origin, batches: []*SingularBatch{batch}}
		builder := &mockAttributesBuilder{}
		builder.On("PreparePayloadAttributes", safeHead, batch.Epoch()).Return(nil, NewTemporaryError(io.ErrUnexpectedEOF)).Once()
		aq := NewAttributesQueue(testlog.Logger(t, log.LevelError), cfg, builder, prev)
		_, err := aq.NextAttributes(context.Background(), safeHead)
		require.ErrorIs(t, err, ErrTemporary)

		// retried with the buffered batch
		builder.On("PreparePayloadAttributes", safeHead, batch.Epoch()).Return(&eth.PayloadAttributes{Transactions: []eth.Data{deposit}}, nil).Once()
		attrs, err := aq.NextAttributes(context.Background(), safeHead)
		require.NoError(t, err)
		require.Len(t, attrs.Attributes.Transactions, 2)
	})
}
