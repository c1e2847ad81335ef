package derive

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

func TestL1TraversalAdvance(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	a := testutils.RandomBlockRef(rng)
	b := testutils.NextRandomRef(rng, a)
	sysCfgAddr := testutils.RandomAddress(rng)
	cfg := &rollup.Config{L1SystemConfigAddress: sysCfgAddr}
	ctx := context.Background()
	newBatcher := testutils.RandomAddress(rng)
	receipts := types.Receipts{{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{configUpdateLog(t, sysCfgAddr, SystemConfigUpdateBatcher, common.BytesToHash(newBatcher.Bytes()))},
	}}

	l1F := &testutils.MockL1Source{}
	tr := NewL1Traversal(testlog.Logger(t, log.LevelError), cfg, l1F)
	l1Cfg := eth.SystemConfig{BatcherAddr: testutils.RandomAddress(rng)}
	require.ErrorIs(t, tr.Reset(ctx, a, l1Cfg), io.EOF)
	require.Equal(t, a, tr.Origin())
	require.Equal(t, l1Cfg, tr.SystemConfig())

	// the base block is consumed by the reset
	_, err := tr.NextL1Block(ctx)
	require.ErrorIs(t, err, io.EOF)

	l1F.ExpectL1BlockRefByNumber(b.Number, b, nil)
	l1F.ExpectFetchReceipts(b.Hash, nil, receipts, nil)
	require.NoError(t, tr.AdvanceL1Block(ctx))
	require.Equal(t, b, tr.Origin())
	require.Equal(t, newBatcher, tr.SystemConfig().BatcherAddr)

	ref, err := tr.NextL1Block(ctx)
	require.NoError(t, err)
	require.Equal(t, b, ref)
	_, err = tr.NextL1Block(ctx)
	require.ErrorIs(t, err, io.EOF)

	l1F.ExpectL1BlockRefByNumber(b.Number+1, eth.L1BlockRef{}, ethereum.NotFound)
	require.ErrorIs(t, tr.AdvanceL1Block(ctx), io.EOF)
	require.Equal(t, b, tr.Origin())
	l1F.AssertExpectations(t)
}

func TestL1TraversalAdvanceErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(4321))
	a := testutils.RandomBlockRef(rng)
	b := testutils.NextRandomRef(rng, a)
	sysCfgAddr := testutils.RandomAddress(rng)
	cfg := &rollup.Config{L1SystemConfigAddress: sysCfgAddr}
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		expect func(l1F *testutils.MockL1Source)
		err    error
	}{
		{
			name: "fetch error",
			expect: func(l1F *testutils.MockL1Source) {
				l1F.ExpectL1BlockRefByNumber(b.Number, eth.L1BlockRef{}, errors.New("boom"))
			},
			err: ErrTemporary,
		},
		{
			name: "reorg",
			expect: func(l1F *testutils.MockL1Source) {
				other := b
				other.ParentHash = testutils.RandomHash(rng)
				l1F.ExpectL1BlockRefByNumber(b.Number, other, nil)
			},
			err: ErrReset,
		},
		{
			name: "receipts error",
			expect: func(l1F *testutils.MockL1Source) {
				l1F.ExpectL1BlockRefByNumber(b.Number, b, nil)
				l1F.ExpectFetchReceipts(b.Hash, nil, nil, errors.New("boom"))
			},
			err: ErrTemporary,
		},
		{
			name: "malformed config update",
			expect: func(l1F *testutils.MockL1Source) {
				l1F.ExpectL1BlockRefByNumber(b.Number, b, nil)
				l1F.ExpectFetchReceipts(b.Hash, nil, types.Receipts{{
					Status: types.ReceiptStatusSuccessful,
					Logs:   []*types.Log{configUpdateLog(t, sysCfgAddr, SystemConfigUpdateGasLimit)},
				}}, nil)
			},
			err: ErrCritical,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l1F := &testutils.MockL1Source{}
			tr := NewL1Traversal(testlog.Logger(t, log.LevelError), cfg, l1F)
			require.ErrorIs(t, tr.Reset(ctx, a, eth.SystemConfig{}), io.EOF)
			tc.expect(l1F)
			require.ErrorIs(t, tr.AdvanceL1Block(ctx), tc.err)
			require.Equal(t, a, tr.Origin(), "origin stays on failure")
			l1F.AssertExpectations(t)
		})
	}
}
