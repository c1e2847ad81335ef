package derive

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

func randomDeposit(rng *rand.Rand, blockHash common.Hash, logIndex uint) *types.DepositTx {
	dep := &types.DepositTx{
		SourceHash: (&UserDepositSource{L1BlockHash: blockHash, LogIndex: uint64(logIndex)}).SourceHash(),
		From:       testutils.RandomAddress(rng),
		To:         testutils.RandomTo(rng),
		Value:      testutils.RandomETH(rng, 200),
		Gas:        rng.Uint64(),
		Data:       testutils.RandomData(rng, rng.Intn(100)),
	}
	if testutils.RandomBool(rng) {
		dep.Mint = testutils.RandomETH(rng, 200)
		if dep.Mint.Sign() == 0 {
			dep.Mint = nil
		}
	}
	return dep
}

func TestDepositLogEventRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	depositContract := testutils.RandomAddress(rng)
	for i := 0; i < 50; i++ {
		blockHash := testutils.RandomHash(rng)
		logIndex := uint(rng.Intn(100))
		dep := randomDeposit(rng, blockHash, logIndex)

		ev, err := MarshalDepositLogEvent(depositContract, dep)
		require.NoError(t, err)
		require.Zero(t, len(ev.Data)%32)
		ev.BlockHash = blockHash
		ev.Index = logIndex

		got, err := UnmarshalDepositLogEvent(ev)
		require.NoError(t, err)
		require.Equal(t, dep.SourceHash, got.SourceHash)
		require.Equal(t, dep.From, got.From)
		require.Equal(t, dep.To, got.To)
		require.Equal(t, 0, dep.Value.Cmp(got.Value))
		if dep.Mint == nil {
			require.Nil(t, got.Mint)
		} else {
			require.Equal(t, 0, dep.Mint.Cmp(got.Mint))
		}
		require.Equal(t, dep.Gas, got.Gas)
		require.Equal(t, []byte(dep.Data), []byte(got.Data))
		require.False(t, got.IsSystemTransaction)
	}
}

func TestUnmarshalDepositLogEventInvalid(t *testing.T) {
	rng := rand.New(rand.NewSource(4321))
	ev, err := MarshalDepositLogEvent(testutils.RandomAddress(rng), randomDeposit(rng, common.Hash{}, 0))
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		mod  func(ev *types.Log)
	}{
		{"missing topic", func(ev *types.Log) { ev.Topics = ev.Topics[:3] }},
		{"wrong selector", func(ev *types.Log) { ev.Topics[0] = common.Hash{1} }},
		{"unknown version", func(ev *types.Log) { ev.Topics[3] = common.Hash{31: 1} }},
		{"short data", func(ev *types.Log) { ev.Data = ev.Data[:32] }},
		{"unpadded data", func(ev *types.Log) { ev.Data = ev.Data[:len(ev.Data)-1] }},
		{"bad offset", func(ev *types.Log) { ev.Data[31] = 0x40 }},
		{"excess padding", func(ev *types.Log) { ev.Data = append(ev.Data, make([]byte, 32)...) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cp := *ev
			cp.Topics = append([]common.Hash(nil), ev.Topics...)
			cp.Data = append([]byte(nil), ev.Data...)
			tc.mod(&cp)
			_, err := UnmarshalDepositLogEvent(&cp)
			require.Error(t, err)
		})
	}
}

func TestDeriveDeposits(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	depositContract := testutils.RandomAddress(rng)
	blockHash := testutils.RandomHash(rng)

	var expected []*types.DepositTx
	mkLog := func(index uint, addr common.Address, keep bool) *types.Log {
		dep := randomDeposit(rng, blockHash, index)
		ev, err := MarshalDepositLogEvent(addr, dep)
		require.NoError(t, err)
		ev.BlockHash = blockHash
		ev.Index = index
		if keep {
			expected = append(expected, dep)
		}
		return ev
	}
	receipts := []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{mkLog(0, depositContract, true), mkLog(1, testutils.RandomAddress(rng), false)}},
		{Status: types.ReceiptStatusFailed, Logs: []*types.Log{mkLog(2, depositContract, false)}},
		{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{mkLog(3, depositContract, true)}},
	}

	txs, err := DeriveDeposits(receipts, depositContract)
	require.NoError(t, err)
	require.Len(t, txs, len(expected))
	for i, data := range txs {
		var tx types.Transaction
		require.NoError(t, tx.UnmarshalBinary(data))
		require.Equal(t, uint8(types.DepositTxType), tx.Type())
		require.Equal(t, expected[i].SourceHash, tx.SourceHash())
	}

	// a malformed deposit log is reported, the valid ones are still returned
	bad := mkLog(4, depositContract, false)
	bad.Data = bad.Data[:32]
	receipts = append(receipts, &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{bad}})
	txs, err = DeriveDeposits(receipts, depositContract)
	require.Error(t, err)
	require.Len(t, txs, len(expected))
}
