package derive

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/metrics"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

// fakeL1Chain serves a short L1 chain from memory, with batcher transactions per block.
type fakeL1Chain struct {
	infos []*testutils.MockBlockInfo
	txs   map[common.Hash]types.Transactions
}

func newFakeL1Chain(rng *rand.Rand, startNum, startTime, count uint64) *fakeL1Chain {
	ch := &fakeL1Chain{txs: make(map[common.Hash]types.Transactions)}
	for i := uint64(0); i < count; i++ {
		info := testutils.RandomBlockInfo(rng)
		info.InfoNum = startNum + i
		info.InfoTime = startTime + 12*i
		if i > 0 {
			info.InfoParentHash = ch.infos[i-1].InfoHash
		}
		ch.infos = append(ch.infos, info)
	}
	return ch
}

func (ch *fakeL1Chain) ref(i int) eth.L1BlockRef {
	return eth.InfoToL1BlockRef(ch.infos[i])
}

func (ch *fakeL1Chain) byHash(hash common.Hash) (*testutils.MockBlockInfo, error) {
	for _, info := range ch.infos {
		if info.InfoHash == hash {
			return info, nil
		}
	}
	return nil, ethereum.NotFound
}

func (ch *fakeL1Chain) L1BlockRefByNumber(_ context.Context, num uint64) (eth.L1BlockRef, error) {
	for _, info := range ch.infos {
		if info.InfoNum == num {
			return eth.InfoToL1BlockRef(info), nil
		}
	}
	return eth.L1BlockRef{}, ethereum.NotFound
}

func (ch *fakeL1Chain) L1BlockRefByHash(_ context.Context, hash common.Hash) (eth.L1BlockRef, error) {
	info, err := ch.byHash(hash)
	if err != nil {
		return eth.L1BlockRef{}, err
	}
	return eth.InfoToL1BlockRef(info), nil
}

func (ch *fakeL1Chain) InfoByHash(_ context.Context, hash common.Hash) (eth.BlockInfo, error) {
	info, err := ch.byHash(hash)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (ch *fakeL1Chain) FetchReceipts(_ context.Context, hash common.Hash) (eth.BlockInfo, types.Receipts, error) {
	info, err := ch.byHash(hash)
	if err != nil {
		return nil, nil, err
	}
	return info, types.Receipts{}, nil
}

func (ch *fakeL1Chain) InfoAndTxsByHash(_ context.Context, hash common.Hash) (eth.BlockInfo, types.Transactions, error) {
	info, err := ch.byHash(hash)
	if err != nil {
		return nil, nil, err
	}
	return info, ch.txs[hash], nil
}

// fakeL2Chain knows the L2 blocks up to the safe head and their system config.
type fakeL2Chain struct {
	refs   []eth.L2BlockRef
	sysCfg eth.SystemConfig
}

func (ch *fakeL2Chain) L2BlockRefByNumber(_ context.Context, num uint64) (eth.L2BlockRef, error) {
	for _, ref := range ch.refs {
		if ref.Number == num {
			return ref, nil
		}
	}
	return eth.L2BlockRef{}, ethereum.NotFound
}

func (ch *fakeL2Chain) L2BlockRefByHash(_ context.Context, hash common.Hash) (eth.L2BlockRef, error) {
	for _, ref := range ch.refs {
		if ref.Hash == hash {
			return ref, nil
		}
	}
	return eth.L2BlockRef{}, ethereum.NotFound
}

func (ch *fakeL2Chain) PayloadByNumber(context.Context, uint64) (*eth.ExecutionPayloadEnvelope, error) {
	return nil, ethereum.NotFound
}

func (ch *fakeL2Chain) SystemConfigByL2Hash(_ context.Context, hash common.Hash) (eth.SystemConfig, error) {
	if _, err := ch.L2BlockRefByHash(context.Background(), hash); err != nil {
		return eth.SystemConfig{}, err
	}
	return ch.sysCfg, nil
}

type pipelineTestEnv struct {
	cfg        *rollup.Config
	l1         *fakeL1Chain
	l2         *fakeL2Chain
	batcherKey *ecdsa.PrivateKey
	genesis    eth.L2BlockRef
}

func newPipelineTestEnv(t *testing.T, rng *rand.Rand) *pipelineTestEnv {
	batcherKey := testutils.InsecureRandomKey(rng)
	l1 := newFakeL1Chain(rng, 100, 1000, 3)
	sysCfg := eth.SystemConfig{
		BatcherAddr: crypto.PubkeyToAddress(batcherKey.PublicKey),
		GasLimit:    30_000_000,
	}
	genesis := eth.L2BlockRef{
		Hash:     testutils.RandomHash(rng),
		Number:   0,
		Time:     l1.infos[0].InfoTime,
		L1Origin: l1.ref(0).ID(),
	}
	cfg := &rollup.Config{
		Genesis: rollup.Genesis{
			L1:           l1.ref(0).ID(),
			L2:           genesis.ID(),
			L2Time:       genesis.Time,
			SystemConfig: sysCfg,
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          10,
		ChannelTimeoutBedrock:  50,
		L1ChainID:              big.NewInt(900),
		L2ChainID:              big.NewInt(901),
		BatchInboxAddress:      testutils.RandomAddress(rng),
		DepositContractAddress: testutils.RandomAddress(rng),
		L1SystemConfigAddress:  testutils.RandomAddress(rng),
	}
	return &pipelineTestEnv{
		cfg:        cfg,
		l1:         l1,
		l2:         &fakeL2Chain{refs: []eth.L2BlockRef{genesis}, sysCfg: sysCfg},
		batcherKey: batcherKey,
		genesis:    genesis,
	}
}

// submitBatch puts a single-frame channel with the given batch into L1 block i.
func (env *pipelineTestEnv) submitBatch(t *testing.T, i int, batch *SingularBatch) {
	co, err := NewChannelOut(Zlib, 10_000_000)
	require.NoError(t, err)
	require.NoError(t, co.AddBatch(batch))
	require.NoError(t, co.Close())
	var buf bytes.Buffer
	buf.WriteByte(DerivationVersion0)
	_, err = co.OutputFrame(&buf, 100_000)
	require.ErrorIs(t, err, io.EOF, "channel fits in one frame")

	block := env.l1.infos[i]
	tx, err := types.SignNewTx(env.batcherKey, env.cfg.L1Signer(), &types.DynamicFeeTx{
		ChainID:   env.cfg.L1ChainID,
		Nonce:     uint64(len(env.l1.txs[block.InfoHash])),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       1_000_000,
		To:        &env.cfg.BatchInboxAddress,
		Data:      buf.Bytes(),
	})
	require.NoError(t, err)
	env.l1.txs[block.InfoHash] = append(env.l1.txs[block.InfoHash], tx)
}

func (env *pipelineTestEnv) pipeline(t *testing.T) *DerivationPipeline {
	logger := testlog.Logger(t, log.LevelInfo)
	return NewDerivationPipeline(logger, env.cfg, env.l1, nil, nil, env.l2, metrics.NoopMetrics)
}

func randomUserTxs(t *testing.T, rng *rand.Rand, n int) []hexutil.Bytes {
	signer := types.LatestSignerForChainID(big.NewInt(901))
	out := make([]hexutil.Bytes, n)
	for i := range out {
		data, err := testutils.RandomDynamicFeeTx(rng, signer).MarshalBinary()
		require.NoError(t, err)
		out[i] = data
	}
	return out
}

func TestDerivationPipelineSingleBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	env := newPipelineTestEnv(t, rng)
	userTxs := randomUserTxs(t, rng, 3)
	env.submitBatch(t, 1, &SingularBatch{
		ParentHash:   env.genesis.Hash,
		EpochNum:     rollup.Epoch(env.l1.ref(0).Number),
		EpochHash:    env.l1.ref(0).Hash,
		Timestamp:    env.cfg.Genesis.L2Time + env.cfg.BlockTime,
		Transactions: userTxs,
	})

	ctx := context.Background()
	dp := env.pipeline(t)
	require.Equal(t, PipelineNeedsReset, dp.State())
	_, err := dp.ProducePayload(ctx, env.genesis)
	require.ErrorIs(t, err, ErrReset, "pipeline cannot derive before a reset")

	require.NoError(t, dp.InitialReset(ctx, env.genesis))
	require.Equal(t, env.l1.ref(0), dp.Origin())
	require.Equal(t, PipelineIdle, dp.State())

	attrs, err := dp.ProducePayload(ctx, env.genesis)
	require.NoError(t, err)
	require.Equal(t, PipelineIdle, dp.State())
	require.Equal(t, env.genesis, attrs.Parent)
	require.Equal(t, env.l1.ref(1), attrs.DerivedFrom)

	txs := attrs.Attributes.Transactions
	require.Len(t, txs, 1+len(userTxs), "L1 info deposit and the batch transactions")
	require.Equal(t, byte(types.DepositTxType), txs[0][0])
	require.Equal(t, userTxs, txs[1:])
	require.True(t, attrs.Attributes.NoTxPool)
	require.Equal(t, hexutil.Uint64(env.genesis.Time+env.cfg.BlockTime), attrs.Attributes.Timestamp)
	require.Equal(t, eth.Uint64Quantity(30_000_000), *attrs.Attributes.GasLimit)

	cursor := NewPipelineCursor(dp.Origin(), rollup.NewChainSpec(env.cfg).ChannelTimeout(dp.Origin().Time), TipCursor{L2SafeHead: env.genesis})
	next := eth.L2BlockRef{
		Hash:           testutils.RandomHash(rng),
		Number:         env.genesis.Number + 1,
		ParentHash:     env.genesis.Hash,
		Time:           uint64(attrs.Attributes.Timestamp),
		L1Origin:       env.genesis.L1Origin,
		SequenceNumber: 1,
	}
	require.NoError(t, cursor.Advance(attrs.DerivedFrom, next, eth.Bytes32{0x01}))
	require.Equal(t, env.genesis.Number+1, cursor.L2SafeHead().Number)
	require.Equal(t, env.l1.ref(1), cursor.Origin)

	// Nothing else is batched: the pipeline traverses the remaining L1 block and then runs dry.
	env.l2.refs = append(env.l2.refs, next)
	_, err = dp.ProducePayload(ctx, next)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, PipelineExhausted, dp.State())
	require.Equal(t, env.l1.ref(2), dp.Origin())
}

func TestDerivationPipelineIdempotentReset(t *testing.T) {
	rng := rand.New(rand.NewSource(4321))
	env := newPipelineTestEnv(t, rng)
	env.submitBatch(t, 1, &SingularBatch{
		ParentHash:   env.genesis.Hash,
		EpochNum:     rollup.Epoch(env.l1.ref(0).Number),
		EpochHash:    env.l1.ref(0).Hash,
		Timestamp:    env.cfg.Genesis.L2Time + env.cfg.BlockTime,
		Transactions: randomUserTxs(t, rng, 2),
	})
	ctx := context.Background()
	reset := ResetSignal{L1Origin: env.l1.ref(0), SystemConfig: env.l2.sysCfg}

	once := env.pipeline(t)
	require.NoError(t, once.Signal(ctx, reset))

	twice := env.pipeline(t)
	require.NoError(t, twice.Signal(ctx, reset))
	require.NoError(t, twice.Signal(ctx, reset))

	require.Equal(t, once.Origin(), twice.Origin())
	require.Equal(t, once.State(), twice.State())

	a, err := once.ProducePayload(ctx, env.genesis)
	require.NoError(t, err)
	b, err := twice.ProducePayload(ctx, env.genesis)
	require.NoError(t, err)
	require.Equal(t, a, b)

	// a reset in the middle of derivation discards the progress
	require.NoError(t, twice.Signal(ctx, reset))
	c, err := twice.ProducePayload(ctx, env.genesis)
	require.NoError(t, err)
	require.Equal(t, a, c)
}

func TestDerivationPipelineResetFailure(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	env := newPipelineTestEnv(t, rng)
	dp := env.pipeline(t)
	unknown := testutils.RandomL2BlockRef(rng)
	err := dp.InitialReset(context.Background(), unknown)
	require.ErrorIs(t, err, ErrTemporary)
	require.True(t, errors.Is(err, ethereum.NotFound))
	require.Equal(t, PipelineNeedsReset, dp.State())
}

func TestDerivationPipelineSimultaneousForks(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	env := newPipelineTestEnv(t, rng)
	// Holocene and Isthmus both activate with the second L1 block.
	forkTime := env.l1.infos[1].InfoTime
	env.cfg.HoloceneTime = &forkTime
	env.cfg.IsthmusTime = &forkTime

	ctx := context.Background()
	dp := env.pipeline(t)
	require.NoError(t, dp.InitialReset(ctx, env.genesis))

	var channelMux *ChannelMux
	var batchMux *BatchMux
	for _, stage := range dp.stages {
		switch x := stage.(type) {
		case *ChannelMux:
			channelMux = x
		case *BatchMux:
			batchMux = x
		}
	}
	require.NotNil(t, channelMux)
	require.NotNil(t, batchMux)
	require.Equal(t, stagePreHolocene, channelMux.kind)
	require.Equal(t, stagePreHolocene, batchMux.kind)

	for i := 0; dp.Origin() != env.l1.ref(1); i++ {
		require.Less(t, i, 100, "origin did not advance")
		_, err := dp.Step(ctx, env.genesis)
		require.NotErrorIs(t, err, ErrReset)
		require.NotErrorIs(t, err, ErrCritical)
	}
	require.True(t, env.cfg.IsHolocene(dp.Origin().Time))
	require.Equal(t, stageHolocene, channelMux.kind)
	require.Equal(t, stageHolocene, batchMux.kind)
}

func TestPipelineCursorAdvance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	origin := testutils.RandomBlockRef(rng)
	safe := testutils.RandomL2BlockRef(rng)
	cursor := NewPipelineCursor(origin, 50, TipCursor{L2SafeHead: safe})

	notChild := testutils.NextRandomL2Ref(rng, 2, safe, safe.L1Origin)
	notChild.ParentHash = common.Hash{0xff}
	require.Error(t, cursor.Advance(origin, notChild, eth.Bytes32{}))

	child := testutils.NextRandomL2Ref(rng, 2, safe, safe.L1Origin)
	older := origin
	older.Number--
	require.Error(t, cursor.Advance(older, child, eth.Bytes32{}))

	require.NoError(t, cursor.Advance(origin, child, eth.Bytes32{0xaa}))
	require.Equal(t, child, cursor.L2SafeHead())
	require.Equal(t, eth.Bytes32{0xaa}, cursor.Tip().OutputRoot)
}
