package host

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/config"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/kvstore"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
)

type programSetup struct {
	cfg         *config.Config
	kv          *kvstore.MemKV
	agreed      *eth.OutputV0
	l1HeadBlock []byte
}

func (s *programSetup) putKeccak(t *testing.T, data []byte) common.Hash {
	hash := crypto.Keccak256Hash(data)
	require.NoError(t, s.kv.Put(preimage.Keccak256Key(hash).PreimageKey(), data))
	return hash
}

// newProgramSetup prepares a store where the agreed L2 block is the genesis block,
// and the claim is for that same block.
func newProgramSetup(t *testing.T) *programSetup {
	l1Head := &types.Header{
		ParentHash:  common.Hash{0x0a},
		Number:      big.NewInt(100),
		Time:        1700000000,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  common.Big0,
		GasLimit:    30_000_000,
	}
	l2Head := &types.Header{
		ParentHash:  common.Hash{0x0b},
		Root:        common.Hash{0x0c},
		Number:      big.NewInt(1),
		Time:        1700000000,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  common.Big0,
		GasLimit:    30_000_000,
	}
	s := &programSetup{kv: kvstore.NewMemKV()}

	l1HeadRlp, err := rlp.EncodeToBytes(l1Head)
	require.NoError(t, err)
	s.l1HeadBlock = l1HeadRlp
	l2HeadRlp, err := rlp.EncodeToBytes(l2Head)
	require.NoError(t, err)
	s.putKeccak(t, l2HeadRlp)

	s.agreed = &eth.OutputV0{
		StateRoot:                eth.Bytes32(l2Head.Root),
		MessagePasserStorageRoot: eth.Bytes32{0x0d},
		BlockHash:                l2Head.Hash(),
	}
	agreedRoot := s.putKeccak(t, s.agreed.Marshal())

	rollupCfg := testRollupConfig()
	rollupCfg.Genesis.L1 = eth.BlockID{Hash: l1Head.Hash(), Number: l1Head.Number.Uint64()}
	rollupCfg.Genesis.L2 = eth.BlockID{Hash: l2Head.Hash(), Number: l2Head.Number.Uint64()}
	rollupCfg.Genesis.L2Time = l2Head.Time

	s.cfg = config.NewConfig(rollupCfg, t.TempDir(), l1Head.Hash(), agreedRoot, agreedRoot, l2Head.Number.Uint64())
	return s
}

func (s *programSetup) run(t *testing.T) error {
	logger := testlog.Logger(t, log.LevelDebug)
	return FaultProofProgram(context.Background(), logger, s.cfg, WithKV(s.kv))
}

func TestFaultProofProgram(t *testing.T) {
	t.Run("ValidClaim", func(t *testing.T) {
		s := newProgramSetup(t)
		s.putKeccak(t, s.l1HeadBlock)
		require.NoError(t, s.run(t))
	})

	t.Run("InvalidClaim", func(t *testing.T) {
		s := newProgramSetup(t)
		s.putKeccak(t, s.l1HeadBlock)
		claimed := &eth.OutputV0{
			StateRoot:                eth.Bytes32{0xff},
			MessagePasserStorageRoot: s.agreed.MessagePasserStorageRoot,
			BlockHash:                s.agreed.BlockHash,
		}
		s.cfg.L2Claim = s.putKeccak(t, claimed.Marshal())
		err := s.run(t)
		require.ErrorIs(t, err, claim.ErrClaimNotValid)
	})

	t.Run("MissingPreimage", func(t *testing.T) {
		s := newProgramSetup(t)
		err := s.run(t)
		require.Error(t, err)
		require.NotErrorIs(t, err, claim.ErrClaimNotValid)
	})
}
