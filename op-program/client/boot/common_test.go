package boot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
)

type mockBootstrapOracle struct {
	l1Head             common.Hash
	l2OutputRoot       common.Hash
	l2Claim            common.Hash
	l2ClaimBlockNumber uint64
	l2ChainID          uint64
	rollupConfig       []byte
}

func newMockBootstrapOracle(info *BootInfo) *mockBootstrapOracle {
	cfg, err := json.Marshal(info.RollupConfig)
	if err != nil {
		panic(err)
	}
	return &mockBootstrapOracle{
		l1Head:             info.L1Head,
		l2OutputRoot:       info.L2OutputRoot,
		l2Claim:            info.L2Claim,
		l2ClaimBlockNumber: info.L2ClaimBlockNumber,
		l2ChainID:          info.L2ChainID,
		rollupConfig:       cfg,
	}
}

func (o *mockBootstrapOracle) Get(key preimage.Key) []byte {
	switch key.PreimageKey() {
	case L1HeadLocalIndex.PreimageKey():
		return o.l1Head[:]
	case L2OutputRootLocalIndex.PreimageKey():
		return o.l2OutputRoot[:]
	case L2ClaimLocalIndex.PreimageKey():
		return o.l2Claim[:]
	case L2ClaimBlockNumberLocalIndex.PreimageKey():
		return binary.BigEndian.AppendUint64(nil, o.l2ClaimBlockNumber)
	case L2ChainIDLocalIndex.PreimageKey():
		return binary.BigEndian.AppendUint64(nil, o.l2ChainID)
	case RollupConfigLocalIndex.PreimageKey():
		return o.rollupConfig
	default:
		panic(fmt.Sprintf("unexpected oracle request for preimage key %x", key.PreimageKey()))
	}
}

var _ oracleClient = (*mockBootstrapOracle)(nil)
