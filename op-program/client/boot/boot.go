package boot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
)

// BootInfo is the dispute input of the program, read from local preimage keys.
type BootInfo struct {
	L1Head             common.Hash
	L2OutputRoot       common.Hash
	L2Claim            common.Hash
	L2ClaimBlockNumber uint64
	L2ChainID          uint64

	RollupConfig *rollup.Config
}

type BootstrapClient struct {
	r oracleClient
}

func NewBootstrapClient(r oracleClient) *BootstrapClient {
	return &BootstrapClient{r: r}
}

// BootInfo reads the boot info. It panics if the rollup config is invalid or for another chain,
// as the program cannot continue without it.
func (br *BootstrapClient) BootInfo() *BootInfo {
	l1Head := common.BytesToHash(br.r.Get(L1HeadLocalIndex))
	l2OutputRoot := common.BytesToHash(br.r.Get(L2OutputRootLocalIndex))
	l2Claim := common.BytesToHash(br.r.Get(L2ClaimLocalIndex))
	l2ClaimBlockNumber := binary.BigEndian.Uint64(br.r.Get(L2ClaimBlockNumberLocalIndex))
	l2ChainID := binary.BigEndian.Uint64(br.r.Get(L2ChainIDLocalIndex))

	rollupConfig := new(rollup.Config)
	if err := rollupConfig.ParseRollupConfig(bytes.NewReader(br.r.Get(RollupConfigLocalIndex))); err != nil {
		panic(fmt.Errorf("failed to bootstrap rollup config: %w", err))
	}
	if err := rollupConfig.Check(); err != nil {
		panic(fmt.Errorf("invalid rollup config: %w", err))
	}
	if !rollupConfig.L2ChainID.IsUint64() || rollupConfig.L2ChainID.Uint64() != l2ChainID {
		panic(fmt.Sprintf("rollup config L2 chain ID %v does not match boot chain ID %d", rollupConfig.L2ChainID, l2ChainID))
	}

	return &BootInfo{
		L1Head:             l1Head,
		L2OutputRoot:       l2OutputRoot,
		L2Claim:            l2Claim,
		L2ClaimBlockNumber: l2ClaimBlockNumber,
		L2ChainID:          l2ChainID,
		RollupConfig:       rollupConfig,
	}
}
