package test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// StubBlockOracle serves L2 blocks and outputs from maps, and fails the test on any unknown request.
type StubBlockOracle struct {
	t       *testing.T
	Blocks  map[common.Hash]*types.Block
	Outputs map[common.Hash]eth.Output
}

func NewStubOracle(t *testing.T) *StubBlockOracle {
	return &StubBlockOracle{
		t:       t,
		Blocks:  make(map[common.Hash]*types.Block),
		Outputs: make(map[common.Hash]eth.Output),
	}
}

// NewStubOracleWithBlocks creates a stub that serves all the given blocks, and the outputs by their root.
func NewStubOracleWithBlocks(t *testing.T, chain []*types.Block, outputs ...eth.Output) *StubBlockOracle {
	stub := NewStubOracle(t)
	for _, block := range chain {
		stub.Blocks[block.Hash()] = block
	}
	for _, output := range outputs {
		stub.Outputs[common.Hash(eth.OutputRoot(output))] = output
	}
	return stub
}

func (o StubBlockOracle) BlockByHash(blockHash common.Hash) *types.Block {
	block, ok := o.Blocks[blockHash]
	if !ok {
		o.t.Fatalf("requested unknown block %s", blockHash)
	}
	return block
}

func (o StubBlockOracle) OutputByRoot(root common.Hash) eth.Output {
	output, ok := o.Outputs[root]
	if !ok {
		o.t.Fatalf("requested unknown output root %s", root)
	}
	return output
}
