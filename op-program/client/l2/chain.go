package l2

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

var (
	// ErrBlockMismatch is returned when derived attributes do not produce the next block of the claimed chain.
	ErrBlockMismatch = errors.New("derived attributes do not match the claimed chain")
	// ErrBeyondClaim is returned when a block is derived after the last block of the claimed chain.
	ErrBeyondClaim = errors.New("derived block is beyond the claimed chain")
)

// OracleBackedL2Chain is the L2 chain as seen by the derivation pipeline of the program.
// It starts at the block of the agreed output root, and is only extended with blocks of the claimed chain
// that match the attributes derived from L1.
type OracleBackedL2Chain struct {
	log       log.Logger
	rollupCfg *rollup.Config
	oracle    Oracle

	agreedOutput *eth.OutputV0
	canon        *CanonicalBlockHeaderOracle
	safeHead     eth.L2BlockRef

	// claimed is nil if the claim does not extend past the agreed block
	claimed *CanonicalBlockHeaderOracle
}

var _ derive.L2Source = (*OracleBackedL2Chain)(nil)

// NewOracleBackedL2Chain loads the agreed starting block from the agreed output root.
// claimedHead is the block hash of the claimed output, derived blocks are checked against its ancestors.
func NewOracleBackedL2Chain(logger log.Logger, rollupCfg *rollup.Config, oracle Oracle, agreedOutputRoot common.Hash, claimedHead common.Hash) (*OracleBackedL2Chain, error) {
	output, ok := oracle.OutputByRoot(agreedOutputRoot).(*eth.OutputV0)
	if !ok {
		return nil, fmt.Errorf("unsupported agreed output version for root %s", agreedOutputRoot)
	}
	head := oracle.BlockByHash(output.BlockHash)
	headRef, err := derive.L2BlockToBlockRef(rollupCfg, head)
	if err != nil {
		return nil, fmt.Errorf("invalid agreed L2 block %s: %w", head.Hash(), err)
	}
	logger.Info("Loaded L2 head", "hash", headRef.Hash, "number", headRef.Number)
	chain := &OracleBackedL2Chain{
		log:          logger,
		rollupCfg:    rollupCfg,
		oracle:       oracle,
		agreedOutput: output,
		canon:        NewCanonicalBlockHeaderOracle(head.Header(), oracle.BlockByHash),
		safeHead:     headRef,
	}
	if claimedHead != (common.Hash{}) && claimedHead != headRef.Hash {
		claimed := oracle.BlockByHash(claimedHead)
		if claimed.NumberU64() > headRef.Number {
			chain.claimed = NewCanonicalBlockHeaderOracle(claimed.Header(), oracle.BlockByHash)
		}
	}
	return chain, nil
}

func (o *OracleBackedL2Chain) SafeHead() eth.L2BlockRef {
	return o.safeHead
}

func (o *OracleBackedL2Chain) AgreedOutput() *eth.OutputV0 {
	return o.agreedOutput
}

func (o *OracleBackedL2Chain) L2BlockRefByNumber(ctx context.Context, num uint64) (eth.L2BlockRef, error) {
	block, err := o.blockByNumber(num)
	if err != nil {
		return eth.L2BlockRef{}, err
	}
	return derive.L2BlockToBlockRef(o.rollupCfg, block)
}

func (o *OracleBackedL2Chain) L2BlockRefByHash(ctx context.Context, l2Hash common.Hash) (eth.L2BlockRef, error) {
	return derive.L2BlockToBlockRef(o.rollupCfg, o.oracle.BlockByHash(l2Hash))
}

func (o *OracleBackedL2Chain) PayloadByNumber(ctx context.Context, num uint64) (*eth.ExecutionPayloadEnvelope, error) {
	block, err := o.blockByNumber(num)
	if err != nil {
		return nil, err
	}
	payload, err := eth.BlockAsPayload(block)
	if err != nil {
		return nil, err
	}
	return &eth.ExecutionPayloadEnvelope{
		ParentBeaconBlockRoot: block.BeaconRoot(),
		ExecutionPayload:      payload,
	}, nil
}

func (o *OracleBackedL2Chain) SystemConfigByL2Hash(ctx context.Context, hash common.Hash) (eth.SystemConfig, error) {
	payload, err := eth.BlockAsPayload(o.oracle.BlockByHash(hash))
	if err != nil {
		return eth.SystemConfig{}, err
	}
	return derive.PayloadToSystemConfig(o.rollupCfg, payload)
}

// blockByNumber serves the canonical chain up to and including the safe head.
func (o *OracleBackedL2Chain) blockByNumber(num uint64) (*types.Block, error) {
	if num > o.safeHead.Number {
		return nil, fmt.Errorf("%w: L2 block %d after safe head %s", ethereum.NotFound, num, o.safeHead)
	}
	header := o.canon.GetHeaderByNumber(num)
	if header == nil {
		return nil, fmt.Errorf("%w: L2 block %d", ethereum.NotFound, num)
	}
	return o.oracle.BlockByHash(header.Hash()), nil
}

// InsertDerived extends the safe chain with the next block of the claimed chain,
// if it is the block the given attributes build on top of the safe head.
// ErrBlockMismatch is returned when the attributes do not match, and ErrBeyondClaim when the claimed chain
// has no next block. The safe head is left unchanged on any error.
func (o *OracleBackedL2Chain) InsertDerived(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
	if attrs.Parent.Hash != o.safeHead.Hash {
		return eth.L2BlockRef{}, fmt.Errorf("attributes parent %s does not match safe head %s", attrs.Parent, o.safeHead)
	}
	next := o.safeHead.Number + 1
	if o.claimed == nil || next > o.claimed.CurrentHeader().Number.Uint64() {
		return eth.L2BlockRef{}, fmt.Errorf("%w: block %d", ErrBeyondClaim, next)
	}
	header := o.claimed.GetHeaderByNumber(next)
	block := o.oracle.BlockByHash(header.Hash())
	if err := CheckBlockAttributes(block, o.safeHead.Hash, attrs.Attributes); err != nil {
		return eth.L2BlockRef{}, fmt.Errorf("%w: block %s: %w", ErrBlockMismatch, header.Hash(), err)
	}
	ref, err := derive.L2BlockToBlockRef(o.rollupCfg, block)
	if err != nil {
		return eth.L2BlockRef{}, fmt.Errorf("%w: %w", ErrBlockMismatch, err)
	}
	o.canon.SetCanonical(block.Header())
	o.safeHead = ref
	o.log.Info("Inserted derived block", "block", ref, "origin", ref.L1Origin, "txs", len(block.Transactions()))
	return ref, nil
}

// OutputAtSafeHead returns the output of the safe head.
// The message passer storage root is only known for the agreed block, for the claimed block it is read from the
// block header after Isthmus, and taken from the claimed output before.
func (o *OracleBackedL2Chain) OutputAtSafeHead(claimed *eth.OutputV0) (*eth.OutputV0, error) {
	if o.safeHead.Hash == o.agreedOutput.BlockHash {
		return o.agreedOutput, nil
	}
	if claimed == nil || claimed.BlockHash != o.safeHead.Hash {
		return nil, fmt.Errorf("no output known for safe head %s", o.safeHead)
	}
	header := o.oracle.BlockByHash(o.safeHead.Hash).Header()
	storageRoot := claimed.MessagePasserStorageRoot
	if o.rollupCfg.IsIsthmus(header.Time) && header.WithdrawalsHash != nil {
		storageRoot = eth.Bytes32(*header.WithdrawalsHash)
	}
	return &eth.OutputV0{
		StateRoot:                eth.Bytes32(header.Root),
		MessagePasserStorageRoot: storageRoot,
		BlockHash:                header.Hash(),
	}, nil
}
