package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/metrics"
	"github.com/mantlenetworkio/mantle-fp/op-node/metrics/metered"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	cldr "github.com/mantlenetworkio/mantle-fp/op-program/client/driver"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l1"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l2"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

type L2Source interface {
	OutputAtSafeHead(claimed *eth.OutputV0) (*eth.OutputV0, error)
}

type DerivationResult struct {
	Head       eth.L2BlockRef
	BlockHash  common.Hash
	OutputRoot eth.Bytes32
}

// RunDerivation derives the L2 chain from the agreed output root, given a minimal interface to retrieve data.
// Derived blocks are confirmed against the chain of the claimed output.
// Returns the L2BlockRef of the safe head reached and its output root. Derivation stops at l2ClaimBlockNum,
// or at the final safe head when l1Head is reached if l2ClaimBlockNum is not reached.
func RunDerivation(
	ctx context.Context,
	logger log.Logger,
	cfg *rollup.Config,
	l1Head common.Hash,
	l2OutputRoot common.Hash,
	l2Claim common.Hash,
	l2ClaimBlockNum uint64,
	l1Oracle l1.Oracle,
	l2Oracle l2.Oracle,
	altDA derive.AltDAInputFetcher) (DerivationResult, error) {
	l1Source := metered.NewMeteredL1Fetcher(l1.NewOracleL1Client(logger, l1Oracle, l1Head), metrics.NoopMetrics)
	l1BlobsSource := l1.NewBlobFetcher(logger, l1Oracle)

	claimed, err := loadClaimedOutput(l2Oracle, l2Claim)
	if err != nil {
		return DerivationResult{}, err
	}
	l2Source, err := l2.NewOracleBackedL2Chain(logger, cfg, l2Oracle, l2OutputRoot, claimed.BlockHash)
	if err != nil {
		return DerivationResult{}, fmt.Errorf("failed to create oracle-backed L2 chain: %w", err)
	}

	logger.Info("Starting derivation", "chainID", cfg.L2ChainID)
	pipeline := derive.NewDerivationPipeline(logger, cfg, l1Source, l1BlobsSource, altDA, l2Source, metrics.NoopMetrics)
	d := cldr.NewDriver(logger, cfg, pipeline, l2Source, l2ClaimBlockNum)
	result, err := d.RunComplete(ctx)
	if errors.Is(err, claim.ErrClaimNotValid) {
		return DerivationResult{}, err
	} else if err != nil {
		return DerivationResult{}, fmt.Errorf("failed to run program to completion: %w", err)
	}
	logger.Info("Derivation complete", "head", result)
	return loadOutputRoot(result, claimed, l2Source)
}

// loadClaimedOutput reads the output committed to by the claim.
// Its block hash is the head of the chain that derived blocks are confirmed against.
func loadClaimedOutput(l2Oracle l2.Oracle, l2Claim common.Hash) (*eth.OutputV0, error) {
	output, ok := l2Oracle.OutputByRoot(l2Claim).(*eth.OutputV0)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported output version for claim %s", claim.ErrClaimNotValid, l2Claim)
	}
	return output, nil
}

func loadOutputRoot(head eth.L2BlockRef, claimed *eth.OutputV0, src L2Source) (DerivationResult, error) {
	output, err := src.OutputAtSafeHead(claimed)
	if err != nil {
		return DerivationResult{}, fmt.Errorf("%w: output at safe head %s: %w", claim.ErrClaimNotValid, head, err)
	}
	return DerivationResult{
		Head:       head,
		BlockHash:  output.BlockHash,
		OutputRoot: eth.OutputRoot(output),
	}, nil
}
