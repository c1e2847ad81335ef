package client

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/altda"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/boot"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l1"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l2"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/tasks"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	oplog "github.com/mantlenetworkio/mantle-fp/op-service/log"
)

// Main executes the client program in a detached context and exits the current process.
// The client runtime environment must be preset before calling this function.
func Main() {
	// Default to a machine parsable but relatively human friendly log format.
	// Don't do anything fancy to detect if color output is supported.
	logger := oplog.NewLogger(os.Stderr, oplog.CLIConfig{
		Level:  log.LevelInfo,
		Format: oplog.FormatLogFmt,
		Color:  false,
	})
	oplog.SetGlobalLogHandler(logger.Handler())

	logger.Info("Starting fault proof program client")
	preimageOracle := preimage.ClientPreimageChannel()
	preimageHinter := preimage.ClientHinterChannel()
	os.Exit(exitCode(logger, RunProgram(logger, preimageOracle, preimageHinter)))
}

func exitCode(logger log.Logger, err error) int {
	if errors.Is(err, claim.ErrClaimNotValid) {
		logger.Error("Claim is invalid", "err", err)
		return 1
	} else if err != nil {
		logger.Error("Program failed", "err", err)
		return 2
	}
	logger.Info("Claim successfully verified")
	return 0
}

// RunProgram executes the Program, while attached to an IO based pre-image oracle, to be served by a host.
func RunProgram(logger log.Logger, preimageOracle io.ReadWriter, preimageHinter io.ReadWriter) error {
	pClient := preimage.NewOracleClient(preimageOracle)
	hClient := preimage.NewHintWriter(preimageHinter)
	l1PreimageOracle := l1.NewCachingOracle(l1.NewPreimageOracle(pClient, hClient))
	l2PreimageOracle := l2.NewCachingOracle(l2.NewPreimageOracle(pClient, hClient))

	bootInfo := boot.NewBootstrapClient(pClient).BootInfo()
	logger.Info("Program Bootstrapped", "bootInfo", bootInfo)

	var altDA derive.AltDAInputFetcher
	if bootInfo.RollupConfig.AltDAEnabled() {
		altDA = altda.NewOracleInputFetcher(pClient, hClient)
	}
	result, err := tasks.RunDerivation(
		context.Background(),
		logger,
		bootInfo.RollupConfig,
		bootInfo.L1Head,
		bootInfo.L2OutputRoot,
		bootInfo.L2Claim,
		bootInfo.L2ClaimBlockNumber,
		l1PreimageOracle,
		l2PreimageOracle,
		altDA,
	)
	if err != nil {
		return err
	}
	return claim.ValidateClaim(logger, eth.Bytes32(bootInfo.L2Claim), result.OutputRoot)
}
