package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
	"github.com/minio/sha256-simd"
	"golang.org/x/sync/errgroup"

	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/config"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/kvstore"
)

// RunPreimageServer reads hints and preimage requests from the provided channels and processes those requests.
// This method will block until both the hinter and preimage handlers complete.
// If either returns, or the context is cancelled, both handlers are stopped.
// The supplied preimageChannel and hintChannel will be closed before this function returns.
func RunPreimageServer(ctx context.Context, logger log.Logger, cfg *config.Config, kv kvstore.KV, preimageChannel preimage.FileChannel, hintChannel preimage.FileChannel) error {
	logger.Info("Starting preimage server")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	localPreimageSource := kvstore.NewLocalPreimageSource(cfg)
	splitter := kvstore.NewPreimageSourceSplitter(localPreimageSource.Get, kv.Get)
	preimageGetter := withVerification(splitter.Get)
	hints := newHintLogger(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return serveOracle(logger, preimageChannel, preimageGetter)
	})
	g.Go(func() error {
		defer cancel()
		return routeHints(logger, hintChannel, hints.Hint)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Closing the channels unblocks the handlers still waiting on a read.
		var result *multierror.Error
		if err := preimageChannel.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("failed to close preimage channel: %w", err))
		}
		if err := hintChannel.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("failed to close hint channel: %w", err))
		}
		return result.ErrorOrNil()
	})
	err := g.Wait()
	hints.logSummary()
	if err != nil {
		return err
	}
	logger.Debug("Preimage server stopped")
	return nil
}

func serveOracle(logger log.Logger, pHostRW io.ReadWriter, getter preimage.PreimageGetter) error {
	server := preimage.NewOracleServer(pHostRW)
	for {
		if err := server.NextPreimageRequest(getter); err != nil {
			if err == io.EOF || errors.Is(err, fs.ErrClosed) {
				logger.Debug("closing pre-image server")
				return nil
			}
			logger.Error("pre-image server error", "err", err)
			return err
		}
	}
}

func routeHints(logger log.Logger, hHostRW io.ReadWriter, hinter preimage.HintHandler) error {
	hintReader := preimage.NewHintReader(hHostRW)
	for {
		if err := hintReader.NextHint(hinter); err != nil {
			if err == io.EOF || errors.Is(err, fs.ErrClosed) {
				logger.Debug("closing pre-image hint handler")
				return nil
			}
			logger.Error("pre-image hint router error", "err", err)
			return err
		}
	}
}

// withVerification checks that pre-images of hash-based keys hash to the requested key,
// so a corrupted store is reported by the host instead of failing inside the client program.
func withVerification(source preimage.PreimageGetter) preimage.PreimageGetter {
	return func(key [32]byte) ([]byte, error) {
		data, err := source(key)
		if err != nil {
			return nil, err
		}
		var hash [32]byte
		switch preimage.KeyType(key[0]) {
		case preimage.Keccak256KeyType:
			hash = crypto.Keccak256Hash(data)
		case preimage.Sha256KeyType:
			hash = sha256.Sum256(data)
		default:
			return data, nil
		}
		hash[0] = key[0]
		if hash != key {
			return nil, fmt.Errorf("invalid preimage for key %x", key)
		}
		return data, nil
	}
}
