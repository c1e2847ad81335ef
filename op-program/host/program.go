package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	cl "github.com/mantlenetworkio/mantle-fp/op-program/client"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/config"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/kvstore"
)

type programCfg struct {
	kv kvstore.KV
}

type ProgramOpt func(c *programCfg)

// WithKV serves pre-images from the given store instead of opening the data directory.
// The store is not closed when the program completes.
func WithKV(kv kvstore.KV) ProgramOpt {
	return func(c *programCfg) {
		c.kv = kv
	}
}

// FaultProofProgram is the programmatic entry-point for the fault proof program.
// It serves pre-images to the client program, either in-process or in the ExecCmd subprocess,
// and returns an error wrapping claim.ErrClaimNotValid if the client rejects the claim.
func FaultProofProgram(ctx context.Context, logger log.Logger, cfg *config.Config, opts ...ProgramOpt) (result error) {
	programConfig := &programCfg{}
	for _, opt := range opts {
		opt(programConfig)
	}
	kv := programConfig.kv
	if kv == nil {
		var err error
		kv, err = OpenKV(logger, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := kv.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to close kvstore: %w", err))
			}
		}()
	}

	pClientRW, pHostRW, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return fmt.Errorf("failed to create preimage pipe: %w", err)
	}
	hClientRW, hHostRW, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		_ = pClientRW.Close()
		_ = pHostRW.Close()
		return fmt.Errorf("failed to create hints pipe: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return RunPreimageServer(gctx, logger, cfg, kv, pHostRW, hHostRW)
	})
	g.Go(func() error {
		// The server sees the end of the streams once the client side is closed.
		defer pClientRW.Close()
		defer hClientRW.Close()
		if cfg.ExecCmd != "" {
			return runSubprocess(gctx, logger, cfg.ExecCmd, pClientRW, hClientRW)
		}
		return runInProcess(logger, pClientRW, hClientRW)
	})
	return g.Wait()
}

func runSubprocess(ctx context.Context, logger log.Logger, execCmd string, pClientRW preimage.FileChannel, hClientRW preimage.FileChannel) error {
	cmd := exec.CommandContext(ctx, execCmd)
	cmd.ExtraFiles = make([]*os.File, preimage.PClientWFd-2) // not including stdin, stdout and stderr
	cmd.ExtraFiles[preimage.HClientRFd-3] = hClientRW.Reader()
	cmd.ExtraFiles[preimage.HClientWFd-3] = hClientRW.Writer()
	cmd.ExtraFiles[preimage.PClientRFd-3] = pClientRW.Reader()
	cmd.ExtraFiles[preimage.PClientWFd-3] = pClientRW.Writer()
	cmd.Stdout = os.Stdout // for debugging
	cmd.Stderr = os.Stderr // for debugging

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("program cmd failed to start: %w", err)
	}
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return fmt.Errorf("%w: client program exited with code 1", claim.ErrClaimNotValid)
	} else if err != nil {
		return fmt.Errorf("failed to wait for child program: %w", err)
	}
	logger.Debug("Client program completed successfully")
	return nil
}

// runInProcess runs the client program in the host process.
// Oracle failures panic in the client, and are returned as errors.
func runInProcess(logger log.Logger, pClientRW io.ReadWriter, hClientRW io.ReadWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client program panicked: %v", r)
		}
	}()
	return cl.RunProgram(logger, pClientRW, hClientRW)
}
