package host

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/config"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/kvstore"
)

func Main(logger log.Logger, cfg *config.Config) error {
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg.Rollup.LogDescription(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.ServerMode {
		kv, err := OpenKV(logger, cfg)
		if err != nil {
			return err
		}
		defer kv.Close()
		preimageChan := preimage.ClientPreimageChannel()
		hinterChan := preimage.ClientHinterChannel()
		return RunPreimageServer(ctx, logger, cfg, kv, preimageChan, hinterChan)
	}

	if err := FaultProofProgram(ctx, logger, cfg); err != nil {
		return err
	}
	logger.Info("Claim successfully verified")
	return nil
}

// OpenKV opens the pebble store in the data directory of the config.
func OpenKV(logger log.Logger, cfg *config.Config) (kvstore.KV, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating datadir: %w", err)
	}
	logger.Info("Opening pre-image store", "datadir", cfg.DataDir)
	kv, err := kvstore.NewPebbleKV(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating kvstore: %w", err)
	}
	return kv, nil
}
