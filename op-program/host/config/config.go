package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/flags"
)

var (
	ErrMissingRollupConfig = errors.New("missing rollup config")
	ErrInvalidL1Head       = errors.New("invalid l1 head")
	ErrInvalidL2OutputRoot = errors.New("invalid l2 output root")
	ErrInvalidL2Claim      = errors.New("invalid l2 claim")
	ErrInvalidL2ClaimBlock = errors.New("invalid l2 claim block number")
	ErrDataDirRequired     = errors.New("datadir must be specified to serve pre-images")
	ErrNoExecInServerMode  = errors.New("exec command must not be set when in server mode")
)

type Config struct {
	Rollup *rollup.Config
	// DataDir is the directory of the pebble store to read pre-image data from.
	DataDir string

	// L1Head is the block hash of the L1 chain head block
	L1Head common.Hash
	// L2OutputRoot is the agreed L2 output root to start derivation from
	L2OutputRoot common.Hash
	// L2Claim is the claimed L2 output root to verify
	L2Claim common.Hash
	// L2ClaimBlockNumber is the block number the claimed L2 output root is from
	// Must be above 0 and to be a valid claim needs to be above the agreed block.
	L2ClaimBlockNumber uint64

	// ExecCmd specifies the client program to execute in a separate process.
	// If unset, the fault proof client is run in the same process.
	ExecCmd string

	// ServerMode indicates that the program should run in pre-image server mode and wait for requests.
	// No client program is run.
	ServerMode bool
}

func (c *Config) Check() error {
	if c.Rollup == nil {
		return ErrMissingRollupConfig
	}
	if err := c.Rollup.Check(); err != nil {
		return fmt.Errorf("invalid rollup config: %w", err)
	}
	if c.L1Head == (common.Hash{}) {
		return ErrInvalidL1Head
	}
	if c.L2OutputRoot == (common.Hash{}) {
		return ErrInvalidL2OutputRoot
	}
	if c.L2ClaimBlockNumber == 0 {
		return ErrInvalidL2ClaimBlock
	}
	if c.DataDir == "" {
		return ErrDataDirRequired
	}
	if c.ServerMode && c.ExecCmd != "" {
		return ErrNoExecInServerMode
	}
	return nil
}

// L2ChainID is the chain ID the client program is booted with.
func (c *Config) L2ChainID() uint64 {
	return c.Rollup.L2ChainID.Uint64()
}

// NewConfig creates a Config with all optional values set to the CLI default value
func NewConfig(
	rollupCfg *rollup.Config,
	dataDir string,
	l1Head common.Hash,
	l2OutputRoot common.Hash,
	l2Claim common.Hash,
	l2ClaimBlockNum uint64,
) *Config {
	return &Config{
		Rollup:             rollupCfg,
		DataDir:            dataDir,
		L1Head:             l1Head,
		L2OutputRoot:       l2OutputRoot,
		L2Claim:            l2Claim,
		L2ClaimBlockNumber: l2ClaimBlockNum,
	}
}

// NewConfigFromCLI collects the config from the CLI flags, on top of the config file if one is given.
func NewConfigFromCLI(logger log.Logger, ctx *cli.Context) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, err
	}
	file := new(FileConfig)
	if ctx.IsSet(flags.ConfigFile.Name) {
		path := ctx.Path(flags.ConfigFile.Name)
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded host config file", "path", path)
		file = loaded
	}
	if ctx.IsSet(flags.RollupConfig.Name) {
		file.RollupConfig = ctx.Path(flags.RollupConfig.Name)
	}
	if ctx.IsSet(flags.DataDir.Name) {
		file.DataDir = ctx.String(flags.DataDir.Name)
	}
	if ctx.IsSet(flags.L1Head.Name) {
		file.L1Head = ctx.String(flags.L1Head.Name)
	}
	if ctx.IsSet(flags.L2OutputRoot.Name) {
		file.L2OutputRoot = ctx.String(flags.L2OutputRoot.Name)
	}
	if ctx.IsSet(flags.L2Claim.Name) {
		file.L2Claim = ctx.String(flags.L2Claim.Name)
	}
	if ctx.IsSet(flags.L2BlockNumber.Name) {
		file.L2BlockNumber = ctx.Uint64(flags.L2BlockNumber.Name)
	}
	if ctx.IsSet(flags.Exec.Name) {
		file.Exec = ctx.String(flags.Exec.Name)
	}
	if ctx.IsSet(flags.Server.Name) {
		file.Server = ctx.Bool(flags.Server.Name)
	}
	return file.Config()
}
