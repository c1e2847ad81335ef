package config

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

var (
	validL1Head          = common.Hash{0xaa}
	validL2Claim         = common.Hash{0xcc}
	validL2OutputRoot    = common.Hash{0xdd}
	validL2ClaimBlockNum = uint64(15)
	validDataDir         = "/tmp/mantle-fp"
)

func validRollupConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     eth.BlockID{Hash: common.HexToHash("0xaa"), Number: 100},
			L2:     eth.BlockID{Hash: common.HexToHash("0xbb"), Number: 0},
			L2Time: 1700000000,
			SystemConfig: eth.SystemConfig{
				BatcherAddr: common.HexToAddress("0x1234"),
				Scalar:      eth.Bytes32{31: 0x01},
				GasLimit:    30_000_000,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          3600,
		ChannelTimeoutBedrock:  300,
		L1ChainID:              big.NewInt(11155111),
		L2ChainID:              big.NewInt(5003),
		BatchInboxAddress:      common.HexToAddress("0xff00000000000000000000000000000000005003"),
		DepositContractAddress: common.HexToAddress("0x5678"),
		L1SystemConfigAddress:  common.HexToAddress("0x9abc"),
	}
}

func validConfig() *Config {
	return NewConfig(validRollupConfig(), validDataDir, validL1Head, validL2OutputRoot, validL2Claim, validL2ClaimBlockNum)
}

// TestValidConfigIsValid checks that the config provided by validConfig is actually valid
func TestValidConfigIsValid(t *testing.T) {
	require.NoError(t, validConfig().Check())
	require.Equal(t, uint64(5003), validConfig().L2ChainID())
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		err    error
	}{
		{"MissingRollupConfig", func(cfg *Config) { cfg.Rollup = nil }, ErrMissingRollupConfig},
		{"InvalidRollupConfig", func(cfg *Config) { cfg.Rollup.BlockTime = 0 }, rollup.ErrBlockTimeZero},
		{"L1HeadRequired", func(cfg *Config) { cfg.L1Head = common.Hash{} }, ErrInvalidL1Head},
		{"L2OutputRootRequired", func(cfg *Config) { cfg.L2OutputRoot = common.Hash{} }, ErrInvalidL2OutputRoot},
		{"L2ClaimBlockNumberRequired", func(cfg *Config) { cfg.L2ClaimBlockNumber = 0 }, ErrInvalidL2ClaimBlock},
		{"DataDirRequired", func(cfg *Config) { cfg.DataDir = "" }, ErrDataDirRequired},
		{"NoExecInServerMode", func(cfg *Config) {
			cfg.ServerMode = true
			cfg.ExecCmd = "./client"
		}, ErrNoExecInServerMode},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := validConfig()
			test.modify(cfg)
			require.ErrorIs(t, cfg.Check(), test.err)
		})
	}

	t.Run("ZeroClaimAllowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.L2Claim = common.Hash{}
		require.NoError(t, cfg.Check())
	})

	t.Run("ServerMode", func(t *testing.T) {
		cfg := validConfig()
		cfg.ServerMode = true
		require.NoError(t, cfg.Check())
	})
}

func writeRollupConfig(t *testing.T, cfg *rollup.Config) string {
	j, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rollup.json")
	require.NoError(t, os.WriteFile(path, j, 0644))
	return path
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	rollupPath := writeRollupConfig(t, validRollupConfig())

	t.Run("Valid", func(t *testing.T) {
		path := writeFile(t, `
rollup-config = "`+rollupPath+`"
datadir = "/data/preimages"
l1-head = "`+validL1Head.Hex()+`"
l2-output-root = "`+validL2OutputRoot.Hex()+`"
l2-claim = "`+validL2Claim.Hex()+`"
l2-block-number = 15
exec = "./bin/client"
`)
		file, err := LoadFile(path)
		require.NoError(t, err)
		require.Equal(t, "./bin/client", file.Exec)
		require.False(t, file.Server)

		cfg, err := file.Config()
		require.NoError(t, err)
		expected := NewConfig(validRollupConfig(), "/data/preimages", validL1Head, validL2OutputRoot, validL2Claim, validL2ClaimBlockNum)
		expected.ExecCmd = "./bin/client"
		require.Equal(t, expected, cfg)
		require.NoError(t, cfg.Check())
	})

	t.Run("UnknownKey", func(t *testing.T) {
		path := writeFile(t, `l2-head = "0x01"`)
		_, err := LoadFile(path)
		require.ErrorContains(t, err, "unknown keys")
	})

	t.Run("Malformed", func(t *testing.T) {
		path := writeFile(t, `datadir = `)
		_, err := LoadFile(path)
		require.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
		require.Error(t, err)
	})
}

func TestFileConfig(t *testing.T) {
	rollupPath := writeRollupConfig(t, validRollupConfig())
	valid := func() *FileConfig {
		return &FileConfig{
			RollupConfig:  rollupPath,
			DataDir:       validDataDir,
			L1Head:        validL1Head.Hex(),
			L2OutputRoot:  validL2OutputRoot.Hex(),
			L2Claim:       validL2Claim.Hex(),
			L2BlockNumber: validL2ClaimBlockNum,
		}
	}

	t.Run("Valid", func(t *testing.T) {
		cfg, err := valid().Config()
		require.NoError(t, err)
		require.Equal(t, validConfig(), cfg)
	})

	t.Run("MissingRollupConfig", func(t *testing.T) {
		file := valid()
		file.RollupConfig = ""
		_, err := file.Config()
		require.ErrorIs(t, err, ErrMissingRollupConfig)
	})

	t.Run("InvalidRollupConfig", func(t *testing.T) {
		rollupCfg := validRollupConfig()
		rollupCfg.BlockTime = 0
		file := valid()
		file.RollupConfig = writeRollupConfig(t, rollupCfg)
		_, err := file.Config()
		require.ErrorIs(t, err, rollup.ErrBlockTimeZero)
	})

	t.Run("ZeroL1Head", func(t *testing.T) {
		file := valid()
		file.L1Head = common.Hash{}.Hex()
		_, err := file.Config()
		require.ErrorIs(t, err, ErrInvalidL1Head)
	})

	t.Run("ShortL2OutputRoot", func(t *testing.T) {
		file := valid()
		file.L2OutputRoot = "0x1234"
		_, err := file.Config()
		require.ErrorIs(t, err, ErrInvalidL2OutputRoot)
	})

	t.Run("ZeroClaim", func(t *testing.T) {
		file := valid()
		file.L2Claim = common.Hash{}.Hex()
		cfg, err := file.Config()
		require.NoError(t, err)
		require.Equal(t, common.Hash{}, cfg.L2Claim)
	})

	t.Run("InvalidClaim", func(t *testing.T) {
		file := valid()
		file.L2Claim = "0xzz" + validL2Claim.Hex()[4:]
		_, err := file.Config()
		require.ErrorIs(t, err, ErrInvalidL2Claim)
	})
}
