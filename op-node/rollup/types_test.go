package rollup

import (
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

func randConfig() *Config {
	rng := rand.New(rand.NewSource(1234))
	randHash := func() (out [32]byte) {
		rng.Read(out[:])
		return
	}
	randAddr := func() (out common.Address) { // we need generics...
		rng.Read(out[:])
		return
	}
	return &Config{
		Genesis: Genesis{
			L1:     eth.BlockID{Hash: randHash(), Number: 424242},
			L2:     eth.BlockID{Hash: randHash(), Number: 1337},
			L2Time: uint64(time.Now().Unix()),
			SystemConfig: eth.SystemConfig{
				BatcherAddr: randAddr(),
				Overhead:    randHash(),
				Scalar:      randHash(),
				GasLimit:    1234567,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      100,
		SeqWindowSize:          2,
		ChannelTimeoutBedrock:  123,
		L1ChainID:              big.NewInt(900),
		L2ChainID:              big.NewInt(901),
		BatchInboxAddress:      randAddr(),
		DepositContractAddress: randAddr(),
		L1SystemConfigAddress:  randAddr(),
	}
}

func TestConfigJSON(t *testing.T) {
	config := randConfig()
	data, err := json.Marshal(config)
	assert.NoError(t, err)
	var roundTripped Config
	assert.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, &roundTripped, config)
}

func TestLoadRollupConfig(t *testing.T) {
	config := randConfig()
	data, err := json.Marshal(config)
	require.NoError(t, err)
	dir := t.TempDir()

	path := filepath.Join(dir, "rollup.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := LoadRollupConfig(path)
	require.NoError(t, err)
	require.Equal(t, config, loaded)

	config.BlockTime = 0
	data, err = json.Marshal(config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = LoadRollupConfig(path)
	require.ErrorIs(t, err, ErrBlockTimeZero)

	require.NoError(t, os.WriteFile(path, []byte(`{"unknown_field": 1}`), 0o644))
	_, err = LoadRollupConfig(path)
	require.ErrorContains(t, err, "failed to decode rollup config")
}

func TestActivations(t *testing.T) {
	for _, fork := range []ForkName{Regolith, Canyon, Delta, Ecotone, Fjord, Granite, Holocene, Isthmus} {
		t.Run(string(fork), func(t *testing.T) {
			config := randConfig()
			require.False(t, config.IsForkActive(fork, 0), "not active if not set")

			config.ActivateAtGenesis(fork)
			require.True(t, config.IsForkActive(fork, 0), "active at genesis")
			require.True(t, config.IsForkActive(fork, 123), "active after genesis")

			ts := uint64(10)
			*config.ActivationTimeFor(fork) = ts
			require.False(t, config.IsForkActive(fork, ts-1), "not active before activation")
			require.True(t, config.IsForkActive(fork, ts), "active at activation")
		})
	}
}

func TestConfig_Check(t *testing.T) {
	tests := []struct {
		name        string
		modifier    func(cfg *Config)
		expectedErr error
	}{
		{
			name:        "BlockTimeZero",
			modifier:    func(cfg *Config) { cfg.BlockTime = 0 },
			expectedErr: ErrBlockTimeZero,
		},
		{
			name:        "ChannelTimeoutBedrockZero",
			modifier:    func(cfg *Config) { cfg.ChannelTimeoutBedrock = 0 },
			expectedErr: ErrMissingChannelTimeout,
		},
		{
			name:        "SeqWindowSizeOne",
			modifier:    func(cfg *Config) { cfg.SeqWindowSize = 1 },
			expectedErr: ErrInvalidSeqWindowSize,
		},
		{
			name:        "MaxSequencerDriftZero",
			modifier:    func(cfg *Config) { cfg.MaxSequencerDrift = 0 },
			expectedErr: ErrInvalidMaxSeqDrift,
		},
		{
			name:        "NoL1Genesis",
			modifier:    func(cfg *Config) { cfg.Genesis.L1.Hash = common.Hash{} },
			expectedErr: ErrMissingGenesisL1Hash,
		},
		{
			name:        "NoL2Genesis",
			modifier:    func(cfg *Config) { cfg.Genesis.L2.Hash = common.Hash{} },
			expectedErr: ErrMissingGenesisL2Hash,
		},
		{
			name:        "GenesisHashesEqual",
			modifier:    func(cfg *Config) { cfg.Genesis.L2.Hash = cfg.Genesis.L1.Hash },
			expectedErr: ErrGenesisHashesSame,
		},
		{
			name:        "GenesisL2TimeZero",
			modifier:    func(cfg *Config) { cfg.Genesis.L2Time = 0 },
			expectedErr: ErrMissingGenesisL2Time,
		},
		{
			name:        "NoBatcherAddr",
			modifier:    func(cfg *Config) { cfg.Genesis.SystemConfig.BatcherAddr = common.Address{} },
			expectedErr: ErrMissingBatcherAddr,
		},
		{
			name:        "NoScalar",
			modifier:    func(cfg *Config) { cfg.Genesis.SystemConfig.Scalar = eth.Bytes32{} },
			expectedErr: ErrMissingScalar,
		},
		{
			name:        "NoGasLimit",
			modifier:    func(cfg *Config) { cfg.Genesis.SystemConfig.GasLimit = 0 },
			expectedErr: ErrMissingGasLimit,
		},
		{
			name:        "NoBatchInboxAddress",
			modifier:    func(cfg *Config) { cfg.BatchInboxAddress = common.Address{} },
			expectedErr: ErrMissingBatchInboxAddress,
		},
		{
			name:        "NoDepositContractAddress",
			modifier:    func(cfg *Config) { cfg.DepositContractAddress = common.Address{} },
			expectedErr: ErrMissingDepositContractAddress,
		},
		{
			name:        "NoL1ChainId",
			modifier:    func(cfg *Config) { cfg.L1ChainID = nil },
			expectedErr: ErrMissingL1ChainID,
		},
		{
			name:        "NoL2ChainId",
			modifier:    func(cfg *Config) { cfg.L2ChainID = nil },
			expectedErr: ErrMissingL2ChainID,
		},
		{
			name:        "ChainIDsEqual",
			modifier:    func(cfg *Config) { cfg.L2ChainID = cfg.L1ChainID },
			expectedErr: ErrChainIDsSame,
		},
		{
			name:        "L1ChainIDNegative",
			modifier:    func(cfg *Config) { cfg.L1ChainID = big.NewInt(-1) },
			expectedErr: ErrL1ChainIDNotPositive,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := randConfig()
			test.modifier(cfg)
			err := cfg.Check()
			assert.ErrorIs(t, err, test.expectedErr)
		})
	}

	forkTests := []struct {
		name        string
		modifier    func(cfg *Config)
		expectedErr string
	}{
		{
			name: "PriorForkMissing",
			modifier: func(cfg *Config) {
				ecotoneTime := uint64(1)
				cfg.EcotoneTime = &ecotoneTime
			},
			expectedErr: "fork ecotone set (to 1), but prior fork delta missing",
		},
		{
			name: "PriorForkHasHigherOffset",
			modifier: func(cfg *Config) {
				regolithTime := uint64(2)
				canyonTime := uint64(1)
				cfg.RegolithTime = &regolithTime
				cfg.CanyonTime = &canyonTime
			},
			expectedErr: "fork canyon set to 1, but prior fork regolith has higher offset 2",
		},
		{
			name: "InvalidAltDACommitment",
			modifier: func(cfg *Config) {
				cfg.AltDAConfig = &AltDAConfig{CommitmentType: "nonsense"}
			},
			expectedErr: "invalid commitment type",
		},
	}

	for _, test := range forkTests {
		t.Run(test.name, func(t *testing.T) {
			cfg := randConfig()
			test.modifier(cfg)
			err := cfg.Check()
			assert.ErrorContains(t, err, test.expectedErr)
		})
	}

	t.Run("FjordAtGenesisWithoutDrift", func(t *testing.T) {
		cfg := randConfig()
		cfg.MaxSequencerDrift = 0
		cfg.ActivateAtGenesis(Fjord)
		require.NoError(t, cfg.Check())
	})

	t.Run("UpgradeForkAfterGenesis", func(t *testing.T) {
		for _, fork := range []ForkName{Ecotone, Fjord, Isthmus} {
			cfg := randConfig()
			cfg.ActivateAtGenesis(fork)
			later := cfg.Genesis.L2Time + 100
			switch fork {
			case Ecotone:
				cfg.EcotoneTime = &later
			case Fjord:
				cfg.FjordTime = &later
			case Isthmus:
				cfg.IsthmusTime = &later
			}
			require.ErrorIs(t, cfg.Check(), ErrUnsupportedUpgradeFork, "fork %s", fork)
		}
	})

	t.Run("MantleSkadiAfterGenesis", func(t *testing.T) {
		cfg := randConfig()
		later := cfg.Genesis.L2Time + 100
		cfg.MantleSkadiTime = &later
		require.NoError(t, cfg.Check())
		require.False(t, cfg.IsMantleSkadi(cfg.Genesis.L2Time))
		require.True(t, cfg.IsMantleSkadiActivationBlock(later))
		require.False(t, cfg.IsMantleSkadiActivationBlock(later+cfg.BlockTime))
	})
}

func TestTimestampForBlock(t *testing.T) {
	config := randConfig()

	tests := []struct {
		name              string
		genesisTime       uint64
		genesisBlock      uint64
		blockTime         uint64
		blockNum          uint64
		expectedBlockTime uint64
	}{
		{
			name:              "FirstBlock",
			genesisTime:       100,
			genesisBlock:      0,
			blockTime:         2,
			blockNum:          0,
			expectedBlockTime: 100,
		},
		{
			name:              "SecondBlock",
			genesisTime:       100,
			genesisBlock:      0,
			blockTime:         2,
			blockNum:          1,
			expectedBlockTime: 102,
		},
		{
			name:              "NBlock",
			genesisTime:       100,
			genesisBlock:      0,
			blockTime:         2,
			blockNum:          25,
			expectedBlockTime: 150,
		},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("TestTimestampForBlock_%s", test.name), func(t *testing.T) {
			config.Genesis.L2Time = test.genesisTime
			config.Genesis.L2.Number = test.genesisBlock
			config.BlockTime = test.blockTime

			timestamp := config.TimestampForBlock(test.blockNum)
			assert.Equal(t, timestamp, test.expectedBlockTime)

			num, err := config.TargetBlockNumber(timestamp)
			require.NoError(t, err)
			assert.Equal(t, test.blockNum, num)
		})
	}

	_, err := config.TargetBlockNumber(config.Genesis.L2Time - 1)
	require.Error(t, err)
}

func TestConfig_IsActivationBlock(t *testing.T) {
	forks := []struct {
		name    ForkName
		setTime func(cfg *Config, ts uint64)
	}{
		{Canyon, func(cfg *Config, ts uint64) { cfg.CanyonTime = &ts }},
		{Delta, func(cfg *Config, ts uint64) { cfg.DeltaTime = &ts }},
		{Ecotone, func(cfg *Config, ts uint64) { cfg.EcotoneTime = &ts }},
		{Fjord, func(cfg *Config, ts uint64) { cfg.FjordTime = &ts }},
		{Granite, func(cfg *Config, ts uint64) { cfg.GraniteTime = &ts }},
		{Holocene, func(cfg *Config, ts uint64) { cfg.HoloceneTime = &ts }},
		{Isthmus, func(cfg *Config, ts uint64) { cfg.IsthmusTime = &ts }},
	}

	for _, fork := range forks {
		ts := uint64(100)
		cfg := &Config{}
		fork.setTime(cfg, ts)

		t.Run(string(fork.name), func(t *testing.T) {
			// Crossing the fork boundary should return the fork name
			require.Equal(t, fork.name, cfg.IsActivationBlock(ts-1, ts))
			require.Equal(t, fork.name, cfg.IsActivationBlock(ts-1, ts+10))
			// Not crossing the fork boundary should return None
			require.Equal(t, None, cfg.IsActivationBlock(ts, ts+1))
			require.Equal(t, None, cfg.IsActivationBlock(ts+1, ts+2))
			// Before the fork
			require.Equal(t, None, cfg.IsActivationBlock(ts-10, ts-1))
		})
	}
}

func TestConfig_ActivatedForks(t *testing.T) {
	at := func(ts uint64) *uint64 { return &ts }
	cfg := &Config{
		CanyonTime:   at(0),
		DeltaTime:    at(0),
		EcotoneTime:  at(50),
		FjordTime:    at(50),
		GraniteTime:  at(100),
		HoloceneTime: at(200),
		IsthmusTime:  at(200),
	}

	require.Empty(t, cfg.ActivatedForks(10, 20))
	require.Equal(t, []ForkName{Ecotone, Fjord}, cfg.ActivatedForks(49, 50))
	require.Equal(t, []ForkName{Holocene, Isthmus}, cfg.ActivatedForks(150, 250))
	// A gap spanning several activation times returns all of them in order.
	require.Equal(t, []ForkName{Ecotone, Fjord, Granite, Holocene, Isthmus}, cfg.ActivatedForks(10, 300))
	require.Empty(t, cfg.ActivatedForks(200, 300))
}
