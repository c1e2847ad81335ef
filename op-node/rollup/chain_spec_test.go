package rollup

import (
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-node/params"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
)

func u64ptr(n uint64) *uint64 {
	return &n
}

var testConfig = Config{
	Genesis: Genesis{
		L1:     eth.BlockID{Hash: common.HexToHash("0x438335a20d98863a4c0c97999eb2481921ccd28553eac6f913af7c12aec04108"), Number: 17422590},
		L2:     eth.BlockID{Hash: common.HexToHash("0xdbf6a80fef073de06add9b0d14026d6e5a86c85f6d102c36d3d8e9cf89c2afd3"), Number: 105235063},
		L2Time: 0,
		SystemConfig: eth.SystemConfig{
			BatcherAddr: common.HexToAddress("0x6887246668a3b87f54deb3b94ba47a6f63f32985"),
			Overhead:    eth.Bytes32(common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000bc")),
			Scalar:      eth.Bytes32(common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000a6fe0")),
			GasLimit:    30_000_000,
		},
	},
	BlockTime:              2,
	MaxSequencerDrift:      600,
	SeqWindowSize:          3600,
	ChannelTimeoutBedrock:  300,
	L1ChainID:              big.NewInt(1),
	L2ChainID:              big.NewInt(10),
	RegolithTime:           u64ptr(10),
	CanyonTime:             u64ptr(20),
	DeltaTime:              u64ptr(30),
	EcotoneTime:            u64ptr(40),
	FjordTime:              u64ptr(50),
	GraniteTime:            u64ptr(60),
	HoloceneTime:           u64ptr(70),
	IsthmusTime:            u64ptr(80),
	BatchInboxAddress:      common.HexToAddress("0xff00000000000000000000000000000000000010"),
	DepositContractAddress: common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed"),
	L1SystemConfigAddress:  common.HexToAddress("0x229047fed2591dbec1eF1118d64F7aF3dB9EB290"),
}

func TestChainSpec_CanyonForkActivation(t *testing.T) {
	c := NewChainSpec(&testConfig)
	tests := []struct {
		name     string
		blockNum uint64
		isCanyon bool
	}{
		{"Genesis", 0, false},
		{"CanyonTimeMinusOne", 19, false},
		{"CanyonTime", 20, true},
		{"CanyonTimePlusOne", 21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.isCanyon, c.IsCanyon(tt.blockNum))
		})
	}
}

func TestChainSpec_MaxChannelBankSize(t *testing.T) {
	c := NewChainSpec(&testConfig)
	require.Equal(t, uint64(maxChannelBankSizeBedrock), c.MaxChannelBankSize(0))
	require.Equal(t, uint64(maxChannelBankSizeBedrock), c.MaxChannelBankSize(49))
	require.Equal(t, uint64(maxChannelBankSizeFjord), c.MaxChannelBankSize(50))
}

func TestChainSpec_MaxRLPBytesPerChannel(t *testing.T) {
	c := NewChainSpec(&testConfig)
	require.Equal(t, uint64(10_000_000), c.MaxRLPBytesPerChannel(49))
	require.Equal(t, uint64(100_000_000), c.MaxRLPBytesPerChannel(50))
}

func TestChainSpec_ChannelTimeout(t *testing.T) {
	c := NewChainSpec(&testConfig)
	require.Equal(t, uint64(300), c.ChannelTimeout(0))
	require.Equal(t, uint64(300), c.ChannelTimeout(59))
	require.Equal(t, params.ChannelTimeoutGranite, c.ChannelTimeout(60))
}

func TestChainSpec_MaxSequencerDrift(t *testing.T) {
	c := NewChainSpec(&testConfig)
	require.Equal(t, uint64(600), c.MaxSequencerDrift(49))
	require.Equal(t, params.SequencerDriftFjord, c.MaxSequencerDrift(50))
}

func TestCheckForkActivation(t *testing.T) {
	c := NewChainSpec(&testConfig)
	lgr := testlog.Logger(t, slog.LevelDebug)

	c.CheckForkActivation(lgr, eth.L2BlockRef{Time: 35, Number: 5})
	require.Equal(t, Delta, c.CurrentFork(), "detects the active fork on first block")

	c.CheckForkActivation(lgr, eth.L2BlockRef{Time: 39, Number: 6})
	require.Equal(t, Delta, c.CurrentFork())

	c.CheckForkActivation(lgr, eth.L2BlockRef{Time: 41, Number: 7})
	require.Equal(t, Ecotone, c.CurrentFork())

	c.CheckForkActivation(lgr, eth.L2BlockRef{Time: 90, Number: 8})
	require.Equal(t, Fjord, c.CurrentFork(), "advances one fork at a time")
}
