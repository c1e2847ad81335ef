package rollup

import (
	"math/big"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-core/forks"
	"github.com/mantlenetworkio/mantle-fp/op-node/params"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// maxChannelBankSize is the amount of memory space, in number of bytes,
// till the bank is pruned by removing channels, starting with the oldest channel.
// It's value is changed with the Fjord network upgrade.
const (
	maxChannelBankSizeBedrock = 100_000_000
	maxChannelBankSizeFjord   = 1_000_000_000
)

// MaxRLPBytesPerChannel is the maximum amount of bytes that will be read from
// a channel. This limit is set when decoding the RLP.
const (
	maxRLPBytesPerChannelBedrock = 10_000_000
	maxRLPBytesPerChannelFjord   = 100_000_000
)

type ForkName = forks.Name

const (
	Bedrock  = forks.Bedrock
	Regolith = forks.Regolith
	Canyon   = forks.Canyon
	Delta    = forks.Delta
	Ecotone  = forks.Ecotone
	Fjord    = forks.Fjord
	Granite  = forks.Granite
	Holocene = forks.Holocene
	Isthmus  = forks.Isthmus
	None     = forks.None
)

type ChainSpec struct {
	config      *Config
	currentFork ForkName
}

func NewChainSpec(config *Config) *ChainSpec {
	return &ChainSpec{config: config}
}

// L2ChainID returns the chain ID of the L2 chain.
func (s *ChainSpec) L2ChainID() *big.Int {
	return s.config.L2ChainID
}

// L2GenesisTime returns the genesis time of the L2 chain.
func (s *ChainSpec) L2GenesisTime() uint64 {
	return s.config.Genesis.L2Time
}

// IsCanyon returns true if t >= canyon_time
func (s *ChainSpec) IsCanyon(t uint64) bool {
	return s.config.IsCanyon(t)
}

// IsHolocene returns true if t >= holocene_time
func (s *ChainSpec) IsHolocene(t uint64) bool {
	return s.config.IsHolocene(t)
}

// MaxChannelBankSize returns the maximum number of bytes the can allocated inside the channel bank
// before pruning occurs at the given timestamp.
func (s *ChainSpec) MaxChannelBankSize(t uint64) uint64 {
	if s.config.IsFjord(t) {
		return maxChannelBankSizeFjord
	}
	return maxChannelBankSizeBedrock
}

// ChannelTimeout returns the channel timeout constant.
func (s *ChainSpec) ChannelTimeout(t uint64) uint64 {
	if s.config.IsGranite(t) {
		return params.ChannelTimeoutGranite
	}
	return s.config.ChannelTimeoutBedrock
}

// MaxRLPBytesPerChannel returns the maximum amount of bytes that will be read from
// a channel at a given timestamp.
func (s *ChainSpec) MaxRLPBytesPerChannel(t uint64) uint64 {
	if s.config.IsFjord(t) {
		return maxRLPBytesPerChannelFjord
	}
	return maxRLPBytesPerChannelBedrock
}

// IsFeatMaxSequencerDriftConstant specifies in which fork the max sequencer drift change to a
// constant will be performed.
func (s *ChainSpec) IsFeatMaxSequencerDriftConstant(t uint64) bool {
	return s.config.IsFjord(t)
}

// MaxSequencerDrift returns the maximum sequencer drift for the given block timestamp. Until Fjord,
// this was a rollup configuration parameter. Since Fjord, it is a constant, so its effective value
// should always be queried via the ChainSpec.
func (s *ChainSpec) MaxSequencerDrift(t uint64) uint64 {
	if s.IsFeatMaxSequencerDriftConstant(t) {
		return params.SequencerDriftFjord
	}
	return s.config.MaxSequencerDrift
}

// CheckForkActivation logs the fork of the given block the first time it is seen,
// and every fork activation after that.
func (s *ChainSpec) CheckForkActivation(log log.Logger, block eth.L2BlockRef) {
	if s.currentFork == "" {
		s.currentFork = Bedrock
		for _, fork := range forks.From(Regolith) {
			if s.config.IsForkActive(fork, block.Time) {
				s.currentFork = fork
			}
		}
		log.Info("Current hardfork version detected", "forkName", s.currentFork)
		return
	}

	next := forks.Next(s.currentFork)
	if next == None {
		return
	}
	if s.config.IsForkActive(next, block.Time) {
		s.currentFork = next
		log.Info("Detected hardfork activation block", "forkName", s.currentFork, "timestamp", block.Time, "blockNum", block.Number, "hash", block.Hash)
	}
}

// CurrentFork returns the last fork observed by CheckForkActivation.
func (s *ChainSpec) CurrentFork() ForkName {
	return s.currentFork
}
