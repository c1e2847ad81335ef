package rollup

import (
	"fmt"

	"github.com/mantlenetworkio/mantle-fp/op-core/forks"
)

type MantleForkName = forks.MantleForkName

const MantleSkadi = forks.MantleSkadi

func (c *Config) IsMantleForkActive(fork MantleForkName, timestamp uint64) bool {
	activationTime := c.MantleActivationTime(fork)
	return activationTime != nil && timestamp >= *activationTime
}

// IsMantleSkadi returns true if the MantleSkadi hardfork is active at or past the given timestamp.
func (c *Config) IsMantleSkadi(timestamp uint64) bool {
	return c.IsMantleForkActive(MantleSkadi, timestamp)
}

// IsMantleSkadiActivationBlock returns whether the specified block is the first block subject to the
// MantleSkadi upgrade.
func (c *Config) IsMantleSkadiActivationBlock(l2BlockTime uint64) bool {
	return c.IsMantleSkadi(l2BlockTime) &&
		l2BlockTime >= c.BlockTime &&
		!c.IsMantleSkadi(l2BlockTime-c.BlockTime)
}

func (c *Config) MantleActivationTime(fork MantleForkName) *uint64 {
	switch fork {
	case forks.MantleSkadi:
		return c.MantleSkadiTime
	default:
		panic(fmt.Sprintf("unknown mantle fork: %v", fork))
	}
}

func (c *Config) MantleActivateAtGenesis(fork MantleForkName) {
	if !forks.IsValidMantleFork(fork) {
		panic(fmt.Sprintf("invalid mantle fork: %s", fork))
	}
	switch fork {
	case forks.MantleSkadi:
		c.MantleSkadiTime = new(uint64)
	}
}
