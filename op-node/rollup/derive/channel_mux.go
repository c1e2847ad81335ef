package derive

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// stageKind tags which fork variant of a multiplexed stage is active.
type stageKind uint8

const (
	stageUnset stageKind = iota
	stagePreHolocene
	stageHolocene
)

func (k stageKind) String() string {
	switch k {
	case stagePreHolocene:
		return "pre-holocene"
	case stageHolocene:
		return "holocene"
	default:
		return "unset"
	}
}

// ChannelMux multiplexes between the ChannelBank (pre-Holocene) and the ChannelAssembler (Holocene).
// The variant is picked on Reset from the L1 origin, or switched explicitly with Transform.
type ChannelMux struct {
	log     log.Logger
	spec    *rollup.ChainSpec
	prev    NextFrameProvider
	metrics Metrics

	kind      stageKind
	bank      *ChannelBank
	assembler *ChannelAssembler
}

// NewChannelMux returns a ChannelMux without an active variant. Reset has to be called before
// calling other methods, to activate the right stage for a given L1 origin.
func NewChannelMux(log log.Logger, spec *rollup.ChainSpec, prev NextFrameProvider, m Metrics) *ChannelMux {
	return &ChannelMux{
		log:     log,
		spec:    spec,
		prev:    prev,
		metrics: m,
	}
}

func (c *ChannelMux) Reset(ctx context.Context, base eth.L1BlockRef, sysCfg eth.SystemConfig) error {
	if c.spec.IsHolocene(base.Time) {
		if c.kind != stageHolocene {
			c.log.Info("ChannelMux: activating Holocene stage during reset", "origin", base)
			c.activateAssembler()
		}
		return c.assembler.Reset(ctx, base, sysCfg)
	}
	if c.kind != stagePreHolocene {
		c.log.Info("ChannelMux: activating pre-Holocene stage during reset", "origin", base)
		c.kind, c.bank, c.assembler = stagePreHolocene, NewChannelBank(c.log, c.spec, c.prev, c.metrics), nil
	}
	return c.bank.Reset(ctx, base, sysCfg)
}

func (c *ChannelMux) activateAssembler() {
	c.kind, c.bank, c.assembler = stageHolocene, nil, NewChannelAssembler(c.log, c.spec, c.prev, c.metrics)
}

func (c *ChannelMux) Transform(f rollup.ForkName) {
	switch f {
	case rollup.Holocene:
		c.transformHolocene()
	}
}

func (c *ChannelMux) transformHolocene() {
	switch c.kind {
	case stagePreHolocene:
		c.log.Info("ChannelMux: transforming to Holocene stage")
		c.activateAssembler()
	case stageHolocene:
		// A reset to the activation block keeps the previous origin, so Transform is not reached twice.
		panic(fmt.Sprintf("Holocene ChannelAssembler already active, old origin: %v", c.assembler.Origin()))
	default:
		panic(fmt.Sprintf("channel stage transformed before reset: %v", c.kind))
	}
}

func (c *ChannelMux) Origin() eth.L1BlockRef {
	return c.prev.Origin()
}

func (c *ChannelMux) NextRawChannel(ctx context.Context) ([]byte, error) {
	switch c.kind {
	case stagePreHolocene:
		return c.bank.NextRawChannel(ctx)
	case stageHolocene:
		return c.assembler.NextRawChannel(ctx)
	default:
		return nil, NewResetError(fmt.Errorf("channel stage used before reset"))
	}
}

// FlushChannel drops the Holocene channel in flight. The pre-Holocene bank has no notion of a
// single current channel, so it ignores the call.
func (c *ChannelMux) FlushChannel() {
	if c.kind == stageHolocene {
		c.assembler.FlushChannel()
	}
}
