package derive

import (
	"fmt"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// Signal is a control message that the driver sends down through every stage of the pipeline.
// The set of signals is closed: ResetSignal, FlushChannelSignal and ActivationSignal.
type Signal interface {
	fmt.Stringer
	signal()
}

// ResetSignal rewinds every stage to the given L1 origin, with the system config as of that origin.
type ResetSignal struct {
	L1Origin     eth.L1BlockRef
	SystemConfig eth.SystemConfig
}

func (s ResetSignal) String() string {
	return fmt.Sprintf("reset(origin: %s)", s.L1Origin)
}

func (ResetSignal) signal() {}

// FlushChannelSignal drops the channel that is currently being read from.
// The driver sends it after a derived block turned out to be invalid, with Holocene active.
type FlushChannelSignal struct{}

func (FlushChannelSignal) String() string {
	return "flush-channel"
}

func (FlushChannelSignal) signal() {}

// ActivationSignal tells the multiplexed stages that a hardfork activated at the current origin.
type ActivationSignal struct {
	Fork rollup.ForkName
}

func (s ActivationSignal) String() string {
	return fmt.Sprintf("activate(%s)", s.Fork)
}

func (ActivationSignal) signal() {}

// ForkTransformer is implemented by stages that switch implementation at a hardfork.
type ForkTransformer interface {
	Transform(rollup.ForkName)
}
