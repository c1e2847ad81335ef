package derive

import (
	"fmt"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// TipCursor is the L2 safe head the pipeline derives on top of, with its output root.
type TipCursor struct {
	L2SafeHead eth.L2BlockRef
	OutputRoot eth.Bytes32
}

// PipelineCursor tracks the derivation progress of the driver. Only the driver owns it,
// and it only moves forward by Advance after a derived block has been executed.
type PipelineCursor struct {
	Origin         eth.L1BlockRef
	ChannelTimeout uint64

	tip TipCursor
}

func NewPipelineCursor(origin eth.L1BlockRef, channelTimeout uint64, tip TipCursor) *PipelineCursor {
	return &PipelineCursor{
		Origin:         origin,
		ChannelTimeout: channelTimeout,
		tip:            tip,
	}
}

func (c *PipelineCursor) Tip() TipCursor {
	return c.tip
}

func (c *PipelineCursor) L2SafeHead() eth.L2BlockRef {
	return c.tip.L2SafeHead
}

// Advance moves the cursor to the next safe head, derived from the given L1 origin.
// The new safe head must be the child of the current one.
func (c *PipelineCursor) Advance(origin eth.L1BlockRef, l2SafeHead eth.L2BlockRef, outputRoot eth.Bytes32) error {
	prev := c.tip.L2SafeHead
	if l2SafeHead.Number != prev.Number+1 || l2SafeHead.ParentHash != prev.Hash {
		return fmt.Errorf("cannot advance cursor from %s to non-child block %s (parent %s)", prev, l2SafeHead, l2SafeHead.ParentID())
	}
	if origin.Number < c.Origin.Number {
		return fmt.Errorf("cannot advance cursor origin backwards from %s to %s", c.Origin, origin)
	}
	c.Origin = origin
	c.tip = TipCursor{L2SafeHead: l2SafeHead, OutputRoot: outputRoot}
	return nil
}
