package derive

import (
	"context"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// ChannelAssembler assembles frames into a raw channel. It replaces the ChannelBank since Holocene.
// Only one channel is ever in flight.
type ChannelAssembler struct {
	log     log.Logger
	spec    *rollup.ChainSpec
	metrics Metrics

	channel *Channel

	prev NextFrameProvider
}

// NewChannelAssembler creates the Holocene channel stage.
// It must only be used for derivation from Holocene origins.
func NewChannelAssembler(log log.Logger, spec *rollup.ChainSpec, prev NextFrameProvider, m Metrics) *ChannelAssembler {
	return &ChannelAssembler{
		log:     log,
		spec:    spec,
		metrics: m,
		prev:    prev,
	}
}

func (ca *ChannelAssembler) Reset(context.Context, eth.L1BlockRef, eth.SystemConfig) error {
	ca.resetChannel()
	return io.EOF
}

// FlushChannel drops the channel in flight, after its batches turned out invalid.
func (ca *ChannelAssembler) FlushChannel() {
	ca.resetChannel()
}

func (ca *ChannelAssembler) resetChannel() {
	ca.channel = nil
}

// Origin returns the current L1 origin
func (ca *ChannelAssembler) Origin() eth.L1BlockRef {
	return ca.prev.Origin()
}

func (ca *ChannelAssembler) channelTimedOut() bool {
	if ca.channel == nil {
		return false
	}
	// channel timeout is inclusive of the channel open block
	return ca.channel.OpenBlockNumber()+ca.spec.ChannelTimeout(ca.Origin().Time) < ca.Origin().Number
}

func (ca *ChannelAssembler) NextRawChannel(ctx context.Context) ([]byte, error) {
	if ca.channelTimedOut() {
		ca.metrics.RecordChannelTimedOut()
		ca.resetChannel()
	}

	origin := ca.Origin()

	// A completed channel is forwarded right away, so a ready channel here is a bug.
	if ca.channel != nil && ca.channel.IsReady() {
		return nil, NewCriticalError(errors.New("unexpected ready channel"))
	}

	// The frame queue only hands out frames of the current channel or the first frame of a new one,
	// so we can keep ingesting until a channel completes or the queue runs dry.
	for {
		frame, err := ca.prev.NextFrame(ctx)
		if err != nil {
			return nil, err
		}

		lgr := ca.log.New("origin", origin, "frame_channel", frame.ID, "frame_number", frame.FrameNumber, "is_last", frame.IsLast)

		if frame.FrameNumber == 0 {
			if ca.channel != nil {
				lgr.Warn("dropping incomplete channel for new channel", "channel", ca.channel.ID())
			}
			ca.metrics.RecordHeadChannelOpened()
			ca.channel = NewChannel(frame.ID, origin)
		}
		if ca.channel == nil {
			lgr.Warn("dropping non-first frame without channel")
			continue // read more frames
		}

		// The frame queue orders frames per load, but not across frames that were already dequeued.
		if frame.ID != ca.channel.ID() || int(frame.FrameNumber) != len(ca.channel.inputs) {
			lgr.Warn("dropping out of order frame", "channel", ca.channel.ID(), "expected_frame_number", len(ca.channel.inputs))
			continue // read more frames
		}
		if err := ca.channel.AddFrame(frame, origin); err != nil {
			lgr.Warn("failed to add frame to channel", "channel", ca.channel.ID(), "err", err)
			continue // read more frames
		}
		if ca.channel.Size() > ca.spec.MaxRLPBytesPerChannel(origin.Time) {
			lgr.Warn("dropping oversized channel", "channel", ca.channel.ID())
			ca.resetChannel()
			continue // read more frames
		}

		if frame.IsLast {
			break // forward current complete channel
		}
	}

	ch := ca.channel
	// Exiting the ingestion loop guarantees a ready channel.
	if !ch.IsReady() {
		return nil, NewCriticalError(errors.New("unexpected non-ready channel"))
	}

	ca.resetChannel()
	r := ch.Reader()
	return io.ReadAll(r)
}
