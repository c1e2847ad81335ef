package derive

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// DerivationVersion0 is the version byte of the only supported batch-submission data format.
const DerivationVersion0 = 0

// MaxFrameLen is the maximum frame data length. Frames carrying more data are malformed.
const MaxFrameLen = 1_000_000

// FrameV0OverHeadSize is the size of the frame fields that wrap the frame data:
// channel ID (16), frame number (2), frame data length (4) and the is_last flag (1).
const FrameV0OverHeadSize = 23

// ChannelIDLength defines the length of the channel IDs
const ChannelIDLength = 16

// ChannelID is an opaque identifier for a channel. It is 128 bits to be globally unique.
type ChannelID [ChannelIDLength]byte

func (id ChannelID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// TerminalString implements log.TerminalStringer, formatting a string for console output during logging.
func (id ChannelID) TerminalString() string {
	return fmt.Sprintf("%x..%x", id[:3], id[13:])
}

func (id ChannelID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ChannelID) UnmarshalText(text []byte) error {
	h, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(h) != ChannelIDLength {
		return errors.New("invalid length")
	}
	copy(id[:], h)
	return nil
}
