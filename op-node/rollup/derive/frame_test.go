package derive

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func marshalFrames(t *testing.T, frames ...Frame) []byte {
	var buf bytes.Buffer
	buf.WriteByte(DerivationVersion0)
	for _, f := range frames {
		require.NoError(t, f.MarshalBinary(&buf))
	}
	return buf.Bytes()
}

func TestParseFrames(t *testing.T) {
	frameA := Frame{ID: ChannelID{0xaa}, FrameNumber: 0, Data: []byte{1, 2, 3}}
	frameB := Frame{ID: ChannelID{0xbb}, FrameNumber: 7, Data: []byte{}, IsLast: true}

	t.Run("Multiple", func(t *testing.T) {
		frames, err := ParseFrames(marshalFrames(t, frameA, frameB))
		require.NoError(t, err)
		require.Equal(t, []Frame{frameA, frameB}, frames)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := ParseFrames(nil)
		require.ErrorContains(t, err, "must not be empty")
	})

	t.Run("NoFrames", func(t *testing.T) {
		_, err := ParseFrames([]byte{DerivationVersion0})
		require.ErrorContains(t, err, "any frames")
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		data := marshalFrames(t, frameA)
		data[0] = 1
		_, err := ParseFrames(data)
		require.ErrorContains(t, err, "invalid derivation format byte")
	})

	t.Run("Truncated", func(t *testing.T) {
		data := marshalFrames(t, frameA, frameB)
		_, err := ParseFrames(data[:len(data)-1])
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("InvalidIsLast", func(t *testing.T) {
		data := marshalFrames(t, frameA)
		data[len(data)-1] = 2
		_, err := ParseFrames(data)
		require.ErrorContains(t, err, "invalid byte as is_last")
	})

	t.Run("TooLarge", func(t *testing.T) {
		data := marshalFrames(t, frameA)
		// the data length follows the 16 byte channel ID and the 2 byte frame number
		binary.BigEndian.PutUint32(data[1+16+2:], MaxFrameLen+1)
		_, err := ParseFrames(data)
		require.ErrorContains(t, err, "too large")
	})
}

func TestParseFramesRandom(t *testing.T) {
	f := fuzz.NewWithSeed(0xf4a3e).NilChance(0).NumElements(1, 64)

	for i := 0; i < 100; i++ {
		var frames []Frame
		f.Fuzz(&frames)
		parsed, err := ParseFrames(marshalFrames(t, frames...))
		require.NoError(t, err)
		require.Equal(t, frames, parsed)
	}

	for i := 0; i < 1000; i++ {
		var data []byte
		f.Fuzz(&data)
		data[0] = DerivationVersion0
		require.NotPanics(t, func() {
			_, _ = ParseFrames(data)
		})
	}
}
