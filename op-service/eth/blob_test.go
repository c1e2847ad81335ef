package eth

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobEncodeDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	cases := []int{0, 1, 26, 27, 28, 123, 124, 127, 1000, 130044 / 2, MaxBlobDataSize}
	for _, size := range cases {
		data := make([]byte, size)
		rng.Read(data)
		var b Blob
		require.NoError(t, b.FromData(data), "size %d", size)
		out, err := b.ToData()
		require.NoError(t, err, "size %d", size)
		require.Equal(t, Data(data), out, "size %d", size)
	}
}

func TestBlobTooLarge(t *testing.T) {
	var b Blob
	err := b.FromData(make([]byte, MaxBlobDataSize+1))
	require.ErrorIs(t, err, ErrBlobInputTooLarge)
}

func TestBlobInvalidEncoding(t *testing.T) {
	var b Blob
	require.NoError(t, b.FromData([]byte("hello world")))

	t.Run("version", func(t *testing.T) {
		bad := b
		bad[VersionOffset] = 1
		_, err := bad.ToData()
		require.ErrorIs(t, err, ErrBlobInvalidEncodingVersion)
	})
	t.Run("length", func(t *testing.T) {
		bad := b
		bad[2] = 0xff
		_, err := bad.ToData()
		require.ErrorIs(t, err, ErrBlobInvalidLength)
	})
	t.Run("field element", func(t *testing.T) {
		bad := b
		bad[32] = 0b1000_0000
		_, err := bad.ToData()
		require.ErrorIs(t, err, ErrBlobInvalidFieldElement)
	})
	t.Run("trailing data", func(t *testing.T) {
		bad := b
		bad[BlobSize-1] = 1
		_, err := bad.ToData()
		require.ErrorIs(t, err, ErrBlobExtraneousData)
	})
}
