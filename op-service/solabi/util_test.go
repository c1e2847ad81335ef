package solabi

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestWordCodec(t *testing.T) {
	var buf bytes.Buffer
	addr := common.Address{0x42}
	require.NoError(t, WriteAddress(&buf, addr))
	require.NoError(t, WriteUint64(&buf, 1234))
	require.NoError(t, WriteUint32(&buf, 56))
	require.NoError(t, WriteUint256(&buf, big.NewInt(789)))
	require.Equal(t, 4*32, buf.Len())

	r := bytes.NewReader(buf.Bytes())
	a, err := ReadAddress(r)
	require.NoError(t, err)
	require.Equal(t, addr, a)
	n64, err := ReadUint64(r)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), n64)
	n32, err := ReadUint32(r)
	require.NoError(t, err)
	require.Equal(t, uint32(56), n32)
	n256, err := ReadUint256(r)
	require.NoError(t, err)
	require.Equal(t, int64(789), n256.Int64())
	require.True(t, EmptyReader(r))
}

func TestDirtyPadding(t *testing.T) {
	word := make([]byte, 32)
	word[0] = 1
	_, err := ReadAddress(bytes.NewReader(word))
	require.ErrorContains(t, err, "padding")
	_, err = ReadUint64(bytes.NewReader(word))
	require.ErrorContains(t, err, "padding")
}

func TestReadAndValidateSignature(t *testing.T) {
	sig := []byte{1, 2, 3, 4}
	_, err := ReadAndValidateSignature(bytes.NewReader([]byte{1, 2, 3, 4, 5}), sig)
	require.NoError(t, err)
	_, err = ReadAndValidateSignature(bytes.NewReader([]byte{1, 2, 3, 5}), sig)
	require.Error(t, err)
}
