package testutils

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

type MockBlockInfo struct {
	// Prefixed all fields with "Info" to avoid collisions with the interface method names.

	InfoHash             common.Hash
	InfoParentHash       common.Hash
	InfoCoinbase         common.Address
	InfoRoot             common.Hash
	InfoNum              uint64
	InfoTime             uint64
	InfoMixDigest        [32]byte
	InfoBaseFee          *big.Int
	InfoBlobBaseFee      *big.Int
	InfoExcessBlobGas    *uint64
	InfoReceiptRoot      common.Hash
	InfoGasUsed          uint64
	InfoGasLimit         uint64
	InfoHeaderRLP        []byte
	InfoParentBeaconRoot *common.Hash
}

var _ eth.BlockInfo = (*MockBlockInfo)(nil)

func (l *MockBlockInfo) Hash() common.Hash {
	return l.InfoHash
}

func (l *MockBlockInfo) ParentHash() common.Hash {
	return l.InfoParentHash
}

func (l *MockBlockInfo) Coinbase() common.Address {
	return l.InfoCoinbase
}

func (l *MockBlockInfo) Root() common.Hash {
	return l.InfoRoot
}

func (l *MockBlockInfo) NumberU64() uint64 {
	return l.InfoNum
}

func (l *MockBlockInfo) Time() uint64 {
	return l.InfoTime
}

func (l *MockBlockInfo) MixDigest() common.Hash {
	return l.InfoMixDigest
}

func (l *MockBlockInfo) BaseFee() *big.Int {
	return l.InfoBaseFee
}

func (l *MockBlockInfo) BlobBaseFee() *big.Int {
	return l.InfoBlobBaseFee
}

func (l *MockBlockInfo) ExcessBlobGas() *uint64 {
	return l.InfoExcessBlobGas
}

func (l *MockBlockInfo) ReceiptHash() common.Hash {
	return l.InfoReceiptRoot
}

func (l *MockBlockInfo) GasUsed() uint64 {
	return l.InfoGasUsed
}

func (l *MockBlockInfo) GasLimit() uint64 {
	return l.InfoGasLimit
}

func (l *MockBlockInfo) ParentBeaconRoot() *common.Hash {
	return l.InfoParentBeaconRoot
}

func (l *MockBlockInfo) HeaderRLP() ([]byte, error) {
	return l.InfoHeaderRLP, nil
}

func (l *MockBlockInfo) ID() eth.BlockID {
	return eth.BlockID{Hash: l.InfoHash, Number: l.InfoNum}
}

func (l *MockBlockInfo) BlockRef() eth.L1BlockRef {
	return eth.InfoToL1BlockRef(l)
}

func RandomBlockInfo(rng *rand.Rand) *MockBlockInfo {
	excessBlobGas := rng.Uint64() >> 20
	return &MockBlockInfo{
		InfoParentHash:    RandomHash(rng),
		InfoNum:           rng.Uint64() >> 8,
		InfoTime:          rng.Uint64() >> 8,
		InfoHash:          RandomHash(rng),
		InfoBaseFee:       big.NewInt(rng.Int63n(1000_000 * 1e9)), // a million GWEI
		InfoBlobBaseFee:   big.NewInt(rng.Int63n(2000_000 * 1e9)), // two million GWEI
		InfoExcessBlobGas: &excessBlobGas,
		InfoReceiptRoot:   types.EmptyRootHash,
		InfoRoot:          RandomHash(rng),
		InfoGasUsed:       rng.Uint64() >> 8,
		InfoGasLimit:      rng.Uint64() >> 8,
		InfoMixDigest:     RandomHash(rng),
	}
}

// MakeBlockInfo returns a generator of random block infos, each adjusted by fn.
func MakeBlockInfo(fn func(l *MockBlockInfo)) func(rng *rand.Rand) *MockBlockInfo {
	return func(rng *rand.Rand) *MockBlockInfo {
		l := RandomBlockInfo(rng)
		if fn != nil {
			fn(l)
		}
		return l
	}
}

// HeaderInfo returns a MockBlockInfo mirroring the given header, with its RLP encoding attached.
func HeaderInfo(h *types.Header) *MockBlockInfo {
	headerRLP, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(err)
	}
	return &MockBlockInfo{
		InfoHash:             h.Hash(),
		InfoParentHash:       h.ParentHash,
		InfoCoinbase:         h.Coinbase,
		InfoRoot:             h.Root,
		InfoNum:              h.Number.Uint64(),
		InfoTime:             h.Time,
		InfoMixDigest:        h.MixDigest,
		InfoBaseFee:          h.BaseFee,
		InfoExcessBlobGas:    h.ExcessBlobGas,
		InfoReceiptRoot:      h.ReceiptHash,
		InfoGasUsed:          h.GasUsed,
		InfoGasLimit:         h.GasLimit,
		InfoHeaderRLP:        headerRLP,
		InfoParentBeaconRoot: h.ParentBeaconRoot,
	}
}
