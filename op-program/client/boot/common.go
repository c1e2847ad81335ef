package boot

import preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"

const (
	L1HeadLocalIndex preimage.LocalIndexKey = iota + 1
	L2OutputRootLocalIndex
	L2ClaimLocalIndex
	L2ClaimBlockNumberLocalIndex
	L2ChainIDLocalIndex
	RollupConfigLocalIndex
)

type oracleClient interface {
	Get(key preimage.Key) []byte
}
