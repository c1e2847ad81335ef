package predeploys

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// EIP-4788 defines a deterministic deployment transaction that deploys the beacon-block-roots contract.
// The deployer is keyless, so the resulting contract address is the same on every chain.
// See https://eips.ethereum.org/EIPS/eip-4788
var (
	EIP4788ContractAddr     = params.BeaconRootsAddress
	EIP4788ContractDeployer = common.HexToAddress("0x0B799C86a49DEeb90402691F1041aa3AF2d3C875")
)
