package derive

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mantlenetworkio/mantle-fp/op-service/predeploys"
)

// upgradeDeployment is a contract creation performed by a system deposit at a fork activation block.
type upgradeDeployment struct {
	source   UpgradeDepositSource
	deployer common.Address
	bytecode []byte
}

var skadiDeployments = []upgradeDeployment{
	{
		// EIP-4788
		source:   UpgradeDepositSource{Intent: "Skadi: EIP-4788 Contract Deployment"},
		deployer: predeploys.EIP4788ContractDeployer,
		bytecode: common.FromHex("0x60618060095f395ff33373fffffffffffffffffffffffffffffffffffffffe14604d57602036146024575f5ffd5b5f35801560495762001fff810690815414603c575f5ffd5b62001fff01545f5260205ff35b5f5ffd5b62001fff42064281555f359062001fff015500"),
	},
	{
		// EIP-2935
		source:   UpgradeDepositSource{Intent: "Skadi: EIP-2935 Contract Deployment"},
		deployer: predeploys.EIP2935ContractDeployer,
		bytecode: common.FromHex("0x60538060095f395ff33373fffffffffffffffffffffffffffffffffffffffe14604657602036036042575f35600143038111604257611fff81430311604257611fff9006545f5260205ff35b5f5ffd5b5f35611fff60014303065500"),
	},
}

// MantleSkadiNetworkUpgradeTransactions returns the deposits that deploy the beacon-block-roots and
// history-storage contracts in the first MantleSkadi block.
func MantleSkadiNetworkUpgradeTransactions() ([]hexutil.Bytes, error) {
	upgradeTxns := make([]hexutil.Bytes, 0, len(skadiDeployments))
	for _, d := range skadiDeployments {
		tx, err := types.NewTx(&types.DepositTx{
			SourceHash:          d.source.SourceHash(),
			From:                d.deployer,
			To:                  nil,
			Mint:                big.NewInt(0),
			Value:               big.NewInt(0),
			Gas:                 250_000,
			IsSystemTransaction: false,
			Data:                d.bytecode,
		}).MarshalBinary()
		if err != nil {
			return nil, err
		}
		upgradeTxns = append(upgradeTxns, tx)
	}
	return upgradeTxns, nil
}
