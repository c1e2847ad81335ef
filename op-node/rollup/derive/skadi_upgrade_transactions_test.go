package derive

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlenetworkio/mantle-fp/op-service/predeploys"
)

func TestMantleSkadiSourceHashes(t *testing.T) {
	require.Equal(t, common.HexToHash("0x195dba1b4300952493316fd4adf4166cd799a984832fce9e56f35871ebcb9ec0"), skadiDeployments[0].source.SourceHash())
	require.Equal(t, common.HexToHash("0x70b82adac2a44af2eb5a58d508fe512dd3112ef13cbbd7debcdafa189cfb0484"), skadiDeployments[1].source.SourceHash())
}

func TestMantleSkadiNetworkTransactions(t *testing.T) {
	upgradeTxns, err := MantleSkadiNetworkUpgradeTransactions()
	require.NoError(t, err)
	require.Len(t, upgradeTxns, 2)

	for i, d := range skadiDeployments {
		var tx types.Transaction
		require.NoError(t, tx.UnmarshalBinary(upgradeTxns[i]))
		require.Equal(t, uint8(types.DepositTxType), tx.Type())
		require.Nil(t, tx.To(), "contract creation")
		require.Equal(t, uint64(250_000), tx.Gas())
		require.Equal(t, d.bytecode, tx.Data())
		require.Equal(t, d.source.SourceHash(), tx.SourceHash())
		require.Zero(t, tx.Value().Sign())

		expected, err := types.NewTx(&types.DepositTx{
			SourceHash: d.source.SourceHash(),
			From:       d.deployer,
			Mint:       big.NewInt(0),
			Value:      big.NewInt(0),
			Gas:        250_000,
			Data:       d.bytecode,
		}).MarshalBinary()
		require.NoError(t, err)
		require.Equal(t, expected, []byte(upgradeTxns[i]))
	}

	require.Equal(t, predeploys.EIP4788ContractDeployer, skadiDeployments[0].deployer)
	require.Equal(t, predeploys.EIP2935ContractDeployer, skadiDeployments[1].deployer)
	// keyless deployments at nonce 0 land on the canonical addresses
	require.Equal(t, predeploys.EIP4788ContractAddr, crypto.CreateAddress(predeploys.EIP4788ContractDeployer, 0))
	require.Equal(t, predeploys.EIP2935ContractAddr, crypto.CreateAddress(predeploys.EIP2935ContractDeployer, 0))
}
