package predeploys

import "github.com/ethereum/go-ethereum/common"

const (
	L1Block             = "0x4200000000000000000000000000000000000015"
	L2ToL1MessagePasser = "0x4200000000000000000000000000000000000016"
	GasPriceOracle      = "0x420000000000000000000000000000000000000F"
	SequencerFeeVault   = "0x4200000000000000000000000000000000000011"
	BaseFeeVault        = "0x4200000000000000000000000000000000000019"
	L1FeeVault          = "0x420000000000000000000000000000000000001a"
	L1InfoDepositer     = "0xDeaDDEaDDeAdDeAdDEAdDEaddeAddEAdDEAd0001"
)

var (
	L1BlockAddr             = common.HexToAddress(L1Block)
	L2ToL1MessagePasserAddr = common.HexToAddress(L2ToL1MessagePasser)
	GasPriceOracleAddr      = common.HexToAddress(GasPriceOracle)
	SequencerFeeVaultAddr   = common.HexToAddress(SequencerFeeVault)
	BaseFeeVaultAddr        = common.HexToAddress(BaseFeeVault)
	L1FeeVaultAddr          = common.HexToAddress(L1FeeVault)
	L1InfoDepositerAddr     = common.HexToAddress(L1InfoDepositer)
)
