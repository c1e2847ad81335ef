package l2

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// CheckBlockAttributes checks that the block is what an engine builds from the attributes on top of parent.
// Only the fields determined by the attributes are checked, execution results are not.
func CheckBlockAttributes(block *types.Block, parent common.Hash, attrs *eth.PayloadAttributes) error {
	if block.ParentHash() != parent {
		return fmt.Errorf("parent hash %s, expected %s", block.ParentHash(), parent)
	}
	if block.Time() != uint64(attrs.Timestamp) {
		return fmt.Errorf("timestamp %d, expected %d", block.Time(), uint64(attrs.Timestamp))
	}
	if block.MixDigest() != common.Hash(attrs.PrevRandao) {
		return fmt.Errorf("prevrandao %s, expected %s", block.MixDigest(), common.Hash(attrs.PrevRandao))
	}
	if block.Coinbase() != attrs.SuggestedFeeRecipient {
		return fmt.Errorf("fee recipient %s, expected %s", block.Coinbase(), attrs.SuggestedFeeRecipient)
	}
	if attrs.GasLimit != nil && block.GasLimit() != uint64(*attrs.GasLimit) {
		return fmt.Errorf("gas limit %d, expected %d", block.GasLimit(), uint64(*attrs.GasLimit))
	}
	if (attrs.Withdrawals != nil) != (block.Header().WithdrawalsHash != nil) {
		return fmt.Errorf("withdrawals presence mismatch, expected withdrawals: %v", attrs.Withdrawals != nil)
	}
	if attrs.Withdrawals != nil && len(*attrs.Withdrawals) != 0 {
		return fmt.Errorf("unexpected %d withdrawals in attributes", len(*attrs.Withdrawals))
	}
	if err := checkBeaconRoot(block.BeaconRoot(), attrs.ParentBeaconBlockRoot); err != nil {
		return err
	}
	if attrs.EIP1559Params != nil && *attrs.EIP1559Params != (eth.Bytes8{}) {
		// Holocene extra data: version byte 0, then the denominator and elasticity
		expected := append([]byte{0}, attrs.EIP1559Params[:]...)
		if !bytes.Equal(block.Extra(), expected) {
			return fmt.Errorf("extra data %x, expected %x", block.Extra(), expected)
		}
	}

	txs := block.Transactions()
	if len(txs) != len(attrs.Transactions) {
		return fmt.Errorf("%d transactions, expected %d", len(txs), len(attrs.Transactions))
	}
	for i, tx := range txs {
		data, err := tx.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to encode tx %d: %w", i, err)
		}
		if !bytes.Equal(data, attrs.Transactions[i]) {
			return fmt.Errorf("transaction %d (%s) does not match", i, tx.Hash())
		}
	}
	return nil
}

func checkBeaconRoot(got, expected *common.Hash) error {
	switch {
	case got == nil && expected == nil:
		return nil
	case got == nil || expected == nil:
		return fmt.Errorf("parent beacon root presence mismatch, expected: %v", expected != nil)
	case *got != *expected:
		return fmt.Errorf("parent beacon root %s, expected %s", *got, *expected)
	}
	return nil
}
