package altda

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	preimage "github.com/mantlenetworkio/mantle-fp/op-preimage"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

const HintAltDAInput = "altda-input"

// InputHint asks the host to prepare the input committed to by an altDA commitment.
type InputHint []byte

var _ preimage.Hint = InputHint(nil)

func (h InputHint) Hint() string {
	return HintAltDAInput + " " + hexutil.Encode(h)
}

// OracleInputFetcher resolves keccak256 altDA commitments through the preimage oracle.
// Generic commitments cannot be verified by the program and are reported as not found,
// which makes the derivation skip them.
type OracleInputFetcher struct {
	oracle preimage.Oracle
	hint   preimage.Hinter
}

var _ derive.AltDAInputFetcher = (*OracleInputFetcher)(nil)

func NewOracleInputFetcher(oracle preimage.Oracle, hint preimage.Hinter) *OracleInputFetcher {
	return &OracleInputFetcher{oracle: oracle, hint: hint}
}

func (f *OracleInputFetcher) GetInput(_ context.Context, commitment []byte, l1 eth.L1BlockRef) (eth.Data, error) {
	if len(commitment) != common.HashLength {
		return nil, fmt.Errorf("%w: generic altDA commitment %x in L1 block %s", ethereum.NotFound, commitment, l1)
	}
	f.hint.Hint(InputHint(commitment))
	input := f.oracle.Get(preimage.Keccak256Key(common.BytesToHash(commitment)))
	if got := crypto.Keccak256Hash(input); got != common.BytesToHash(commitment) {
		panic(fmt.Errorf("altDA input preimage of %x hashes to %s", commitment, got))
	}
	return input, nil
}
