package eth

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

type Bytes32 [32]byte

func (b *Bytes32) UnmarshalJSON(text []byte) error {
	return hexutil.UnmarshalFixedJSON(bytes32Type, text, b[:])
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	return hexutil.UnmarshalFixedText("Bytes32", text, b[:])
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b[:]).MarshalText()
}

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

// TerminalString implements log.TerminalStringer, formatting a string for console
// output during logging.
func (b Bytes32) TerminalString() string {
	return fmt.Sprintf("0x%x..%x", b[:3], b[29:])
}

type Bytes8 [8]byte

func (b *Bytes8) UnmarshalJSON(text []byte) error {
	return hexutil.UnmarshalFixedJSON(bytes8Type, text, b[:])
}

func (b *Bytes8) UnmarshalText(text []byte) error {
	return hexutil.UnmarshalFixedText("Bytes8", text, b[:])
}

func (b Bytes8) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b[:]).MarshalText()
}

func (b Bytes8) String() string {
	return hexutil.Encode(b[:])
}

// TerminalString implements log.TerminalStringer, formatting a string for console
// output during logging.
func (b Bytes8) TerminalString() string {
	return hexutil.Encode(b[:])
}

type Data = hexutil.Bytes

type Uint64Quantity = hexutil.Uint64

// SystemConfig represents the rollup system configuration that carries over in every L2 block,
// and may be changed through L1 system config events.
// The initial SystemConfig at rollup genesis is embedded in the rollup configuration.
type SystemConfig struct {
	// BatcherAddr identifies the batch-sender address used in batch-inbox data-transaction filtering.
	BatcherAddr common.Address `json:"batcherAddr"`
	// Overhead identifies the L1 fee overhead.
	// Pre-Ecotone this is passed as-is to the engine.
	// Post-Ecotone this is always zero, and not passed into the engine.
	Overhead Bytes32 `json:"overhead"`
	// Scalar identifies the L1 fee scalar
	// Pre-Ecotone this is passed as-is to the engine.
	// Post-Ecotone this encodes multiple pieces of scalar data.
	Scalar Bytes32 `json:"scalar"`
	// GasLimit identifies the L2 block gas limit
	GasLimit uint64 `json:"gasLimit"`
	// EIP1559Params contains the Holocene-encoded EIP-1559 parameters. This
	// value will be 0 if Holocene is not active, or if derivation has yet to
	// process any EIP_1559_PARAMS system config update events.
	EIP1559Params Bytes8 `json:"eip1559Params"`
	// OperatorFeeParams identifies the operator fee parameters.
	// The scalar sits in bytes [20:24] and the constant in bytes [24:32].
	OperatorFeeParams Bytes32 `json:"operatorFeeParams"`
}

// The Ecotone upgrade introduces a versioned L1 scalar format
// that is backward-compatible with pre-Ecotone L1 scalar values.
const (
	// L1ScalarBedrock is implied pre-Ecotone, encoding just a regular-gas scalar.
	L1ScalarBedrock = byte(0)
	// L1ScalarEcotone is new in Ecotone, allowing configuration of both a regular and a blobs scalar.
	L1ScalarEcotone = byte(1)
)

type EcotoneScalars struct {
	BlobBaseFeeScalar uint32
	BaseFeeScalar     uint32
}

func (sysCfg *SystemConfig) EcotoneScalars() (EcotoneScalars, error) {
	if err := CheckEcotoneL1SystemConfigScalar(sysCfg.Scalar); err != nil {
		if errors.Is(err, ErrBedrockScalarPaddingNotEmpty) {
			// L2 spec mandates we set baseFeeScalar to MaxUint32 if there are non-zero bytes in
			// the padding area.
			return EcotoneScalars{BlobBaseFeeScalar: 0, BaseFeeScalar: math.MaxUint32}, nil
		}
		return EcotoneScalars{}, err
	}
	return DecodeScalar(sysCfg.Scalar)
}

// DecodeScalar decodes the blobBaseFeeScalar and baseFeeScalar from a 32-byte scalar value.
// It uses the first byte to determine the scalar format.
func DecodeScalar(scalar [32]byte) (EcotoneScalars, error) {
	switch scalar[0] {
	case L1ScalarBedrock:
		return EcotoneScalars{
			BlobBaseFeeScalar: 0,
			BaseFeeScalar:     binary.BigEndian.Uint32(scalar[28:32]),
		}, nil
	case L1ScalarEcotone:
		return EcotoneScalars{
			BlobBaseFeeScalar: binary.BigEndian.Uint32(scalar[24:28]),
			BaseFeeScalar:     binary.BigEndian.Uint32(scalar[28:32]),
		}, nil
	default:
		return EcotoneScalars{}, fmt.Errorf("unexpected system config scalar: %x", scalar)
	}
}

// EncodeScalar encodes the EcotoneScalars into a 32-byte scalar value
// for the Ecotone serialization format.
func EncodeScalar(scalars EcotoneScalars) (scalar [32]byte) {
	scalar[0] = L1ScalarEcotone
	binary.BigEndian.PutUint32(scalar[24:28], scalars.BlobBaseFeeScalar)
	binary.BigEndian.PutUint32(scalar[28:32], scalars.BaseFeeScalar)
	return
}

var (
	ErrBedrockScalarPaddingNotEmpty = errors.New("version 0 scalar value has non-empty padding")
	ErrEcotoneScalarPaddingNotEmpty = errors.New("version 1 scalar value has non-empty padding")
)

// CheckEcotoneL1SystemConfigScalar checks that the Ecotone L1 scalar is valid.
func CheckEcotoneL1SystemConfigScalar(scalar [32]byte) error {
	versionByte := scalar[0]
	switch versionByte {
	case L1ScalarBedrock:
		if ([27]byte)(scalar[1:28]) != ([27]byte{}) { // check padding
			return ErrBedrockScalarPaddingNotEmpty
		}
		return nil
	case L1ScalarEcotone:
		if ([23]byte)(scalar[1:24]) != ([23]byte{}) { // check padding
			return ErrEcotoneScalarPaddingNotEmpty
		}
		return nil
	default:
		// ignore the event if it's an unknown scalar format
		return fmt.Errorf("unrecognized scalar version: %d", versionByte)
	}
}

// DecodeEIP1559Params returns the denominator and elasticity encoded in the Holocene
// system config parameters.
func (sysCfg *SystemConfig) DecodeEIP1559Params() (denominator uint32, elasticity uint32) {
	return binary.BigEndian.Uint32(sysCfg.EIP1559Params[:4]), binary.BigEndian.Uint32(sysCfg.EIP1559Params[4:])
}

type OperatorFeeParams struct {
	Scalar   uint32
	Constant uint64
}

// OperatorFee returns the operator fee parameters decoded from the Isthmus system config.
func (sysCfg *SystemConfig) OperatorFee() OperatorFeeParams {
	return DecodeOperatorFeeParams(sysCfg.OperatorFeeParams)
}

func DecodeOperatorFeeParams(params Bytes32) OperatorFeeParams {
	return OperatorFeeParams{
		Scalar:   binary.BigEndian.Uint32(params[20:24]),
		Constant: binary.BigEndian.Uint64(params[24:32]),
	}
}

func EncodeOperatorFeeParams(params OperatorFeeParams) (encoded Bytes32) {
	binary.BigEndian.PutUint32(encoded[20:24], params.Scalar)
	binary.BigEndian.PutUint64(encoded[24:32], params.Constant)
	return
}

type PayloadAttributes struct {
	// value for the timestamp field of the new payload
	Timestamp Uint64Quantity `json:"timestamp"`
	// value for the random field of the new payload
	PrevRandao Bytes32 `json:"prevRandao"`
	// suggested value for the coinbase field of the new payload
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`
	// Withdrawals to include into the block -- should be nil or empty depending on Shanghai enablement
	Withdrawals *types.Withdrawals `json:"withdrawals,omitempty"`
	// parentBeaconBlockRoot optional extension in Dencun
	ParentBeaconBlockRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`

	// Transactions to force into the block (always at the start of the transactions list).
	Transactions []Data `json:"transactions,omitempty"`
	// NoTxPool to disable adding any transactions from the transaction-pool.
	NoTxPool bool `json:"noTxPool,omitempty"`
	// GasLimit override
	GasLimit *Uint64Quantity `json:"gasLimit,omitempty"`
	// EIP1559Params is the Holocene fee parameters, nil before Holocene.
	EIP1559Params *Bytes8 `json:"eip1559Params,omitempty"`
}

// IsDepositsOnly returns whether all transactions of the PayloadAttributes are of Deposit
// type. Empty transactions are also considered non-Deposit transactions.
func (a *PayloadAttributes) IsDepositsOnly() bool {
	for _, tx := range a.Transactions {
		if len(tx) == 0 || tx[0] != types.DepositTxType {
			return false
		}
	}
	return true
}

// WithDepositsOnly return a shallow clone with all non-Deposit transactions stripped from its
// transactions. The order is preserved.
func (a *PayloadAttributes) WithDepositsOnly() *PayloadAttributes {
	clone := *a
	depositTxs := make([]Data, 0, len(a.Transactions))
	for _, tx := range a.Transactions {
		if len(tx) > 0 && tx[0] == types.DepositTxType {
			depositTxs = append(depositTxs, tx)
		}
	}
	clone.Transactions = depositTxs
	return &clone
}

type ExecutionPayload struct {
	ParentHash    common.Hash        `json:"parentHash"`
	FeeRecipient  common.Address     `json:"feeRecipient"`
	StateRoot     Bytes32            `json:"stateRoot"`
	ReceiptsRoot  Bytes32            `json:"receiptsRoot"`
	PrevRandao    Bytes32            `json:"prevRandao"`
	BlockNumber   Uint64Quantity     `json:"blockNumber"`
	GasLimit      Uint64Quantity     `json:"gasLimit"`
	GasUsed       Uint64Quantity     `json:"gasUsed"`
	Timestamp     Uint64Quantity     `json:"timestamp"`
	ExtraData     Data               `json:"extraData"`
	BaseFeePerGas *hexutil.Big       `json:"baseFeePerGas"`
	BlockHash     common.Hash        `json:"blockHash"`
	Transactions  []Data             `json:"transactions"`
	Withdrawals   *types.Withdrawals `json:"withdrawals,omitempty"`
	// WithdrawalsRoot is the storage root of the L2 to L1 message passer, post-Isthmus.
	WithdrawalsRoot *common.Hash `json:"withdrawalsRoot,omitempty"`
}

func (payload *ExecutionPayload) ID() BlockID {
	return BlockID{Hash: payload.BlockHash, Number: uint64(payload.BlockNumber)}
}

func (payload *ExecutionPayload) ParentID() BlockID {
	n := uint64(payload.BlockNumber)
	if n > 0 {
		n -= 1
	}
	return BlockID{Hash: payload.ParentHash, Number: n}
}

type ExecutionPayloadEnvelope struct {
	ParentBeaconBlockRoot *common.Hash      `json:"parentBeaconBlockRoot,omitempty"`
	ExecutionPayload      *ExecutionPayload `json:"executionPayload"`
}

// BlockAsPayload converts a block into the execution payload form used by derivation.
func BlockAsPayload(bl *types.Block) (*ExecutionPayload, error) {
	baseFee := bl.BaseFee()
	if baseFee == nil {
		return nil, errors.New("block has no base fee")
	}
	opaqueTxs := make([]Data, len(bl.Transactions()))
	for i, tx := range bl.Transactions() {
		otx, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("tx %d failed to marshal: %w", i, err)
		}
		opaqueTxs[i] = otx
	}

	payload := &ExecutionPayload{
		ParentHash:    bl.ParentHash(),
		FeeRecipient:  bl.Coinbase(),
		StateRoot:     Bytes32(bl.Root()),
		ReceiptsRoot:  Bytes32(bl.ReceiptHash()),
		PrevRandao:    Bytes32(bl.MixDigest()),
		BlockNumber:   Uint64Quantity(bl.NumberU64()),
		GasLimit:      Uint64Quantity(bl.GasLimit()),
		GasUsed:       Uint64Quantity(bl.GasUsed()),
		Timestamp:     Uint64Quantity(bl.Time()),
		ExtraData:     bl.Extra(),
		BaseFeePerGas: (*hexutil.Big)(baseFee),
		BlockHash:     bl.Hash(),
		Transactions:  opaqueTxs,
	}
	if bl.Withdrawals() != nil {
		withdrawals := bl.Withdrawals()
		payload.Withdrawals = &withdrawals
	}
	return payload, nil
}

var (
	bytes32Type = reflect.TypeOf(Bytes32{})
	bytes8Type  = reflect.TypeOf(Bytes8{})
)
