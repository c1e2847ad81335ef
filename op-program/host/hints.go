package host

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-program/client/altda"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l1"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l2"
)

// blobHintLength is the versioned hash, blob index and L1 block time of an l1-blob hint.
const blobHintLength = common.HashLength + 8 + 8

// hintLogger checks and records the hints of the client program.
// All pre-images are served from the prepared store, so no hint triggers any fetching.
type hintLogger struct {
	logger log.Logger
	counts map[string]uint64
}

func newHintLogger(logger log.Logger) *hintLogger {
	return &hintLogger{logger: logger, counts: make(map[string]uint64)}
}

func (h *hintLogger) Hint(hint string) error {
	hintType, payload, _ := strings.Cut(hint, " ")
	data, err := hexutil.Decode(payload)
	if err != nil {
		return fmt.Errorf("invalid %s hint data %q: %w", hintType, payload, err)
	}
	switch hintType {
	case l1.HintL1BlockHeader, l1.HintL1Transactions, l1.HintL1Receipts,
		l2.HintL2BlockHeader, l2.HintL2Transactions, l2.HintL2Output:
		if len(data) != common.HashLength {
			return fmt.Errorf("invalid %s hint: expected %d bytes, got %d", hintType, common.HashLength, len(data))
		}
		h.logger.Debug("Received hint", "type", hintType, "hash", common.BytesToHash(data))
	case l1.HintL1Blob:
		if len(data) != blobHintLength {
			return fmt.Errorf("invalid %s hint: expected %d bytes, got %d", hintType, blobHintLength, len(data))
		}
		h.logger.Debug("Received hint", "type", hintType, "versionedHash", common.BytesToHash(data[:common.HashLength]))
	case altda.HintAltDAInput:
		h.logger.Debug("Received hint", "type", hintType, "commitment", hexutil.Bytes(data))
	default:
		h.logger.Warn("Ignoring unknown hint", "type", hintType)
		return nil
	}
	h.counts[hintType]++
	return nil
}

func (h *hintLogger) logSummary() {
	for hintType, count := range h.counts {
		h.logger.Info("Hints received", "type", hintType, "count", count)
	}
}
