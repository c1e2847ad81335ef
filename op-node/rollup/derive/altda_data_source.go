package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

// TxDataVersion1 prefixes batcher data that carries an altDA commitment instead of frames.
const TxDataVersion1 = 1

// CommitmentType is the second byte of altDA batcher data.
type CommitmentType byte

const (
	Keccak256CommitmentType CommitmentType = 0
	GenericCommitmentType   CommitmentType = 1
)

var ErrInvalidCommitment = errors.New("invalid commitment")

// DecodeCommitmentData splits altDA batcher data (without the version byte) into its type and commitment.
func DecodeCommitmentData(data []byte) (CommitmentType, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrInvalidCommitment
	}
	t := CommitmentType(data[0])
	switch t {
	case Keccak256CommitmentType:
		if len(data) != 1+32 {
			return 0, nil, fmt.Errorf("%w: keccak commitment of %d bytes", ErrInvalidCommitment, len(data)-1)
		}
	case GenericCommitmentType:
		if len(data) < 2 {
			return 0, nil, fmt.Errorf("%w: empty generic commitment", ErrInvalidCommitment)
		}
	default:
		return 0, nil, fmt.Errorf("%w: unknown type %d", ErrInvalidCommitment, t)
	}
	return t, data[1:], nil
}

// AltDADataSource is a data source that fetches inputs from an altDA provider given
// their onchain commitments. Same as CalldataSource it will keep attempting to fetch.
type AltDADataSource struct {
	log     log.Logger
	src     DataIter
	fetcher AltDAInputFetcher
	l1      eth.L1BlockRef
	// keep track of a pending commitment so we can keep trying to fetch the input.
	comm []byte
	kind CommitmentType
}

func NewAltDADataSource(log log.Logger, src DataIter, fetcher AltDAInputFetcher, l1 eth.L1BlockRef) *AltDADataSource {
	return &AltDADataSource{
		log:     log,
		src:     src,
		fetcher: fetcher,
		l1:      l1,
	}
}

func (s *AltDADataSource) Next(ctx context.Context) (eth.Data, error) {
	if s.comm == nil {
		for {
			data, err := s.src.Next(ctx)
			if err != nil {
				return nil, err
			}
			if len(data) == 0 {
				continue
			}
			// Frames are passed through untouched, only version 1 data is a commitment.
			if data[0] != TxDataVersion1 {
				return data, nil
			}
			kind, comm, err := DecodeCommitmentData(data[1:])
			if err != nil {
				s.log.Warn("invalid commitment", "commitment", data, "err", err)
				continue
			}
			s.comm, s.kind = comm, kind
			break
		}
	}

	input, err := s.fetcher.GetInput(ctx, s.comm, s.l1)
	if errors.Is(err, ethereum.NotFound) {
		s.log.Warn("altDA input not found, skipping commitment", "commitment", s.comm)
		s.comm = nil
		return s.Next(ctx)
	} else if err != nil {
		return nil, NewTemporaryError(fmt.Errorf("failed to fetch input data with comm %x from altDA provider: %w", s.comm, err))
	}
	comm, kind := s.comm, s.kind
	s.comm = nil
	if kind == Keccak256CommitmentType && !bytes.Equal(crypto.Keccak256(input), comm) {
		s.log.Warn("altDA input does not match keccak commitment", "commitment", comm)
		return s.Next(ctx)
	}
	return input, nil
}
