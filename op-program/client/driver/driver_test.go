package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
	"github.com/mantlenetworkio/mantle-fp/op-node/rollup/derive"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/client/l2"
	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	"github.com/mantlenetworkio/mantle-fp/op-service/testlog"
)

var mockErr = errors.New("mock error")

type fakePipeline struct {
	origin   eth.L1BlockRef
	resetErr error
	produce  func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error)

	resets       int
	depositsOnly int
}

func (p *fakePipeline) InitialReset(ctx context.Context, l2SafeHead eth.L2BlockRef) error {
	p.resets++
	return p.resetErr
}

func (p *fakePipeline) ProducePayload(ctx context.Context, l2SafeHead eth.L2BlockRef) (*derive.AttributesWithParent, error) {
	return p.produce(l2SafeHead)
}

func (p *fakePipeline) DepositsOnlyAttributes(parent eth.BlockID, derivedFrom eth.L1BlockRef) (*derive.AttributesWithParent, error) {
	p.depositsOnly++
	return &derive.AttributesWithParent{
		Attributes: &eth.PayloadAttributes{
			Timestamp:    hexutil.Uint64(parent.Number + 1),
			Transactions: []eth.Data{{types.DepositTxType, 0x01}},
			NoTxPool:     true,
		},
		Parent:      eth.L2BlockRef{Hash: parent.Hash, Number: parent.Number},
		DerivedFrom: derivedFrom,
	}, nil
}

func (p *fakePipeline) Origin() eth.L1BlockRef {
	return p.origin
}

type fakeL2Chain struct {
	derive.L2Source
	safe   eth.L2BlockRef
	insert func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error)

	inserted []*derive.AttributesWithParent
}

func (c *fakeL2Chain) SafeHead() eth.L2BlockRef {
	return c.safe
}

func (c *fakeL2Chain) InsertDerived(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
	c.inserted = append(c.inserted, attrs)
	ref, err := c.insert(attrs)
	if err != nil {
		return eth.L2BlockRef{}, err
	}
	c.safe = ref
	return ref, nil
}

func childOf(parent eth.L2BlockRef) eth.L2BlockRef {
	return eth.L2BlockRef{
		Hash:       common.Hash{0xaa, byte(parent.Number + 1)},
		Number:     parent.Number + 1,
		ParentHash: parent.Hash,
		Time:       parent.Time + 2,
	}
}

func attrsOn(parent eth.L2BlockRef, origin eth.L1BlockRef) *derive.AttributesWithParent {
	return &derive.AttributesWithParent{
		Attributes: &eth.PayloadAttributes{
			Timestamp:    hexutil.Uint64(parent.Time + 2),
			Transactions: []eth.Data{{types.DepositTxType, 0x01}, {types.DynamicFeeTxType, 0x02}},
			NoTxPool:     true,
		},
		Parent:      parent,
		DerivedFrom: origin,
	}
}

func acceptAll(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
	return childOf(attrs.Parent), nil
}

func TestDriver(t *testing.T) {
	origin := eth.L1BlockRef{Hash: common.Hash{0x01}, Number: 100, Time: 1000}
	agreed := eth.L2BlockRef{Hash: common.Hash{0x02}, Number: 10, Time: 1200}

	newTestDriver := func(t *testing.T, cfg *rollup.Config, pipeline *fakePipeline, chain *fakeL2Chain, target uint64) *Driver {
		logger := testlog.Logger(t, log.LevelInfo)
		if cfg == nil {
			cfg = &rollup.Config{BlockTime: 2, ChannelTimeoutBedrock: 50}
		}
		pipeline.origin = origin
		if chain.safe == (eth.L2BlockRef{}) {
			chain.safe = agreed
		}
		return NewDriver(logger, cfg, pipeline, chain, target)
	}
	producing := func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
		return attrsOn(safe, origin), nil
	}

	t.Run("target not after agreed block", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		chain := fakL2(acceptAll)
		d := newTestDriver(t, nil, pipeline, chain, agreed.Number)
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed, head)
		require.Zero(t, pipeline.resets)
	})

	t.Run("reach target", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		chain := fakL2(acceptAll)
		d := newTestDriver(t, nil, pipeline, chain, agreed.Number+3)
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed.Number+3, head.Number)
		require.Len(t, chain.inserted, 3)
		require.Equal(t, 1, pipeline.resets)
		require.Equal(t, head, d.cursor.L2SafeHead())
	})

	t.Run("exhausted before target", func(t *testing.T) {
		count := 0
		pipeline := &fakePipeline{produce: func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
			if count == 2 {
				return nil, io.EOF
			}
			count++
			return attrsOn(safe, origin), nil
		}}
		chain := fakL2(acceptAll)
		d := newTestDriver(t, nil, pipeline, chain, agreed.Number+10)
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed.Number+2, head.Number)
	})

	t.Run("initial reset error", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing, resetErr: mockErr}
		d := newTestDriver(t, nil, pipeline, fakL2(acceptAll), agreed.Number+1)
		_, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, mockErr)
	})

	t.Run("temporary errors are retried", func(t *testing.T) {
		failures := 3
		pipeline := &fakePipeline{produce: func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
			if failures > 0 {
				failures--
				return nil, derive.NewTemporaryError(mockErr)
			}
			return attrsOn(safe, origin), nil
		}}
		d := newTestDriver(t, nil, pipeline, fakL2(acceptAll), agreed.Number+1)
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed.Number+1, head.Number)
		require.Zero(t, failures)
	})

	t.Run("reset error", func(t *testing.T) {
		pipeline := &fakePipeline{produce: func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
			return nil, derive.NewResetError(mockErr)
		}}
		d := newTestDriver(t, nil, pipeline, fakL2(acceptAll), agreed.Number+1)
		_, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, derive.ErrReset)
		require.ErrorIs(t, err, mockErr)
	})

	t.Run("critical error", func(t *testing.T) {
		pipeline := &fakePipeline{produce: func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
			return nil, derive.NewCriticalError(mockErr)
		}}
		d := newTestDriver(t, nil, pipeline, fakL2(acceptAll), agreed.Number+1)
		_, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, mockErr)
		require.NotErrorIs(t, err, claim.ErrClaimNotValid)
	})

	t.Run("derived past the claimed chain", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		chain := fakL2(func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
			if attrs.Parent.Number == agreed.Number+1 {
				return eth.L2BlockRef{}, fmt.Errorf("%w: block %d", l2.ErrBeyondClaim, attrs.Parent.Number+1)
			}
			return childOf(attrs.Parent), nil
		})
		d := newTestDriver(t, nil, pipeline, chain, agreed.Number+5)
		head, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, claim.ErrClaimNotValid)
		require.ErrorIs(t, err, l2.ErrBeyondClaim)
		require.Equal(t, agreed.Number+1, head.Number)
	})

	t.Run("mismatch dropped before holocene", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		rejected := 0
		chain := fakL2(func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
			if rejected < 2 {
				rejected++
				return eth.L2BlockRef{}, l2.ErrBlockMismatch
			}
			return childOf(attrs.Parent), nil
		})
		d := newTestDriver(t, nil, pipeline, chain, agreed.Number+1)
		logger, logs := testlog.CaptureLogger(t, log.LevelInfo)
		d.logger = logger
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed.Number+1, head.Number)
		require.Len(t, chain.inserted, 3)
		require.Zero(t, pipeline.depositsOnly)
		dropped := logs.FindLogs(
			testlog.NewLevelFilter(log.LevelWarn),
			testlog.NewMessageFilter("Dropping derived attributes not matching the L2 chain"))
		require.Len(t, dropped, 2)
		require.Equal(t, agreed, dropped[0].AttrValue("parent"))
	})

	holocene := uint64(0)
	holoceneCfg := &rollup.Config{BlockTime: 2, ChannelTimeoutBedrock: 50, HoloceneTime: &holocene}

	t.Run("mismatch replaced by deposits-only under holocene", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		chain := fakL2(func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
			if !attrs.Attributes.IsDepositsOnly() {
				return eth.L2BlockRef{}, l2.ErrBlockMismatch
			}
			return childOf(attrs.Parent), nil
		})
		d := newTestDriver(t, holoceneCfg, pipeline, chain, agreed.Number+2)
		head, err := d.RunComplete(context.Background())
		require.NoError(t, err)
		require.Equal(t, agreed.Number+2, head.Number)
		require.Equal(t, 2, pipeline.depositsOnly)
		require.Len(t, chain.inserted, 4)
	})

	t.Run("deposits-only rejected under holocene", func(t *testing.T) {
		pipeline := &fakePipeline{produce: producing}
		chain := fakL2(func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error) {
			return eth.L2BlockRef{}, l2.ErrBlockMismatch
		})
		d := newTestDriver(t, holoceneCfg, pipeline, chain, agreed.Number+1)
		_, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, claim.ErrClaimNotValid)
		require.ErrorIs(t, err, l2.ErrBlockMismatch)
		require.Equal(t, 1, pipeline.depositsOnly)
	})

	t.Run("too many steps", func(t *testing.T) {
		pipeline := &fakePipeline{produce: func(safe eth.L2BlockRef) (*derive.AttributesWithParent, error) {
			return nil, derive.NewTemporaryError(mockErr)
		}}
		d := newTestDriver(t, nil, pipeline, fakL2(acceptAll), agreed.Number+1)
		d.maxSteps = 5
		_, err := d.RunComplete(context.Background())
		require.ErrorIs(t, err, errTooManySteps)
	})
}

func fakL2(insert func(attrs *derive.AttributesWithParent) (eth.L2BlockRef, error)) *fakeL2Chain {
	return &fakeL2Chain{insert: insert}
}
