package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
)

func TestDerivationMetrics(t *testing.T) {
	m := NewMetrics("test")

	m.RecordDerivedBatches("span")
	m.RecordDerivedBatches("span")
	m.RecordDerivedBatches("singular")
	require.Equal(t, float64(2), testutil.ToFloat64(m.DerivedBatches.WithLabelValues("span")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.DerivedBatches.WithLabelValues("singular")))

	m.SetDerivationIdle(true)
	require.Equal(t, float64(1), testutil.ToFloat64(m.DerivationIdle))
	m.SetDerivationIdle(false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.DerivationIdle))

	m.RecordPipelineReset()
	m.RecordChannelTimedOut()
	m.RecordFrame()
	m.RecordFrame()
	require.Equal(t, float64(1), testutil.ToFloat64(m.PipelineResets))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ChannelTimeouts))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Frames))

	m.RecordL1Ref("l1_derived", eth.L1BlockRef{Hash: common.Hash{1}, Number: 42, Time: 100})
	require.Equal(t, float64(42), testutil.ToFloat64(m.RefsNumber.WithLabelValues("l1", "l1_derived")))

	m.RecordL1RequestTime("InfoByHash", 20*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(m.L1RequestDurationSeconds))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var histogram *dto.Histogram
	for _, family := range families {
		if family.GetName() == Namespace+"_test_l1_request_seconds" {
			require.Equal(t, dto.MetricType_HISTOGRAM, family.GetType())
			require.Len(t, family.GetMetric(), 1)
			histogram = family.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	require.Equal(t, uint64(1), histogram.GetSampleCount())
}

func TestNoopMetrics(t *testing.T) {
	require.NotPanics(t, func() {
		NoopMetrics.RecordFrame()
		NoopMetrics.RecordL2Ref("l2_safe", eth.L2BlockRef{})
		NoopMetrics.SetDerivationIdle(true)
	})
}
