// Package metrics provides the prometheus implementation of the derivation metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mantlenetworkio/mantle-fp/op-service/eth"
	opmetrics "github.com/mantlenetworkio/mantle-fp/op-service/metrics"
)

const Namespace = "op_node"

type Metricer interface {
	RecordL1Ref(name string, ref eth.L1BlockRef)
	RecordL2Ref(name string, ref eth.L2BlockRef)
	RecordChannelInputBytes(inputCompressedBytes int)
	RecordHeadChannelOpened()
	RecordChannelTimedOut()
	RecordFrame()
	RecordDerivedBatches(batchType string)
	SetDerivationIdle(idle bool)
	RecordPipelineReset()
	RecordL1RequestTime(method string, duration time.Duration)
}

// Metrics tracks all the metrics for the derivation pipeline.
type Metrics struct {
	opmetrics.RefMetrics

	DerivationIdle  prometheus.Gauge
	PipelineResets  prometheus.Counter
	DerivedBatches  *prometheus.CounterVec
	ChannelInputs   prometheus.Histogram
	HeadChannelOpen prometheus.Counter
	ChannelTimeouts prometheus.Counter
	Frames          prometheus.Counter

	L1RequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

var _ Metricer = (*Metrics)(nil)

// NewMetrics creates a new [Metrics] instance with the given process name.
func NewMetrics(procName string) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		RefMetrics: opmetrics.MakeRefMetrics(ns, factory),

		DerivationIdle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "derivation_idle",
			Help:      "1 if the derivation pipeline is idle",
		}),
		PipelineResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pipeline_resets_total",
			Help:      "Count of derivation pipeline resets",
		}),
		DerivedBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "derived_batches_total",
			Help:      "Count of batches derived from channels, by batch type",
		}, []string{"type"}),
		ChannelInputs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "channel_input_bytes",
			Help:      "Size of compressed channels read by the channel reader",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		HeadChannelOpen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "head_channel_opened_total",
			Help:      "Count of channels read out of the channel bank",
		}),
		ChannelTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "channel_timeouts_total",
			Help:      "Count of channels that timed out before completion",
		}),
		Frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_total",
			Help:      "Count of frames parsed from L1 data",
		}),
		L1RequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "l1_request_seconds",
			Buckets: []float64{
				.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
			},
			Help: "Histogram of L1 request time",
		}, []string{"request"}),

		registry: registry,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordChannelInputBytes(inputCompressedBytes int) {
	m.ChannelInputs.Observe(float64(inputCompressedBytes))
}

func (m *Metrics) RecordHeadChannelOpened() {
	m.HeadChannelOpen.Inc()
}

func (m *Metrics) RecordChannelTimedOut() {
	m.ChannelTimeouts.Inc()
}

func (m *Metrics) RecordFrame() {
	m.Frames.Inc()
}

func (m *Metrics) RecordDerivedBatches(batchType string) {
	m.DerivedBatches.WithLabelValues(batchType).Inc()
}

func (m *Metrics) SetDerivationIdle(idle bool) {
	var val float64
	if idle {
		val = 1
	}
	m.DerivationIdle.Set(val)
}

func (m *Metrics) RecordPipelineReset() {
	m.PipelineResets.Inc()
}

func (m *Metrics) RecordL1RequestTime(method string, duration time.Duration) {
	m.L1RequestDurationSeconds.WithLabelValues(method).Observe(float64(duration) / float64(time.Second))
}

type noopMetricer struct {
	opmetrics.NoopRefMetrics
}

// NoopMetrics discards everything. The FPVM client and tests use it.
var NoopMetrics Metricer = new(noopMetricer)

func (n *noopMetricer) RecordChannelInputBytes(int)               {}
func (n *noopMetricer) RecordHeadChannelOpened()                  {}
func (n *noopMetricer) RecordChannelTimedOut()                    {}
func (n *noopMetricer) RecordFrame()                              {}
func (n *noopMetricer) RecordDerivedBatches(string)               {}
func (n *noopMetricer) SetDerivationIdle(bool)                    {}
func (n *noopMetricer) RecordPipelineReset()                      {}
func (n *noopMetricer) RecordL1RequestTime(string, time.Duration) {}
