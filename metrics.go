package bufferpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool label values.
const (
	poolNameOutput = "output"
	poolNameStage  = "stage"
)

// Reconfiguration kinds.
const (
	reconfigureKindConverter = "converter"
	reconfigureKindStage     = "stage"
)

// Metrics exposes pool and pipeline state as Prometheus series.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	BuffersTotal     *prometheus.GaugeVec
	BuffersFree      *prometheus.GaugeVec
	InputQueue       prometheus.Gauge
	OutputQueue      prometheus.Gauge
	DelaySeconds     prometheus.Gauge
	State            *prometheus.GaugeVec
	TicksTotal       *prometheus.CounterVec
	ReconfigureTotal *prometheus.CounterVec
}

// NewMetrics registers the series with reg. A nil reg registers nowhere,
// which is handy in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BuffersTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_buffers",
			Help:      "Number of buffers owned by the pool",
		}, []string{"pool"}),
		BuffersFree: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_free_buffers",
			Help:      "Number of buffers on the free list",
		}, []string{"pool"}),
		InputQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_queue_buffers",
			Help:      "Buffers waiting for conversion",
		}),
		OutputQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_queue_buffers",
			Help:      "Converted buffers waiting for the consumer",
		}),
		DelaySeconds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delay_seconds",
			Help:      "Audio held by the pipeline",
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Pipeline state, 1 for the current state",
		}, []string{"state"}),
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "ResampleBuffers calls by result",
		}, []string{"result"}),
		ReconfigureTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconfigurations_total",
			Help:      "Applied reconfigurations by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observePool(name string, total, free int) {
	if m == nil {
		return
	}
	m.BuffersTotal.WithLabelValues(name).Set(float64(total))
	m.BuffersFree.WithLabelValues(name).Set(float64(free))
}

func (m *Metrics) observePipeline(input, output int, delay float64, state PipelineState) {
	if m == nil {
		return
	}
	m.InputQueue.Set(float64(input))
	m.OutputQueue.Set(float64(output))
	m.DelaySeconds.Set(delay)
	for s := StateStreaming; s <= StateIdle; s++ {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) tick(busy bool) {
	if m == nil {
		return
	}
	result := "idle"
	if busy {
		result = "busy"
	}
	m.TicksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) reconfigured(kind string) {
	if m == nil {
		return
	}
	m.ReconfigureTotal.WithLabelValues(kind).Inc()
}
