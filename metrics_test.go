package bufferpool

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observePool(poolNameOutput, 1, 1)
		m.observePipeline(1, 2, 0.5, StateIdle)
		m.tick(true)
		m.reconfigured(reconfigureKindStage)
	})
}

func TestMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "test")

	// A second set with the same names must collide.
	assert.Panics(t, func() { NewMetrics(reg, "test") })

	// Without a registry nothing is registered.
	assert.NotPanics(t, func() {
		NewMetrics(nil, "test")
		NewMetrics(nil, "test")
	})
}

func TestMetrics_PoolGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")
	p := NewBufferPool(testFormat, nil, nil)
	p.SetMetrics(m, poolNameOutput)
	require.NoError(t, p.Create(0))

	total := m.BuffersTotal.WithLabelValues(poolNameOutput)
	free := m.BuffersFree.WithLabelValues(poolNameOutput)
	assert.Equal(t, float64(minPoolBuffers), testutil.ToFloat64(total))
	assert.Equal(t, float64(minPoolBuffers), testutil.ToFloat64(free))

	b := p.GetFreeBuffer()
	assert.Equal(t, float64(minPoolBuffers-1), testutil.ToFloat64(free))
	b.Return()
	assert.Equal(t, float64(minPoolBuffers), testutil.ToFloat64(free))

	p.Close()
	assert.Zero(t, testutil.ToFloat64(total))
}

func TestMetrics_Pipeline(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")
	h := newHarness(t, Config{Metrics: m}, CreateOptions{})
	h.convs.last().hold = 100

	h.push(441)
	h.push(441)
	h.tick(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InputQueue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutputQueue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("busy")))
	assert.InDelta(t, h.rp.Delay(), testutil.ToFloat64(m.DelaySeconds), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("streaming")))

	h.rp.RequestResamplerChange()
	h.tick(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("reconfigure-pending")))
	assert.Zero(t, testutil.ToFloat64(m.State.WithLabelValues("streaming")))

	h.tick(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconfigureTotal.WithLabelValues(reconfigureKindConverter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("streaming")))
}

func TestMetrics_IdleTicks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")
	h := newHarness(t, Config{Metrics: m}, CreateOptions{})

	h.tick(1)
	h.tick(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("idle")))
	assert.Equal(t, 4, testutil.CollectAndCount(m.State), "one series per state")
}
