package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bp "github.com/tphakala/go-audio-bufferpool"
)

const tolerance = 1e-12

func TestNew_SameLayoutIsIdentity(t *testing.T) {
	m, err := New(bp.Layout5Point1, bp.Layout5Point1, Options{Normalize: true})
	require.NoError(t, err)
	assert.True(t, m.IsIdentity())

	src := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	dst := make([][]float64, 6)
	for i := range dst {
		dst[i] = make([]float64, 1)
	}
	require.NoError(t, m.Apply(dst, src, 1))
	assert.Equal(t, src, dst)
}

func TestNew_EmptyLayout(t *testing.T) {
	_, err := New(nil, bp.LayoutStereo, Options{})
	require.ErrorIs(t, err, ErrEmptyLayout)
}

func TestNew_Downmix51ToStereo(t *testing.T) {
	m, err := New(bp.Layout5Point1, bp.LayoutStereo, Options{})
	require.NoError(t, err)
	require.Equal(t, 6, m.Inputs())
	require.Equal(t, 2, m.Outputs())

	// FL FR FC LFE BL BR
	assert.InDelta(t, 1.0, m.At(0, 0), tolerance)
	assert.InDelta(t, 0.0, m.At(0, 1), tolerance)
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 2), tolerance)
	assert.InDelta(t, 0.0, m.At(0, 3), tolerance, "LFE is dropped")
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 4), tolerance)
	assert.InDelta(t, math.Sqrt2/2, m.At(1, 5), tolerance)
}

func TestNew_NormalizeLimitsRowGain(t *testing.T) {
	m, err := New(bp.Layout5Point1, bp.LayoutStereo, Options{Normalize: true})
	require.NoError(t, err)

	for o := range m.Outputs() {
		gain := 0.0
		for i := range m.Inputs() {
			gain += math.Abs(m.At(o, i))
		}
		assert.LessOrEqual(t, gain, 1.0+tolerance)
	}
}

func TestNew_MonoToStereo(t *testing.T) {
	m, err := New(bp.LayoutMono, bp.LayoutStereo, Options{})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 0), tolerance)
	assert.InDelta(t, math.Sqrt2/2, m.At(1, 0), tolerance)
}

func TestNew_StereoToMono(t *testing.T) {
	m, err := New(bp.LayoutStereo, bp.LayoutMono, Options{})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 0), tolerance)
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 1), tolerance)
}

func TestNew_UpmixFeedsSilentChannels(t *testing.T) {
	plain, err := New(bp.LayoutStereo, bp.Layout5Point1, Options{})
	require.NoError(t, err)
	up, err := New(bp.LayoutStereo, bp.Layout5Point1, Options{Upmix: true})
	require.NoError(t, err)

	// Without upmix only the front pair carries signal.
	assert.InDelta(t, 0.0, plain.At(2, 0), tolerance)
	assert.InDelta(t, 0.0, plain.At(4, 0), tolerance)

	assert.InDelta(t, 0.5, up.At(2, 0), tolerance, "FC from FL")
	assert.InDelta(t, 0.5, up.At(2, 1), tolerance, "FC from FR")
	assert.InDelta(t, 0.0, up.At(3, 0), tolerance, "LFE stays silent")
	assert.InDelta(t, 1.0, up.At(4, 0), tolerance, "BL from FL")
	assert.InDelta(t, 1.0, up.At(5, 1), tolerance, "BR from FR")
}

func TestMatrix_Apply(t *testing.T) {
	m, err := New(bp.LayoutQuad, bp.LayoutStereo, Options{})
	require.NoError(t, err)

	src := [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 0}}
	dst := [][]float64{make([]float64, 2), make([]float64, 2)}
	require.NoError(t, m.Apply(dst, src, 2))

	assert.InDelta(t, 1+math.Sqrt2/2, dst[0][0], tolerance)
	assert.InDelta(t, 0.0, dst[1][0], tolerance)
	assert.InDelta(t, 1.0, dst[1][1], tolerance)

	require.Error(t, m.Apply(dst[:1], src, 2))
	require.NoError(t, m.Apply(dst, src, 0))
}
