package engine

import (
	"github.com/tphakala/simd/f64"

	"github.com/tphakala/go-audio-bufferpool/internal/filter"
)

// SincKernel interpolates with a Kaiser windowed-sinc table.
type SincKernel struct {
	table   *filter.SincTable
	zc      int
	scratch []float64
}

// NewSincKernel builds a sinc kernel. zeroCrossings is the one-sided width
// of the kernel in input samples and cutoff the passband edge relative to
// the input Nyquist frequency.
func NewSincKernel(zeroCrossings int, cutoff float64) (*SincKernel, error) {
	table, err := filter.NewSincTable(zeroCrossings, sincPhases, cutoff, sincAttenuation)
	if err != nil {
		return nil, err
	}
	return &SincKernel{
		table:   table,
		zc:      zeroCrossings,
		scratch: make([]float64, table.Taps()),
	}, nil
}

// Extent implements Kernel.
func (k *SincKernel) Extent() (left, right int) {
	return k.zc - 1, k.zc
}

// At implements Kernel.
func (k *SincKernel) At(hist []float64, i0 int, frac float64) float64 {
	k.table.Coefficients(k.scratch, frac)
	return f64.DotProduct(hist[i0-k.zc+1:i0+k.zc+1], k.scratch)
}
