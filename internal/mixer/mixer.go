// Package mixer builds and applies channel mixing matrices.
package mixer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	bp "github.com/tphakala/go-audio-bufferpool"
)

// Mix levels.
const (
	levelUnity    = 1.0
	levelMinus3dB = math.Sqrt2 / 2
	levelMinus6dB = 0.5
)

// ErrEmptyLayout is returned when either side of the mix has no channels.
var ErrEmptyLayout = errors.New("channel layout is empty")

// Options control how channels missing on one side are handled.
type Options struct {
	// Upmix feeds output channels that have no source counterpart.
	Upmix bool
	// Normalize scales the matrix so no output can exceed full scale.
	Normalize bool
}

// Matrix maps source channels to output channels. Row o holds the weights
// of every source channel for output o.
type Matrix struct {
	m        *mat.Dense
	in, out  int
	identity bool

	inBuf, outBuf []float64
}

// New builds the matrix mixing src into dst.
func New(src, dst bp.ChannelLayout, opts Options) (*Matrix, error) {
	if src.Count() == 0 || dst.Count() == 0 {
		return nil, ErrEmptyLayout
	}

	m := mat.NewDense(dst.Count(), src.Count(), nil)
	for i, ch := range src {
		route(m, dst, i, ch)
	}
	if opts.Upmix {
		upmix(m, src, dst)
	}
	if opts.Normalize {
		normalize(m)
	}

	return &Matrix{
		m:        m,
		in:       src.Count(),
		out:      dst.Count(),
		identity: isIdentity(m),
	}, nil
}

// route adds the contribution of source channel ch (column i).
func route(m *mat.Dense, dst bp.ChannelLayout, i int, ch bp.Channel) {
	add := func(target bp.Channel, level float64) bool {
		o := dst.Index(target)
		if o < 0 {
			return false
		}
		m.Set(o, i, m.At(o, i)+level)
		return true
	}
	pair := func(l, r bp.Channel, level float64) bool {
		if !dst.Has(l) || !dst.Has(r) {
			return false
		}
		add(l, level)
		add(r, level)
		return true
	}

	if add(ch, levelUnity) {
		return
	}

	switch ch {
	case bp.ChannelLFE:
		// Dropped unless the output has a subwoofer.
		return
	case bp.ChannelFC:
		if pair(bp.ChannelFL, bp.ChannelFR, levelMinus3dB) {
			return
		}
	case bp.ChannelFL, bp.ChannelFR:
		if add(bp.ChannelFC, levelMinus3dB) {
			return
		}
	case bp.ChannelBL:
		if add(bp.ChannelSL, levelUnity) || add(bp.ChannelFL, levelMinus3dB) {
			return
		}
	case bp.ChannelSL:
		if add(bp.ChannelBL, levelUnity) || add(bp.ChannelFL, levelMinus3dB) {
			return
		}
	case bp.ChannelBR:
		if add(bp.ChannelSR, levelUnity) || add(bp.ChannelFR, levelMinus3dB) {
			return
		}
	case bp.ChannelSR:
		if add(bp.ChannelBR, levelUnity) || add(bp.ChannelFR, levelMinus3dB) {
			return
		}
	case bp.ChannelBC:
		if pair(bp.ChannelBL, bp.ChannelBR, levelMinus3dB) || pair(bp.ChannelFL, bp.ChannelFR, levelMinus6dB) {
			return
		}
	}

	// No conventional target: centre if possible, otherwise spread evenly.
	if add(bp.ChannelFC, levelMinus3dB) {
		return
	}
	level := 1 / float64(dst.Count())
	for o := range dst.Count() {
		m.Set(o, i, m.At(o, i)+level)
	}
}

// upmix feeds silent outputs from the front pair of the source.
func upmix(m *mat.Dense, src, dst bp.ChannelLayout) {
	fl, fr := src.Index(bp.ChannelFL), src.Index(bp.ChannelFR)
	fc := src.Index(bp.ChannelFC)

	for o, ch := range dst {
		if mat.Sum(m.RowView(o)) != 0 {
			continue
		}
		switch ch {
		case bp.ChannelFC:
			if fl >= 0 && fr >= 0 {
				m.Set(o, fl, levelMinus6dB)
				m.Set(o, fr, levelMinus6dB)
			}
		case bp.ChannelBL, bp.ChannelSL:
			if fl >= 0 {
				m.Set(o, fl, levelUnity)
			} else if fc >= 0 {
				m.Set(o, fc, levelMinus3dB)
			}
		case bp.ChannelBR, bp.ChannelSR:
			if fr >= 0 {
				m.Set(o, fr, levelUnity)
			} else if fc >= 0 {
				m.Set(o, fc, levelMinus3dB)
			}
		case bp.ChannelBC:
			if fl >= 0 && fr >= 0 {
				m.Set(o, fl, levelMinus6dB)
				m.Set(o, fr, levelMinus6dB)
			}
		}
	}
}

// normalize divides the matrix by its largest row gain when above unity.
func normalize(m *mat.Dense) {
	rows, cols := m.Dims()
	maxGain := 0.0
	for o := range rows {
		gain := 0.0
		for i := range cols {
			gain += math.Abs(m.At(o, i))
		}
		maxGain = math.Max(maxGain, gain)
	}
	if maxGain > 1 {
		m.Scale(1/maxGain, m)
	}
}

func isIdentity(m *mat.Dense) bool {
	rows, cols := m.Dims()
	if rows != cols {
		return false
	}
	for o := range rows {
		for i := range cols {
			want := 0.0
			if o == i {
				want = 1
			}
			if m.At(o, i) != want {
				return false
			}
		}
	}
	return true
}

// Inputs returns the number of source channels.
func (x *Matrix) Inputs() int { return x.in }

// Outputs returns the number of output channels.
func (x *Matrix) Outputs() int { return x.out }

// IsIdentity reports whether Apply copies channels unchanged.
func (x *Matrix) IsIdentity() bool { return x.identity }

// At returns the weight of source channel in for output channel out.
func (x *Matrix) At(out, in int) float64 { return x.m.At(out, in) }

// Apply mixes frames frames of src (one slice per source channel) into dst
// (one slice per output channel).
func (x *Matrix) Apply(dst, src [][]float64, frames int) error {
	if len(src) != x.in || len(dst) != x.out {
		return fmt.Errorf("mixer expects %d -> %d channels, got %d -> %d", x.in, x.out, len(src), len(dst))
	}
	if frames == 0 {
		return nil
	}
	if x.identity {
		for ch := range src {
			copy(dst[ch][:frames], src[ch][:frames])
		}
		return nil
	}

	x.inBuf = grow(x.inBuf, x.in*frames)
	x.outBuf = grow(x.outBuf, x.out*frames)
	for ch := range src {
		copy(x.inBuf[ch*frames:(ch+1)*frames], src[ch][:frames])
	}

	in := mat.NewDense(x.in, frames, x.inBuf[:x.in*frames])
	out := mat.NewDense(x.out, frames, x.outBuf[:x.out*frames])
	out.Mul(x.m, in)

	for ch := range dst {
		copy(dst[ch][:frames], x.outBuf[ch*frames:(ch+1)*frames])
	}
	return nil
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
