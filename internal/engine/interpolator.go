package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidStep is returned for a non-positive or non-finite step.
var ErrInvalidStep = errors.New("interpolation step must be positive and finite")

// Kernel computes one output sample from input history.
type Kernel interface {
	// Extent returns how many samples before and after the base sample
	// At reads.
	Extent() (left, right int)

	// At interpolates at position i0+frac of hist.
	At(hist []float64, i0 int, frac float64) float64
}

// Method selects an interpolation kernel.
type Method int

const (
	// MethodLinear interpolates between neighbouring samples.
	MethodLinear Method = iota
	// MethodCubic uses 4-point Hermite interpolation.
	MethodCubic
	// MethodSinc uses a band-limited windowed-sinc kernel.
	MethodSinc
)

// KernelSpec configures NewKernel.
type KernelSpec struct {
	Method Method
	// ZeroCrossings is the one-sided sinc width at unity ratio.
	ZeroCrossings int
	// Rolloff is the sinc passband edge relative to Nyquist. Zero selects 0.95.
	Rolloff float64
}

// NewKernel builds the kernel for converting srcRate to dstRate. When
// downsampling, the sinc passband and width scale with the rate ratio so
// the kernel keeps rejecting aliases.
func NewKernel(spec KernelSpec, srcRate, dstRate int) (Kernel, error) {
	switch spec.Method {
	case MethodLinear:
		return LinearKernel{}, nil
	case MethodCubic:
		return CubicKernel{}, nil
	case MethodSinc:
		rolloff := spec.Rolloff
		if rolloff == 0 {
			rolloff = defaultRolloff
		}
		scale := math.Min(1, float64(dstRate)/float64(srcRate))
		zc := int(math.Ceil(float64(spec.ZeroCrossings) / scale))
		zc = min(max(zc, 1), maxSincZeroCrossings)
		return NewSincKernel(zc, rolloff*scale)
	default:
		return nil, fmt.Errorf("unknown interpolation method %d", spec.Method)
	}
}

// Interpolator resamples one channel as a stream. Input is appended to an
// internal history; output is produced for every position whose kernel
// support is complete.
type Interpolator struct {
	kernel      Kernel
	left, right int
	step        float64

	hist   []float64
	pos    float64
	primed bool
}

// NewInterpolator creates an interpolator reading step input samples per
// output sample.
func NewInterpolator(k Kernel, step float64) (*Interpolator, error) {
	if !validStep(step) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}
	left, right := k.Extent()
	return &Interpolator{kernel: k, left: left, right: right, step: step}, nil
}

func validStep(step float64) bool {
	return step > 0 && !math.IsInf(step, 0) && !math.IsNaN(step)
}

// SetStep changes the input samples consumed per output sample.
func (ip *Interpolator) SetStep(step float64) error {
	if !validStep(step) {
		return fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}
	ip.step = step
	return nil
}

// Step returns the current step.
func (ip *Interpolator) Step() float64 {
	return ip.step
}

// Process appends in to the history and appends every sample that can be
// produced to out.
func (ip *Interpolator) Process(out, in []float64) []float64 {
	if len(in) == 0 {
		return out
	}
	if !ip.primed {
		// Leading silence gives the first output sample a full window.
		ip.hist = append(ip.hist[:0], make([]float64, ip.left)...)
		ip.pos = float64(ip.left)
		ip.primed = true
	}
	ip.hist = append(ip.hist, in...)
	out = ip.run(out, len(ip.hist))
	ip.compact()
	return out
}

// Flush pads the history with silence, emits the remaining output for the
// input received so far and resets the interpolator. Flushing an idle
// interpolator produces nothing.
func (ip *Interpolator) Flush(out []float64) []float64 {
	if !ip.primed {
		return out
	}
	end := len(ip.hist)
	ip.hist = append(ip.hist, make([]float64, ip.right)...)
	out = ip.run(out, end)
	ip.Reset()
	return out
}

// run produces samples for positions below end.
func (ip *Interpolator) run(out []float64, end int) []float64 {
	limit := float64(end)
	for ip.pos < limit {
		i0 := int(ip.pos)
		if i0+ip.right >= len(ip.hist) {
			break
		}
		out = append(out, ip.kernel.At(ip.hist, i0, ip.pos-float64(i0)))
		ip.pos += ip.step
	}
	return out
}

// compact drops history no longer reachable by the kernel.
func (ip *Interpolator) compact() {
	drop := int(ip.pos) - ip.left
	if drop <= 0 {
		return
	}
	drop = min(drop, len(ip.hist))
	n := copy(ip.hist, ip.hist[drop:])
	ip.hist = ip.hist[:n]
	ip.pos -= float64(drop)
}

// Pending estimates the output samples the buffered input will still yield.
func (ip *Interpolator) Pending() int {
	if !ip.primed {
		return 0
	}
	remaining := float64(len(ip.hist)) - ip.pos
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining / ip.step))
}

// Reset discards all history.
func (ip *Interpolator) Reset() {
	ip.hist = ip.hist[:0]
	ip.pos = 0
	ip.primed = false
}
