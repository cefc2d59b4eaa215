// Package convert provides the reference Converter: sample format decoding,
// channel mixing and streaming rate conversion in one pass.
package convert

import (
	"errors"
	"fmt"

	bp "github.com/tphakala/go-audio-bufferpool"
	"github.com/tphakala/go-audio-bufferpool/internal/engine"
	"github.com/tphakala/go-audio-bufferpool/internal/mixer"
	"github.com/tphakala/go-audio-bufferpool/internal/pipeline"
	"github.com/tphakala/go-audio-bufferpool/internal/sampleconv"
)

// Errors returned by the Resampler.
var (
	ErrNotInitialized = errors.New("converter not initialized")
	ErrAlreadyInit    = errors.New("converter already initialized")
	ErrUnsupported    = errors.New("unsupported conversion")
)

// Zero crossings of the sinc kernel per quality.
const (
	zeroCrossingsHigh     = 8
	zeroCrossingsVeryHigh = 32

	// initialFIFOFrames is the starting capacity of the output FIFO.
	initialFIFOFrames = 4096
)

var _ bp.Drainer = (*Resampler)(nil)

// Resampler converts between any two sample addressable formats.
// It is not safe for concurrent use.
type Resampler struct {
	cfg    bp.ConverterConfig
	srcEnc sampleconv.Encoding
	dstEnc sampleconv.Encoding

	mix    *mixer.Matrix
	interp []*engine.Interpolator
	fifo   *pipeline.FrameFIFO

	// nominal is input samples per output sample at ratio 1.
	nominal float64

	srcBuf  [][]float64
	mixBuf  [][]float64
	rateBuf [][]float64
	outBuf  [][]float64

	initialized bool
}

// New returns an uninitialized Resampler.
func New() *Resampler {
	return &Resampler{}
}

// Factory is a bp.ConverterFactory producing Resamplers.
func Factory() bp.Converter {
	return New()
}

// KernelFor maps a quality to the interpolation kernel used for it.
func KernelFor(q bp.Quality) engine.KernelSpec {
	switch q {
	case bp.QualityLow:
		return engine.KernelSpec{Method: engine.MethodLinear}
	case bp.QualityMedium:
		return engine.KernelSpec{Method: engine.MethodCubic}
	case bp.QualityVeryHigh:
		return engine.KernelSpec{Method: engine.MethodSinc, ZeroCrossings: zeroCrossingsVeryHigh}
	default:
		return engine.KernelSpec{Method: engine.MethodSinc, ZeroCrossings: zeroCrossingsHigh}
	}
}

// EncodingFor maps a data format to its sample codec.
func EncodingFor(f bp.DataFormat) (sampleconv.Encoding, error) {
	e := sampleconv.Encoding{Planar: f.IsPlanar()}
	switch f {
	case bp.FormatU8, bp.FormatU8P:
		e.Kind = sampleconv.KindU8
	case bp.FormatS16, bp.FormatS16P:
		e.Kind = sampleconv.KindS16
	case bp.FormatS24In32:
		e.Kind = sampleconv.KindS24In32
	case bp.FormatS24Packed:
		e.Kind = sampleconv.KindS24Packed
	case bp.FormatS32, bp.FormatS32P:
		e.Kind = sampleconv.KindS32
	case bp.FormatFloat, bp.FormatFloatP:
		e.Kind = sampleconv.KindFloat32
	case bp.FormatDouble, bp.FormatDoubleP:
		e.Kind = sampleconv.KindFloat64
	default:
		return e, fmt.Errorf("%w: data format %s", ErrUnsupported, f)
	}
	return e, nil
}

// Init implements bp.Converter.
func (r *Resampler) Init(cfg bp.ConverterConfig) error {
	if r.initialized {
		return ErrAlreadyInit
	}
	if cfg.SrcRate <= 0 || cfg.DstRate <= 0 {
		return fmt.Errorf("%w: rates %d -> %d", ErrUnsupported, cfg.SrcRate, cfg.DstRate)
	}
	if cfg.SrcChannels != cfg.SrcLayout.Count() || cfg.DstChannels != cfg.DstLayout.Count() {
		return fmt.Errorf("%w: channel count does not match layout", ErrUnsupported)
	}

	srcEnc, err := EncodingFor(cfg.SrcFormat)
	if err != nil {
		return err
	}
	dstEnc, err := EncodingFor(cfg.DstFormat)
	if err != nil {
		return err
	}

	dstLayout := cfg.DstLayout
	if cfg.RemapLayout != nil {
		if cfg.RemapLayout.Count() != cfg.DstChannels {
			return fmt.Errorf("%w: remap layout has %d channels, output has %d",
				ErrUnsupported, cfg.RemapLayout.Count(), cfg.DstChannels)
		}
		dstLayout = cfg.RemapLayout
	}
	mix, err := mixer.New(cfg.SrcLayout, dstLayout, mixer.Options{
		Upmix:     cfg.Upmix,
		Normalize: cfg.Normalize,
	})
	if err != nil {
		return err
	}

	kernel, err := engine.NewKernel(KernelFor(cfg.Quality), cfg.SrcRate, cfg.DstRate)
	if err != nil {
		return err
	}
	nominal := float64(cfg.SrcRate) / float64(cfg.DstRate)
	interp := make([]*engine.Interpolator, cfg.DstChannels)
	for ch := range interp {
		if interp[ch], err = engine.NewInterpolator(kernel, nominal); err != nil {
			return err
		}
	}

	r.cfg = cfg
	r.srcEnc = srcEnc
	r.dstEnc = dstEnc
	r.mix = mix
	r.interp = interp
	r.nominal = nominal
	r.fifo = pipeline.NewFrameFIFO(cfg.DstChannels, initialFIFOFrames)
	r.srcBuf = make([][]float64, cfg.SrcChannels)
	r.mixBuf = make([][]float64, cfg.DstChannels)
	r.rateBuf = make([][]float64, cfg.DstChannels)
	r.outBuf = make([][]float64, cfg.DstChannels)
	r.initialized = true
	return nil
}

// Config returns the configuration passed to Init.
func (r *Resampler) Config() bp.ConverterConfig {
	return r.cfg
}

// Resample implements bp.Converter. A call without input only serves the
// FIFO; the interpolator look-ahead stays put until Drain.
func (r *Resampler) Resample(dst [][]byte, dstFrames int, src [][]byte, srcFrames int, ratio float64) (int, error) {
	if !r.initialized {
		return 0, ErrNotInitialized
	}
	if ratio <= 0 {
		return 0, fmt.Errorf("%w: ratio %v", ErrUnsupported, ratio)
	}

	if src != nil && srcFrames > 0 {
		if err := r.push(src, srcFrames, ratio); err != nil {
			return 0, err
		}
	}

	return r.pull(dst, dstFrames)
}

func (r *Resampler) push(src [][]byte, frames int, ratio float64) error {
	growAll(r.srcBuf, frames)
	growAll(r.mixBuf, frames)
	if err := sampleconv.Decode(r.srcBuf, src, r.srcEnc, frames); err != nil {
		return err
	}
	if err := r.mix.Apply(r.mixBuf, r.srcBuf, frames); err != nil {
		return err
	}

	if r.passthrough(ratio) {
		r.fifo.Write(r.mixBuf)
		return nil
	}

	step := r.nominal / ratio
	for ch, ip := range r.interp {
		if err := ip.SetStep(step); err != nil {
			return err
		}
		r.rateBuf[ch] = ip.Process(r.rateBuf[ch][:0], r.mixBuf[ch][:frames])
	}
	r.fifo.Write(r.rateBuf)
	return nil
}

// passthrough reports whether samples can skip interpolation.
func (r *Resampler) passthrough(ratio float64) bool {
	return r.cfg.SrcRate == r.cfg.DstRate && ratio == 1 && r.interp[0].Pending() == 0
}

// Drain implements bp.Drainer. It pads the interpolators with silence,
// queues the remaining output and starts a new stream segment.
func (r *Resampler) Drain() {
	if !r.initialized {
		return
	}
	r.flush()
}

func (r *Resampler) flush() {
	for ch, ip := range r.interp {
		r.rateBuf[ch] = ip.Flush(r.rateBuf[ch][:0])
	}
	r.fifo.Write(r.rateBuf)
}

func (r *Resampler) pull(dst [][]byte, dstFrames int) (int, error) {
	n := min(dstFrames, r.fifo.Available())
	if n == 0 {
		return 0, nil
	}
	growAll(r.outBuf, n)
	n = r.fifo.Read(r.outBuf, n)
	if err := sampleconv.Encode(dst, r.outBuf, r.dstEnc, n); err != nil {
		return 0, err
	}
	return n, nil
}

// BufferedFrames implements bp.Converter.
func (r *Resampler) BufferedFrames() int {
	if !r.initialized {
		return 0
	}
	return r.fifo.Available() + r.interp[0].Pending()
}

func growAll(bufs [][]float64, n int) {
	for i, b := range bufs {
		if cap(b) < n {
			bufs[i] = make([]float64, n)
		} else {
			bufs[i] = b[:n]
		}
	}
}
