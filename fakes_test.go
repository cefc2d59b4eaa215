package bufferpool

import (
	"errors"

	"github.com/google/uuid"
)

var errFake = errors.New("fake failure")

// fakeConverter moves frames without touching sample values. It keeps hold
// frames back until called without input, like a filter with look-ahead.
type fakeConverter struct {
	cfg      ConverterConfig
	hold     int
	buffered int
	fill     byte

	inits   int
	calls   int
	nilCall int
	drains  int

	initErr     error
	resampleErr error
	lastRatio   float64
}

func (c *fakeConverter) Init(cfg ConverterConfig) error {
	c.inits++
	c.cfg = cfg
	return c.initErr
}

func (c *fakeConverter) Resample(dst [][]byte, dstFrames int, src [][]byte, srcFrames int, ratio float64) (int, error) {
	c.calls++
	c.lastRatio = ratio
	if c.resampleErr != nil {
		return 0, c.resampleErr
	}

	if src == nil {
		c.nilCall++
	} else {
		c.buffered += srcFrames
	}
	available := c.buffered
	if src != nil {
		available -= c.hold
	}
	n := max(0, min(dstFrames, available))
	c.buffered -= n

	perFrame := c.cfg.DstFormat.BytesPerSample() * c.cfg.DstChannels / len(dst)
	for _, plane := range dst {
		for i := range n * perFrame {
			plane[i] = c.fill
		}
	}
	return n, nil
}

func (c *fakeConverter) BufferedFrames() int {
	return c.buffered
}

// drainableConverter is a fakeConverter that is told about stream ends.
type drainableConverter struct {
	*fakeConverter
}

func (c drainableConverter) Drain() {
	c.drains++
}

// converterFactory records every converter it hands out.
type converterFactory struct {
	made      []*fakeConverter
	hold      int
	initErr   error
	drainable bool
}

func (f *converterFactory) New() Converter {
	c := &fakeConverter{hold: f.hold, fill: 0xAB, initErr: f.initErr}
	f.made = append(f.made, c)
	if f.drainable {
		return drainableConverter{c}
	}
	return c
}

func (f *converterFactory) last() *fakeConverter {
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

// fakeProcessor copies the frame count and reports a fixed output format.
type fakeProcessor struct {
	input  AudioFormat
	layout ChannelLayout
	rate   int
	format DataFormat
	delay  float64
	fail   bool
	calls  int
}

func (p *fakeProcessor) ChannelLayout() ChannelLayout { return p.layout }
func (p *fakeProcessor) SampleRate() int              { return p.rate }
func (p *fakeProcessor) DataFormat() DataFormat       { return p.format }
func (p *fakeProcessor) InputFormat() AudioFormat     { return p.input }
func (p *fakeProcessor) Delay() float64               { return p.delay }

func (p *fakeProcessor) Process(in, out *SampleBuffer, _ Converter) bool {
	p.calls++
	if p.fail {
		return false
	}
	out.Pkt.Frames = in.Frames()
	return true
}

// fakeStages enables processing while enabled is set.
type fakeStages struct {
	enabled bool
	layout  ChannelLayout
	format  DataFormat
	delay   float64
	fail    bool

	requests  []StageRequest
	destroyed []uuid.UUID
	current   *fakeProcessor
}

func (s *fakeStages) CreateStage(req StageRequest) (Processor, bool) {
	s.requests = append(s.requests, req)
	if !s.enabled {
		return nil, false
	}
	layout := s.layout
	if layout == nil {
		layout = req.Input.Layout
	}
	format := s.format
	if format == FormatInvalid {
		format = FormatFloatP
	}
	s.current = &fakeProcessor{
		input:  req.Input,
		layout: layout,
		rate:   req.Input.SampleRate,
		format: format,
		delay:  s.delay,
		fail:   s.fail,
	}
	return s.current, true
}

func (s *fakeStages) DestroyStage(id uuid.UUID) {
	s.destroyed = append(s.destroyed, id)
}

func (s *fakeStages) lastRequest() StageRequest {
	return s.requests[len(s.requests)-1]
}
