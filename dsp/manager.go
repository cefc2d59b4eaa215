// Package dsp provides a StageManager running a gain and upmix stage in
// front of the converter.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/simd/f64"
	"go.uber.org/zap"

	bp "github.com/tphakala/go-audio-bufferpool"
	"github.com/tphakala/go-audio-bufferpool/convert"
	"github.com/tphakala/go-audio-bufferpool/internal/mixer"
	"github.com/tphakala/go-audio-bufferpool/internal/sampleconv"
)

// ErrInvalidGain is returned for a negative or non-finite gain.
var ErrInvalidGain = errors.New("gain must be finite and not negative")

// stageFormat is the sample format produced by every stage.
const stageFormat = bp.FormatFloatP

// Config holds the manager settings.
type Config struct {
	// Enabled turns processing on for new and rebuilt stages.
	Enabled bool
	// Gain is the linear gain applied to every channel. Zero means unity.
	Gain float64
	// Latency is reported as the stage delay.
	Latency time.Duration
	Logger  *zap.Logger
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Gain < 0 || math.IsNaN(c.Gain) || math.IsInf(c.Gain, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidGain, c.Gain)
	}
	if c.Latency < 0 {
		return errors.New("latency must not be negative")
	}
	return nil
}

// Manager creates one Stage per stream. Its settings may be changed from
// any goroutine; they apply to stages created afterwards.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	logger  *zap.Logger
	streams map[uuid.UUID]*Stage
}

// NewManager creates a manager.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := *config
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.Named("dsp"),
		streams: make(map[uuid.UUID]*Stage),
	}, nil
}

// SetEnabled switches processing on or off for stages created afterwards.
// Running pools pick it up after RequestDSPChange.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Enabled = enabled
}

// Enabled reports whether processing is on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Enabled
}

// SetGain changes the gain of stages created afterwards.
func (m *Manager) SetGain(gain float64) error {
	cfg := Config{Gain: gain}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Gain = gain
	return nil
}

// CreateStage implements bp.StageManager.
func (m *Manager) CreateStage(req bp.StageRequest) (bp.Processor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		return nil, false
	}

	stage, err := newStage(req, m.cfg.Gain, m.cfg.Latency)
	if err != nil {
		m.logger.Warn("cannot build processing stage",
			zap.Stringer("stream", req.StreamID),
			zap.Error(err))
		return nil, false
	}
	m.streams[req.StreamID] = stage
	m.logger.Debug("processing stage created",
		zap.Stringer("stream", req.StreamID),
		zap.Stringer("layout", stage.layout),
		zap.Bool("rebuilt", req.WasActive))
	return stage, true
}

// DestroyStage implements bp.StageManager.
func (m *Manager) DestroyStage(streamID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
	m.logger.Debug("processing stage destroyed", zap.Stringer("stream", streamID))
}

// Active reports whether a stage exists for streamID.
func (m *Manager) Active(streamID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[streamID]
	return ok
}

// Streams returns the number of live stages.
func (m *Manager) Streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Stage applies gain and, when requested, upmixes to the output layout.
// It always produces planar float at the input rate.
type Stage struct {
	input   bp.AudioFormat
	layout  bp.ChannelLayout
	gain    float64
	latency time.Duration

	inEnc sampleconv.Encoding
	mix   *mixer.Matrix

	inBuf, outBuf [][]float64
}

func newStage(req bp.StageRequest, gain float64, latency time.Duration) (*Stage, error) {
	inEnc, err := convert.EncodingFor(req.Input.DataFormat)
	if err != nil {
		return nil, err
	}

	s := &Stage{
		input:   req.Input,
		layout:  req.Input.Layout,
		gain:    gain,
		latency: latency,
		inEnc:   inEnc,
	}
	if req.Upmix && req.Input.Layout.Count() <= 2 && req.Output.Layout.Count() > 2 {
		s.layout = req.Output.Layout
	}
	if s.mix, err = mixer.New(req.Input.Layout, s.layout, mixer.Options{Upmix: true}); err != nil {
		return nil, err
	}

	s.inBuf = make([][]float64, req.Input.Layout.Count())
	s.outBuf = make([][]float64, s.layout.Count())
	return s, nil
}

// ChannelLayout implements bp.Processor.
func (s *Stage) ChannelLayout() bp.ChannelLayout { return s.layout }

// SampleRate implements bp.Processor.
func (s *Stage) SampleRate() int { return s.input.SampleRate }

// DataFormat implements bp.Processor.
func (s *Stage) DataFormat() bp.DataFormat { return stageFormat }

// InputFormat implements bp.Processor.
func (s *Stage) InputFormat() bp.AudioFormat { return s.input }

// Delay implements bp.Processor.
func (s *Stage) Delay() float64 { return s.latency.Seconds() }

// Gain returns the linear gain of the stage.
func (s *Stage) Gain() float64 { return s.gain }

// Process implements bp.Processor. It fails when out cannot hold the
// input or a buffer does not match the negotiated formats.
func (s *Stage) Process(in, out *bp.SampleBuffer, _ bp.Converter) bool {
	frames := in.Frames()
	if frames > out.Pkt.MaxFrames || out.Pkt.Config.Format != stageFormat ||
		out.Pkt.Config.Channels != s.layout.Count() {
		return false
	}

	grow(s.inBuf, frames)
	grow(s.outBuf, frames)
	if err := sampleconv.Decode(s.inBuf, in.Pkt.Data, s.inEnc, frames); err != nil {
		return false
	}
	if err := s.mix.Apply(s.outBuf, s.inBuf, frames); err != nil {
		return false
	}
	if s.gain != 1 {
		for _, ch := range s.outBuf {
			f64.Scale(ch, ch, s.gain)
		}
	}

	enc := sampleconv.Encoding{Kind: sampleconv.KindFloat32, Planar: true}
	if err := sampleconv.Encode(out.Pkt.Data, s.outBuf, enc, frames); err != nil {
		return false
	}
	out.Pkt.Frames = frames
	return true
}

func grow(bufs [][]float64, n int) {
	for i, b := range bufs {
		if cap(b) < n {
			bufs[i] = make([]float64, n)
		} else {
			bufs[i] = b[:n]
		}
	}
}
