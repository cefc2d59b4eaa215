package bufferpool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineState is the externally visible state of a ResamplingPool.
type PipelineState int

const (
	// StateStreaming converts input as it arrives.
	StateStreaming PipelineState = iota
	// StateDrainPending flushes converter contents without waiting for input.
	StateDrainPending
	// StateReconfigurePending stops accepting input until the converter is
	// empty, then rebuilds the stage and/or converter.
	StateReconfigurePending
	// StateIdle means a drain completed and nothing is left to emit.
	StateIdle
)

func (s PipelineState) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateDrainPending:
		return "drain-pending"
	case StateReconfigurePending:
		return "reconfigure-pending"
	case StateIdle:
		return "idle"
	default:
		return fmt.Sprintf("PipelineState(%d)", int(s))
	}
}

// reconfigure is the set of rebuilds waiting for a safe point.
type reconfigure uint8

const (
	reloadConverter reconfigure = 1 << iota
	reloadStage
)

// Config holds the construction parameters of a ResamplingPool.
type Config struct {
	// Input is the decoder's format. Output is the pool's (target) format.
	Input  AudioFormat
	Output AudioFormat

	Quality Quality

	// ForceConverter keeps a converter attached even when input and
	// output formats match.
	ForceConverter bool

	// FillPackets only emits completely filled buffers, except at a
	// drain or reconfiguration boundary.
	FillPackets bool

	// SkipInputFactor pauses input while the converter backlog exceeds this
	// multiple of the free space of the buffer being filled. Zero selects 2.
	SkipInputFactor float64

	// NewConverter builds converters. Required when a conversion is needed.
	NewConverter ConverterFactory

	// Stages builds external processing stages. Optional.
	Stages StageManager

	// StreamID identifies the stream towards Stages. Zero picks a random id.
	StreamID uuid.UUID

	Allocator Allocator
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input format: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output format: %w", err)
	}
	if c.SkipInputFactor < 0 {
		return fmt.Errorf("%w: skip input factor must not be negative", ErrInvalidConfig)
	}
	if c.Quality < QualityLow || c.Quality > QualityVeryHigh {
		return fmt.Errorf("%w: unknown quality %d", ErrInvalidConfig, c.Quality)
	}
	return nil
}

// CreateOptions are the per-stream choices applied by Create.
type CreateOptions struct {
	// TotalTime is the amount of audio the pool should be able to hold.
	TotalTime time.Duration
	// Remap passes the output layout to the converter as explicit channel order.
	Remap bool
	// Upmix lets the converter (or stage) expand to more channels.
	Upmix bool
	// Normalize allows gain normalization when downmixing.
	Normalize bool
	// UseDSP requests an external processing stage.
	UseDSP bool
}

// ResamplingPool is a BufferPool that converts a stream of input buffers
// into buffers of its own format, optionally through a processing stage.
//
// It is driven by ResampleBuffers once per output interval and is not safe
// for concurrent use.
type ResamplingPool struct {
	*BufferPool

	cfg       Config
	logger    *zap.Logger
	streamID  uuid.UUID
	totalTime time.Duration

	// inputFormat is the effective converter input, overridden by an active stage.
	inputFormat AudioFormat
	// stageInput is the format handed to the stage manager.
	stageInput AudioFormat

	ratio      float64
	skipFactor float64

	input  bufferQueue
	output bufferQueue

	// proc is the output buffer being filled; stageOut holds stage output.
	proc     *SampleBuffer
	stageOut *SampleBuffer

	conv  Converter
	stage *activeStage

	stereoUpmix bool
	normalize   bool
	fillPackets bool

	draining bool
	drained  bool
	pending  reconfigure
	// empty records whether the last conversion produced nothing.
	empty bool
}

// NewResamplingPool creates an unpopulated pool; call Create before use.
func NewResamplingPool(config *Config) (*ResamplingPool, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := *config

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	streamID := cfg.StreamID
	if streamID == uuid.Nil {
		streamID = uuid.New()
	}
	skip := cfg.SkipInputFactor
	if skip == 0 {
		skip = defaultSkipInputFactor
	}

	input := cfg.Input.Normalized()
	logger = logger.With(zap.Stringer("stream", streamID))

	p := &ResamplingPool{
		BufferPool:  NewBufferPool(cfg.Output, cfg.Allocator, logger),
		cfg:         cfg,
		logger:      logger,
		streamID:    streamID,
		inputFormat: input,
		stageInput:  input,
		ratio:       nominalRatio,
		skipFactor:  skip,
		normalize:   true,
		fillPackets: cfg.FillPackets,
		empty:       true,
	}
	if cfg.ForceConverter {
		p.pending |= reloadConverter
	}
	if cfg.Metrics != nil {
		p.BufferPool.SetMetrics(cfg.Metrics, poolNameOutput)
	}
	return p, nil
}

// Create populates the pool and sets up the processing stage and converter.
func (p *ResamplingPool) Create(opts CreateOptions) error {
	if err := p.BufferPool.Create(opts.TotalTime); err != nil {
		return err
	}
	p.totalTime = opts.TotalTime
	p.stereoUpmix = opts.Upmix

	if opts.UseDSP || p.pending&reloadStage != 0 {
		p.stageInput = p.inputFormat
		if proc, ok := p.createStage(false); ok && !p.enableStage(proc) {
			p.cfg.Stages.DestroyStage(p.streamID)
		}
	}
	p.pending &^= reloadStage

	upmix := opts.Upmix
	if p.stage != nil && p.stage.upmixes() {
		upmix = false
	}

	p.normalize = true
	if p.format.Layout.Count() < p.inputFormat.Layout.Count() && !opts.Normalize {
		p.normalize = false
	}

	if p.needsConverter() || p.pending&reloadConverter != 0 {
		var remap ChannelLayout
		if opts.Remap {
			remap = p.format.Layout
		}
		conv, err := p.newConverter(upmix, remap)
		if err != nil {
			return err
		}
		p.conv = conv
	}
	p.pending &^= reloadConverter

	p.logger.Info("resampling pool created",
		zap.Stringer("input", p.inputFormat),
		zap.Stringer("output", p.format),
		zap.Bool("converter", p.conv != nil),
		zap.Bool("dsp", p.stage != nil),
		zap.Bool("upmix", upmix),
		zap.Bool("normalize", p.normalize))
	p.observe()
	return nil
}

// needsConverter reports whether the effective input differs from the output.
func (p *ResamplingPool) needsConverter() bool {
	return p.cfg.ForceConverter || !p.inputFormat.SameStream(p.format)
}

func (p *ResamplingPool) newConverter(upmix bool, remap ChannelLayout) (Converter, error) {
	if p.cfg.NewConverter == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoConverter, p.inputFormat, p.format)
	}
	conv := p.cfg.NewConverter()
	cfg := converterConfig(p.format, p.inputFormat, upmix, p.normalize, remap, p.cfg.Quality)
	if err := conv.Init(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConverterInit, err)
	}
	return conv, nil
}

func (p *ResamplingPool) createStage(wasActive bool) (Processor, bool) {
	if p.cfg.Stages == nil {
		return nil, false
	}
	return p.cfg.Stages.CreateStage(StageRequest{
		StreamID:  p.streamID,
		Input:     p.stageInput,
		Output:    p.format,
		Upmix:     p.stereoUpmix,
		Quality:   p.cfg.Quality,
		WasActive: wasActive,
	})
}

// enableStage activates proc, overriding the effective input format with
// the stage output and forcing a converter reload. It reports false, and
// changes nothing, when the stage output buffers cannot be allocated.
func (p *ResamplingPool) enableStage(proc Processor) bool {
	stage := &activeStage{proc: proc}
	format := stage.outputFormat(p.inputFormat)

	if p.stage != nil && p.stage.pool.Format().SameStream(format) {
		stage.pool = p.stage.pool
	} else {
		pool := NewBufferPool(format, p.cfg.Allocator, p.logger)
		if err := pool.Create(p.totalTime); err != nil {
			pool.Close()
			p.logger.Warn("processing stage disabled, no buffers", zap.Error(err))
			return false
		}
		if p.cfg.Metrics != nil {
			pool.SetMetrics(p.cfg.Metrics, poolNameStage)
		}
		if p.stage != nil {
			p.closeStagePool()
		}
		stage.pool = pool
	}

	p.stage = stage
	p.inputFormat = format
	p.pending |= reloadConverter
	p.logger.Info("processing stage enabled",
		zap.Stringer("format", format),
		zap.Float64("delay", proc.Delay()))
	return true
}

// disableStage drops the active stage. p.inputFormat must already hold the
// pre-stage format.
func (p *ResamplingPool) disableStage() {
	if p.inputFormat.SameStream(p.format) && !p.cfg.ForceConverter {
		p.conv = nil
		p.pending &^= reloadConverter
	} else {
		p.pending |= reloadConverter
	}
	p.closeStagePool()
	p.stage = nil
	p.cfg.Stages.DestroyStage(p.streamID)
	p.logger.Info("processing stage disabled", zap.Bool("converter", p.conv != nil))
}

func (p *ResamplingPool) closeStagePool() {
	if p.stageOut != nil {
		p.stageOut.Return()
		p.stageOut = nil
	}
	p.stage.pool.Close()
}

// changeResampler rebuilds the converter in place.
func (p *ResamplingPool) changeResampler() error {
	upmix := p.stereoUpmix
	if p.stage != nil && p.stage.upmixes() {
		upmix = false
	}

	p.pending &^= reloadConverter
	conv, err := p.newConverter(upmix, nil)
	if err != nil {
		p.conv = nil
		p.logger.Warn("converter rebuild failed, passing through", zap.Error(err))
		return err
	}
	p.conv = conv
	p.empty = true
	p.cfg.Metrics.reconfigured(reconfigureKindConverter)
	p.logger.Info("converter rebuilt",
		zap.Stringer("input", p.inputFormat),
		zap.Bool("upmix", upmix))
	return nil
}

// changeAudioDSP re-evaluates whether the processing stage is enabled.
func (p *ResamplingPool) changeAudioDSP() {
	p.pending &^= reloadStage
	p.cfg.Metrics.reconfigured(reconfigureKindStage)

	wasActive := p.stage != nil
	if wasActive {
		p.inputFormat = p.stage.proc.InputFormat()
	}

	proc, ok := p.createStage(wasActive)
	switch {
	case ok && p.enableStage(proc):
	case wasActive:
		p.disableStage()
	case ok:
		p.cfg.Stages.DestroyStage(p.streamID)
	}
}

// applyReconfigure runs pending rebuilds. It must only be called at a safe
// point: no output buffer in progress and an empty converter.
func (p *ResamplingPool) applyReconfigure() error {
	if p.pending&reloadStage != 0 {
		p.changeAudioDSP()
	}
	if p.pending&reloadConverter != 0 {
		return p.changeResampler()
	}
	return nil
}

// ResampleBuffers advances the pipeline by one tick and reports whether any
// work was done. timestamp tags every buffer completed during the tick.
func (p *ResamplingPool) ResampleBuffers(timestamp int64) (bool, error) {
	busy, err := p.resampleBuffers(timestamp)
	p.cfg.Metrics.tick(busy)
	p.observe()
	return busy, err
}

func (p *ResamplingPool) resampleBuffers(timestamp int64) (bool, error) {
	if p.conv == nil {
		if p.pending != 0 {
			return true, p.applyReconfigure()
		}
		busy := false
		p.input.drain(func(in *SampleBuffer) {
			in.Timestamp = timestamp
			p.output.push(in)
			busy = true
		})
		if p.draining {
			p.drained = true
		}
		return busy, nil
	}

	if p.proc == nil && !p.HasFree() {
		return false, nil
	}

	// BufferedFrames drifts with rounding; only the order of magnitude matters.
	backlog := p.conv.BufferedFrames()
	space := p.format.Frames
	if p.proc != nil {
		space = p.proc.Pkt.Space()
	}
	skipInput := float64(backlog) > p.skipFactor*float64(space) && !p.empty
	hasInput := !p.input.empty()
	reconfiguring := p.pending != 0
	// flushing means no further input reaches this converter.
	flushing := reconfiguring || (p.draining && !hasInput)

	if !hasInput && !skipInput && !flushing {
		return false, nil
	}

	if p.proc == nil {
		p.proc = p.GetFreeBuffer()
	}

	var in *SampleBuffer
	if hasInput && !skipInput && !reconfiguring {
		in = p.input.pop()
	}
	if p.stage != nil && in != nil {
		in = p.runStage(in)
	}

	var src [][]byte
	srcFrames := 0
	if in != nil {
		src = in.Pkt.Data
		srcFrames = in.Pkt.Frames
	} else if d, ok := p.conv.(Drainer); ok && flushing {
		d.Drain()
	}

	pkt := p.proc.Pkt
	produced, err := p.conv.Resample(pkt.WritePlanes(), pkt.Space(), src, srcFrames, p.ratio)
	if in != nil {
		in.Return()
	}
	if err != nil {
		return true, fmt.Errorf("conversion failed: %w", err)
	}
	pkt.Frames += produced
	p.empty = produced == 0

	if flushing && p.empty {
		return p.flushBoundary(timestamp)
	}
	if (!p.fillPackets && pkt.Frames > 0) || pkt.Full() {
		p.proc.Timestamp = timestamp
		p.output.push(p.proc)
		p.proc = nil
	}
	return true, nil
}

// flushBoundary is reached when draining or reconfiguring and the converter
// has nothing left. It is the only place pending reconfiguration is applied.
func (p *ResamplingPool) flushBoundary(timestamp int64) (bool, error) {
	busy := true
	pkt := p.proc.Pkt
	if p.fillPackets && pkt.Frames != 0 {
		pkt.ZeroTail()
	}
	p.proc.Timestamp = timestamp

	// An empty buffer goes back to the pool at every boundary, drain or
	// reconfiguration, so consumers never receive zero frames.
	if pkt.Frames == 0 {
		p.proc.Return()
		if p.draining {
			p.drained = true
			busy = false
		}
	} else {
		p.output.push(p.proc)
	}
	p.proc = nil

	return busy, p.applyReconfigure()
}

// runStage processes in through the active stage. It consumes in and
// returns the stage output, or nil when the stage produced nothing.
func (p *ResamplingPool) runStage(in *SampleBuffer) *SampleBuffer {
	if p.stageOut == nil {
		p.stageOut = p.stage.pool.GetFreeBuffer()
	}
	ok := p.stageOut != nil && p.stage.proc.Process(in, p.stageOut, p.conv)
	in.Return()
	if !ok {
		return nil
	}
	out := p.stageOut
	p.stageOut = nil
	return out
}

// Delay returns the audio held by the pipeline in seconds.
func (p *ResamplingPool) Delay() float64 {
	var delay float64
	if p.proc != nil {
		delay += p.proc.Duration()
	}
	if p.stageOut != nil {
		delay += p.stageOut.Duration()
	}
	p.input.each(func(b *SampleBuffer) { delay += b.Duration() })
	p.output.each(func(b *SampleBuffer) { delay += b.Duration() })
	if p.conv != nil {
		delay += float64(p.conv.BufferedFrames()) / float64(p.format.SampleRate)
	}
	if p.stage != nil {
		delay += p.stage.delay()
	}
	return delay
}

// Flush returns every buffer held by the pipeline to its pool.
func (p *ResamplingPool) Flush() {
	if p.proc != nil {
		p.proc.Return()
		p.proc = nil
	}
	if p.stageOut != nil {
		p.stageOut.Return()
		p.stageOut = nil
	}
	p.input.drain((*SampleBuffer).Return)
	p.output.drain((*SampleBuffer).Return)
	p.observe()
}

// PushInput queues a filled buffer for conversion. The pool takes over the
// caller's reference.
func (p *ResamplingPool) PushInput(b *SampleBuffer) {
	p.input.push(b)
	p.drained = false
}

// PopOutput removes the oldest completed buffer, or returns nil. The caller
// owns the reference and must Return it.
func (p *ResamplingPool) PopOutput() *SampleBuffer {
	b := p.output.pop()
	if b != nil {
		p.observe()
	}
	return b
}

// InputLen returns the number of queued input buffers.
func (p *ResamplingPool) InputLen() int {
	return p.input.len()
}

// OutputLen returns the number of completed buffers.
func (p *ResamplingPool) OutputLen() int {
	return p.output.len()
}

// SetDrain starts or stops draining.
func (p *ResamplingPool) SetDrain(drain bool) {
	p.draining = drain
	if !drain {
		p.drained = false
	}
}

// Draining reports whether a drain was requested.
func (p *ResamplingPool) Draining() bool {
	return p.draining
}

// SetFillPackets selects whether only completely filled buffers are emitted.
func (p *ResamplingPool) SetFillPackets(fill bool) {
	p.fillPackets = fill
}

// SetResampleRatio adjusts the conversion ratio for drift correction.
func (p *ResamplingPool) SetResampleRatio(ratio float64) error {
	if ratio < minResampleRatio || ratio > maxResampleRatio {
		return fmt.Errorf("%w: resample ratio %v out of range", ErrInvalidConfig, ratio)
	}
	p.ratio = ratio
	return nil
}

// ResampleRatio returns the current conversion ratio.
func (p *ResamplingPool) ResampleRatio() float64 {
	return p.ratio
}

// SetStereoUpmix changes the upmix policy used by the next converter or
// stage rebuild. It does not request a rebuild by itself.
func (p *ResamplingPool) SetStereoUpmix(upmix bool) {
	p.stereoUpmix = upmix
}

// RequestResamplerChange schedules a converter rebuild at the next safe point.
func (p *ResamplingPool) RequestResamplerChange() {
	p.pending |= reloadConverter
}

// RequestDSPChange schedules a processing stage re-evaluation at the next
// safe point.
func (p *ResamplingPool) RequestDSPChange() {
	p.pending |= reloadStage
}

// State returns the pipeline state.
func (p *ResamplingPool) State() PipelineState {
	switch {
	case p.pending != 0:
		return StateReconfigurePending
	case p.draining && p.drained:
		return StateIdle
	case p.draining:
		return StateDrainPending
	default:
		return StateStreaming
	}
}

// InputFormat returns the effective converter input format.
func (p *ResamplingPool) InputFormat() AudioFormat {
	return p.inputFormat
}

// HasConverter reports whether a converter is attached.
func (p *ResamplingPool) HasConverter() bool {
	return p.conv != nil
}

// HasStage reports whether a processing stage is active.
func (p *ResamplingPool) HasStage() bool {
	return p.stage != nil
}

// StreamID returns the id used towards the stage manager.
func (p *ResamplingPool) StreamID() uuid.UUID {
	return p.streamID
}

// Close flushes the pipeline, destroys the stage and frees all buffers.
func (p *ResamplingPool) Close() {
	p.Flush()
	if p.stage != nil {
		p.closeStagePool()
		p.stage = nil
		p.cfg.Stages.DestroyStage(p.streamID)
	}
	p.conv = nil
	p.BufferPool.Close()
}

func (p *ResamplingPool) observe() {
	if p.cfg.Metrics == nil {
		return
	}
	p.cfg.Metrics.observePipeline(p.input.len(), p.output.len(), p.Delay(), p.State())
}
